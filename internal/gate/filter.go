// Package gate implements C3: Filter, Sampler, and RateLimiter, the
// three allow/deny pipeline stages that run between the module-level
// check and the redactor (spec §4.3).
package gate

import (
	"regexp"
	"strings"

	"riverlog/internal/recordmodel"
)

// RuleType identifies a Filter rule's matching behavior.
type RuleType int

const (
	LevelMin RuleType = iota
	LevelMax
	LevelExact
	ModuleMatch
	ModulePrefix
	MessageContains
	MessageRegex
	Custom
)

// Action is what a matching rule does to the record.
type Action int

const (
	Allow Action = iota
	Deny
)

// Rule is one Filter rule, evaluated in insertion order (spec §4.3).
type Rule struct {
	Type   RuleType
	Action Action

	Level   recordmodel.Level // for LevelMin/LevelMax/LevelExact
	Module  string            // for ModuleMatch/ModulePrefix
	Needle  string            // for MessageContains
	Regex   *regexp.Regexp    // for MessageRegex
	Predicate func(recordmodel.Record) bool // for Custom
}

// Filter evaluates an ordered rule list with short-circuit on first
// match (spec §4.3: "short-circuit on first deny" — more precisely,
// evaluation stops at the first rule whose predicate matches, and that
// rule's Action decides the outcome; an empty filter is "allow all").
// When no rule matches, the record is allowed unless the filter holds
// at least one Allow rule, in which case it is denied.
type Filter struct {
	rules []Rule
}

// NewFilter builds a Filter from rules, preserving insertion order.
func NewFilter(rules ...Rule) *Filter {
	return &Filter{rules: rules}
}

// Allow reports whether rec passes the filter. An empty filter is the
// fast path: allow all without touching rec.
func (f *Filter) Allow(rec recordmodel.Record) bool {
	if f == nil || len(f.rules) == 0 {
		return true
	}
	hasAllow := false
	for _, r := range f.rules {
		if ruleMatches(r, rec) {
			return r.Action == Allow
		}
		if r.Action == Allow {
			hasAllow = true
		}
	}
	return !hasAllow
}

// AllowBatch evaluates rec for every record in recs, writing one result
// per record into out (spec §4.3 "batch evaluation"). out must have the
// same length as recs.
func (f *Filter) AllowBatch(recs []*recordmodel.Record, out []bool) {
	for i, r := range recs {
		out[i] = f.Allow(*r)
	}
}

func ruleMatches(r Rule, rec recordmodel.Record) bool {
	switch r.Type {
	case LevelMin:
		return !rec.Level.Less(r.Level)
	case LevelMax:
		return !r.Level.Less(rec.Level)
	case LevelExact:
		return rec.Level.Name == r.Level.Name
	case ModuleMatch:
		return rec.Source != nil && rec.Source.Module == r.Module
	case ModulePrefix:
		return rec.Source != nil && strings.HasPrefix(rec.Source.Module, r.Module)
	case MessageContains:
		return strings.Contains(rec.Message, r.Needle)
	case MessageRegex:
		return r.Regex != nil && r.Regex.MatchString(rec.Message)
	case Custom:
		return r.Predicate != nil && r.Predicate(rec)
	default:
		return false
	}
}

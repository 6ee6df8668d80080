// Package rules implements C5: the diagnostics-attachment engine that
// appends rule_messages to a Record as it flows through the pipeline
// (spec.md §4.5).
package rules

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"riverlog/internal/recordmodel"
)

// LevelMatchKind identifies how a Rule's level condition is evaluated.
type LevelMatchKind int

const (
	LevelAny LevelMatchKind = iota
	LevelExact
	LevelPriorityMin
	LevelPriorityMax
	LevelPriorityRange
	LevelCustomName
)

// LevelMatch is a Rule's level_match condition.
type LevelMatch struct {
	Kind     LevelMatchKind
	Level    recordmodel.Level // Exact, PriorityMin, PriorityMax
	MinLevel recordmodel.Level // PriorityRange
	MaxLevel recordmodel.Level // PriorityRange
	Name     string            // LevelCustomName
}

func (m LevelMatch) matches(l recordmodel.Level) bool {
	switch m.Kind {
	case LevelAny:
		return true
	case LevelExact:
		return l.Name == m.Level.Name
	case LevelPriorityMin:
		return !l.Less(m.Level)
	case LevelPriorityMax:
		return !m.Level.Less(l)
	case LevelPriorityRange:
		return !l.Less(m.MinLevel) && !m.MaxLevel.Less(l)
	case LevelCustomName:
		return l.Name == m.Name
	default:
		return false
	}
}

// Rule is one diagnostics-attachment rule (spec §4.5).
type Rule struct {
	ID       uint32
	Level    LevelMatch
	Module   string // optional; "" disables the check
	Function string // optional; "" disables the check
	MessageContains string // optional; "" disables the check
	Once     bool
	Priority int
	Enabled  bool
	Messages []recordmodel.RuleMessage

	fired   atomic.Bool
	insertN int // tiebreak: order in which Add was called
}

// AttachCallback is invoked after each match, with the rule and the
// attachment that was appended.
type AttachCallback func(rule Rule, attachment recordmodel.RuleMessage)

// Stats are the engine's atomic counters (spec §4.5).
type Stats struct {
	RulesEvaluated    atomic.Int64
	RulesMatched      atomic.Int64
	MessagesEmitted   atomic.Int64
	EvaluationsSkipped atomic.Int64
}

// Engine is the thread-safe rule store (spec §4.5).
type Engine struct {
	mu       sync.Mutex
	rules    []*Rule
	byID     map[uint32]*Rule
	nextSeq  int
	disabled bool

	onAttach AttachCallback

	stats Stats
}

// ErrDuplicateID is returned by Add when id is already registered.
var ErrDuplicateID = errors.New("rules: duplicate rule id")

// New builds an empty Engine. Engines start enabled.
func New() *Engine {
	return &Engine{byID: make(map[uint32]*Rule)}
}

// SetAttachCallback sets the callback invoked after each successful
// match. Pass nil to clear it.
func (e *Engine) SetAttachCallback(cb AttachCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAttach = cb
}

// SetEnabled toggles the engine's fast-path disabled state.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled = !enabled
}

// Add registers a new rule, returning ErrDuplicateID if r.ID already
// exists.
func (e *Engine) Add(r Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[r.ID]; ok {
		return ErrDuplicateID
	}
	r.insertN = e.nextSeq
	e.nextSeq++
	stored := r
	e.byID[r.ID] = &stored
	e.rules = append(e.rules, &stored)
	e.sortLocked()
	return nil
}

// AddOrUpdate registers r, replacing any existing rule with the same
// ID (unlike Add, never returns ErrDuplicateID).
func (e *Engine) AddOrUpdate(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.byID[r.ID]; ok {
		r.insertN = existing.insertN
		*existing = r
		e.sortLocked()
		return
	}
	r.insertN = e.nextSeq
	e.nextSeq++
	stored := r
	e.byID[r.ID] = &stored
	e.rules = append(e.rules, &stored)
	e.sortLocked()
}

// Remove deletes the rule with the given id, if present.
func (e *Engine) Remove(id uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byID, id)
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			break
		}
	}
}

// sortLocked orders rules priority-descending with insertion order as
// the tiebreak, per spec §4.5.
func (e *Engine) sortLocked() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		a, b := e.rules[i], e.rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.insertN < b.insertN
	})
}

// Stats exposes the engine's atomic counters.
func (e *Engine) Stats() *Stats { return &e.stats }

// Evaluate runs every enabled rule against rec in priority-descending
// order, appending attachments in place. Fast path: a disabled or
// empty engine returns immediately without taking the lock (spec §4.5).
func (e *Engine) Evaluate(rec *recordmodel.Record) {
	if e == nil {
		return
	}
	// Unlocked peek: a data race on this read only risks one extra or
	// missed lock acquisition around a concurrent toggle, never a
	// correctness issue for rule evaluation itself.
	if e.disabled || len(e.rules) == 0 {
		e.stats.EvaluationsSkipped.Add(1)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disabled || len(e.rules) == 0 {
		e.stats.EvaluationsSkipped.Add(1)
		return
	}

	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		if r.Once && r.fired.Load() {
			continue
		}
		e.stats.RulesEvaluated.Add(1)
		if !ruleConditionMatches(r, rec) {
			continue
		}
		e.stats.RulesMatched.Add(1)
		if r.Once {
			r.fired.Store(true)
		}
		for _, m := range r.Messages {
			rec.AppendRuleMessage(m)
			e.stats.MessagesEmitted.Add(1)
			if e.onAttach != nil {
				e.onAttach(*r, m)
			}
		}
	}
}

func ruleConditionMatches(r *Rule, rec *recordmodel.Record) bool {
	if !r.Level.matches(rec.Level) {
		return false
	}
	if r.Module != "" {
		if rec.Source == nil || rec.Source.Module != r.Module {
			return false
		}
	}
	if r.Function != "" {
		if rec.Source == nil || rec.Source.Function != r.Function {
			return false
		}
	}
	if r.MessageContains != "" && !strings.Contains(rec.Message, r.MessageContains) {
		return false
	}
	return true
}

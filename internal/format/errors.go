package format

import "github.com/cockroachdb/errors"

// errUnknownPlaceholder and errUnterminatedPlaceholder back the
// FormatError policy (spec §7): renderTemplate fails closed and the
// caller falls back to the default text line rather than propagating.
var (
	errUnknownPlaceholder      = errors.New("format: unknown template placeholder")
	errUnterminatedPlaceholder = errors.New("format: unterminated template placeholder")
)

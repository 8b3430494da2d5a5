package propagation

import "fmt"

// ErrorKind classifies adapter failures so callers can distinguish
// permanently bad input from per-instant propagation misses.
type ErrorKind int

const (
	// KindInvalidFormat means the TLE lines failed validation before any
	// propagation was attempted. Never retried.
	KindInvalidFormat ErrorKind = iota
	// KindPropagationFailed means SGP4 could not produce a plausible
	// position for a specific instant (decayed orbit, numerical
	// singularity). A soft, per-sample failure.
	KindPropagationFailed
)

// Error is the typed failure returned by the adapter.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// IsInvalidFormat reports whether err is an adapter error with
// KindInvalidFormat.
func IsInvalidFormat(err error) bool {
	pe, ok := err.(*Error)
	return ok && pe.Kind == KindInvalidFormat
}

// IsPropagationFailed reports whether err is an adapter error with
// KindPropagationFailed.
func IsPropagationFailed(err error) bool {
	pe, ok := err.(*Error)
	return ok && pe.Kind == KindPropagationFailed
}

func invalidFormatf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidFormat, Msg: fmt.Sprintf(format, args...)}
}

func propagationFailedf(format string, args ...any) *Error {
	return &Error{Kind: KindPropagationFailed, Msg: fmt.Sprintf(format, args...)}
}

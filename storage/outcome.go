package storage

// Code classifies the result of a mutation closure. Business failures are
// values, not errors, so handlers can match on them exhaustively and map
// them to transport statuses themselves.
type Code string

const (
	CodeOK       Code = "ok"
	CodeNotFound Code = "not_found"
	CodeConflict Code = "conflict"
	CodeInvalid  Code = "invalid"
	CodeDisabled Code = "disabled"
)

// Outcome is the tagged result of a mutation closure. Value carries the
// success payload; Reason is a short human-readable cause for failures.
type Outcome struct {
	Code   Code
	Value  any
	Reason string
}

// Succeeded reports whether the closure completed its mutation.
func (o Outcome) Succeeded() bool { return o.Code == CodeOK }

// Success returns an ok outcome carrying the given payload.
func Success(v any) Outcome { return Outcome{Code: CodeOK, Value: v} }

// NotFound returns a not-found business failure.
func NotFound(reason string) Outcome { return Outcome{Code: CodeNotFound, Reason: reason} }

// Conflict returns a conflict business failure, e.g. a duplicate launchpad URL.
func Conflict(reason string) Outcome { return Outcome{Code: CodeConflict, Reason: reason} }

// Invalid returns a validation business failure.
func Invalid(reason string) Outcome { return Outcome{Code: CodeInvalid, Reason: reason} }

// Disabled reports an operation against an entity that is switched off.
func Disabled(reason string) Outcome { return Outcome{Code: CodeDisabled, Reason: reason} }

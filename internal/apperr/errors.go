// Package apperr implements the error taxonomy from spec.md §7. It wraps
// the teacher's fmt.Errorf("...: %w", err) convention with a stable Kind
// so the tool/API surface can translate failures into the codes external
// callers are promised, without string-matching error messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed taxonomy of error kinds from spec.md §7.
type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindPriceUnavailable      Kind = "PRICE_UNAVAILABLE"
	KindProviderUnavailable   Kind = "PROVIDER_UNAVAILABLE"
	KindInfeasible            Kind = "INFEASIBLE"
	KindSolverError           Kind = "SOLVER_ERROR"
	KindCrossSourceAmbiguity  Kind = "CROSS_SOURCE_AMBIGUITY"
	KindInternal              Kind = "INTERNAL"
)

// Error is a typed application error carrying a Kind and optional
// structured Details for the flag/compliance output shapes in §6.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// As implements errors.As support so callers can recover the typed Kind
// from an arbitrarily wrapped error chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func new_(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a VALIDATION error — surfaced to the caller
// immediately, never aggregated into data_quality.
func Validation(format string, args ...any) *Error { return new_(KindValidation, format, args...) }

// PriceUnavailable builds a PRICE_UNAVAILABLE(symbol) error. Callers MUST
// NOT substitute zeros for the missing series (spec.md §4.2).
func PriceUnavailable(symbol string) *Error {
	e := new_(KindPriceUnavailable, "price unavailable for %s", symbol)
	e.Details = map[string]any{"symbol": symbol}
	return e
}

// ProviderUnavailable builds a PROVIDER_UNAVAILABLE(source) error.
func ProviderUnavailable(source string, cause error) *Error {
	e := new_(KindProviderUnavailable, "provider unavailable: %s", source)
	e.Details = map[string]any{"source": source}
	e.cause = cause
	return e
}

// Infeasible builds an INFEASIBLE error naming the binding constraint set.
func Infeasible(binding []string) *Error {
	e := new_(KindInfeasible, "optimizer constraints unsatisfiable with current universe")
	e.Details = map[string]any{"binding_constraints": binding}
	return e
}

// SolverError builds a SOLVER_ERROR for numerical solver failure.
func SolverError(cause error) *Error {
	e := new_(KindSolverError, "optimizer numerical failure")
	e.cause = cause
	return e
}

// CrossSourceAmbiguity builds a CROSS_SOURCE_AMBIGUITY(symbol) error.
func CrossSourceAmbiguity(symbol string) *Error {
	e := new_(KindCrossSourceAmbiguity, "cross-source ambiguity for %s", symbol)
	e.Details = map[string]any{"symbol": symbol}
	return e
}

// Internal builds an INTERNAL error with an opaque id for correlation
// with logs, per spec.md §7 ("always surface with an opaque id").
func Internal(id string, cause error) *Error {
	e := new_(KindInternal, "internal error %s", id)
	e.Details = map[string]any{"error_id": id}
	e.cause = cause
	return e
}

// Wrap annotates err with additional context while preserving its Kind if
// it is already an *Error; otherwise it is wrapped as KindInternal.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if ae, ok := As(err); ok {
		return &Error{Kind: ae.Kind, Message: msg + ": " + ae.Message, Details: ae.Details, cause: err}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

/*
errors.go - Centralized error types for the COC engine

PURPOSE:
  All error kinds in one place. Public operations return exactly one of
  the stable kinds below; handlers and the CLI map kinds to exit surfaces
  without inspecting messages.

ERROR CATEGORIES:
  1. Validation  - malformed input (missing field, bad date, bad time)
  2. Conflict    - already exists, period locked
  3. Cap         - monthly or total cap exceeded
  4. Operational - not found, precondition failed, store unavailable
  5. Internal    - invariant violation, schema drift

USAGE:
  if errors.Is(err, coc.ErrCapExceeded) { ... }
  var capErr *coc.CapExceededError
  if errors.As(err, &capErr) { fmt.Println(capErr.Limit) }

SEE ALSO:
  - api/handlers.go: KindOf -> HTTP status mapping
*/
package coc

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all malformed-input failures.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity is absent.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on uniqueness conflicts (certificate
	// exists, employee email exists, historical batch exists).
	ErrAlreadyExists = errors.New("already exists")

	// ErrPeriodLocked is returned when a (employee, month, year) period is
	// immutable due to a certificate or a historical import.
	ErrPeriodLocked = errors.New("period locked")

	// ErrCapExceeded is returned when a write would breach a cap.
	ErrCapExceeded = errors.New("cap exceeded")

	// ErrPreconditionFailed is returned for operations on entities in the
	// wrong state (deleting a certified log, future issuance date).
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrStoreUnavailable wraps store deadline/transport failures. Retriable.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInternal marks invariant violations. Non-retriable; log for operator.
	ErrInternal = errors.New("internal invariant violation")
)

// =============================================================================
// STABLE API KINDS
// =============================================================================

// Kind is the discriminated error kind carried across the API boundary.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindNotFound           Kind = "NotFound"
	KindAlreadyExists      Kind = "Conflict/AlreadyExists"
	KindPeriodLocked       Kind = "Conflict/PeriodLocked"
	KindCapExceededMonthly Kind = "CapExceeded/Monthly"
	KindCapExceededTotal   Kind = "CapExceeded/Total"
	KindPreconditionFailed Kind = "PreconditionFailed"
	KindStoreUnavailable   Kind = "StoreUnavailable"
	KindInternal           Kind = "Internal"
)

// KindOf maps any engine error to its stable kind.
func KindOf(err error) Kind {
	var capErr *CapExceededError
	if errors.As(err, &capErr) {
		if capErr.Scope == CapTotal {
			return KindCapExceededTotal
		}
		return KindCapExceededMonthly
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrPeriodLocked):
		return KindPeriodLocked
	case errors.Is(err, ErrCapExceeded):
		return KindCapExceededMonthly
	case errors.Is(err, ErrPreconditionFailed):
		return KindPreconditionFailed
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationSubkind narrows a validation failure.
type ValidationSubkind string

const (
	MissingField  ValidationSubkind = "MissingField"
	BadDate       ValidationSubkind = "BadDate"
	BadTime       ValidationSubkind = "BadTime"
	MonthMismatch ValidationSubkind = "MonthMismatch"
)

// FieldError reports a malformed input field.
type FieldError struct {
	Subkind ValidationSubkind
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", e.Subkind, e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// LockFlavor tells which kind of lock rejected a period write.
type LockFlavor string

const (
	LockHistorical LockFlavor = "Historical"
	LockCertified  LockFlavor = "Certified"
)

// PeriodLockedError reports a write to an immutable period.
type PeriodLockedError struct {
	Flavor     LockFlavor
	EmployeeID EmployeeID
	Month      string
	Year       int
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period %s %d for %s is locked (%s)",
		e.Month, e.Year, e.EmployeeID, e.Flavor)
}

func (e *PeriodLockedError) Unwrap() error { return ErrPeriodLocked }

// CapScope tells which cap was breached.
type CapScope string

const (
	CapMonthly CapScope = "Monthly"
	CapTotal   CapScope = "Total"
)

// CapExceededError reports a cap breach with the exact arithmetic.
type CapExceededError struct {
	Scope   CapScope
	Current Hours
	Delta   Hours
	Limit   Hours
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("%s cap exceeded: current %s + new %s > limit %s",
		e.Scope, e.Current, e.Delta, e.Limit)
}

func (e *CapExceededError) Unwrap() error { return ErrCapExceeded }

// SchemaDriftError reports a stored document missing a required field.
// Should be rare in practice; rows are written with all fields present.
type SchemaDriftError struct {
	Collection string
	DocID      string
	Field      string
}

func (e *SchemaDriftError) Error() string {
	return fmt.Sprintf("schema drift: %s/%s missing field %q",
		e.Collection, e.DocID, e.Field)
}

func (e *SchemaDriftError) Unwrap() error { return ErrInternal }

// InsufficientCreditsError reports an over-draw attempt on debit.
type InsufficientCreditsError struct {
	EmployeeID EmployeeID
	Available  Hours
	Requested  Hours
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for %s: available %s, requested %s",
		e.EmployeeID, e.Available, e.Requested)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrPreconditionFailed }

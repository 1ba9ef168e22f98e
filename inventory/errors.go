/*
errors.go - Centralized error types for the coverage engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers test with errors.Is / errors.As; the HTTP layer maps them to
  status codes without string matching.

ERROR CATEGORIES:
  1. Invariant violations - overlap, matrix violation, manufacturer mismatch,
     missing required date. Always field-scoped, never auto-corrected.
  2. Missing reference data - NOT errors. A missing lifecycle record or an
     unresolvable manufacturer is a legitimate "unknown" outcome.
  3. Concurrent conflicts - two writers racing; retryable.
  4. Store errors - database-level failures.

SEE ALSO:
  - store/sqlite/sqlite.go: maps driver errors onto these sentinels
  - api/handlers.go: maps these onto HTTP status codes
*/
package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every field-scoped validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrOverlappingCoverage is returned when two assignments for the same
	// (asset, sku) would overlap. There is no unique-key substitute for this.
	ErrOverlappingCoverage = errors.New("overlapping coverage period")

	// ErrConcurrentModification is returned when a concurrent writer holds the
	// store. The caller may retry the whole operation.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("duplicate record")

	// ErrAssetProtected is returned when deleting an asset still referenced
	// by assignments or coverage rows.
	ErrAssetProtected = errors.New("asset is referenced and cannot be deleted")

	// ErrInvalidTransition is returned for coverage status moves the state
	// machine doesn't allow (e.g. anything out of terminated).
	ErrInvalidTransition = errors.New("invalid coverage status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is one field-scoped message. Field is empty for record-level errors.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError collects field errors for one record.
type ValidationError struct {
	Entity string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if f.Field == "" {
			parts[i] = f.Message
		} else {
			parts[i] = f.Field + ": " + f.Message
		}
	}
	return fmt.Sprintf("%s validation failed: %s", e.Entity, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add appends a field error.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns nil when no field errors were collected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewFieldError builds a single-field ValidationError.
func NewFieldError(entity, field, format string, args ...any) *ValidationError {
	v := &ValidationError{Entity: entity}
	v.Add(field, format, args...)
	return v
}

// OverlapError names the assignment that already covers the period.
type OverlapError struct {
	AssetID    AssetID
	SKUID      SKUID
	Candidate  Period
	ConflictID AssignmentID
	Conflict   Period
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("asset %s and sku %s already have coverage during %s (assignment %s covers %s)",
		e.AssetID, e.SKUID, e.Candidate, e.ConflictID, e.Conflict)
}

func (e *OverlapError) Unwrap() []error {
	return []error{ErrOverlappingCoverage, ErrValidation}
}

// FieldErrors presents the overlap as a record-level field error.
func (e *OverlapError) FieldErrors() []FieldError {
	return []FieldError{{Message: fmt.Sprintf(
		"This asset and SKU already have coverage during the specified period (conflicts with assignment %s, %s).",
		e.ConflictID, e.Conflict)}}
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransitionError describes a refused status move.
type TransitionError struct {
	From CoverageStatus
	To   CoverageStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move coverage from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrOverlappingCoverage) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrAssetProtected)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FieldErrorsOf extracts field errors from any validation-shaped error.
func FieldErrorsOf(err error) []FieldError {
	var oe *OverlapError
	if errors.As(err, &oe) {
		return oe.FieldErrors()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

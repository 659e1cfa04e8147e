/*
errors.go - Centralized error types for the query engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store adapters wrap their native failures with these so the engine and
  the API can classify errors without knowing which store produced them.

ERROR CATEGORIES:
  1. Missing index - recovered locally by the fallback guard
  2. Client errors - bad filters, bad limits, invalid records
  3. Not found - single-record lookups
  Anything else is a store failure and propagates unchanged.

USAGE:
  if generic.IsMissingIndex(err) {
      // fallback scan
  }

SEE ALSO:
  - fallback.go: The only place ErrMissingIndex is absorbed
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingIndex is returned by a store when a query needs a composite
	// index that has not been provisioned.
	ErrMissingIndex = errors.New("query requires a composite index that does not exist")

	// ErrNotFound is returned when a record does not exist for the owner.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidLimit is returned for negative limits.
	ErrInvalidLimit = errors.New("invalid limit: must not be negative")

	// ErrUnknownFilterField is returned when an equality filter names a
	// field the collection does not declare.
	ErrUnknownFilterField = errors.New("unknown filter field")

	// ErrValidation is returned when a record fails create-time validation.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingIndexError reports which index a store needed. Code is the
// store-specific failure code (e.g. "291" for MongoDB NoQueryExecutionPlans,
// "NO_SUCH_INDEX" for SQLite queries naming an index that does not exist).
type MissingIndexError struct {
	Collection string
	Fields     []string
	Code       string
	Cause      error
}

func (e *MissingIndexError) Error() string {
	msg := fmt.Sprintf("missing index on %s(%s)", e.Collection, strings.Join(e.Fields, ", "))
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *MissingIndexError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrMissingIndex}
	}
	return []error{ErrMissingIndex, e.Cause}
}

// UnknownFieldError names the undeclared filter field.
type UnknownFieldError struct {
	Collection string
	Field      string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: field %q is not filterable", e.Collection, e.Field)
}

func (e *UnknownFieldError) Unwrap() error {
	return ErrUnknownFilterField
}

// ValidationError provides details about an invalid record or filter value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsMissingIndex is the default fallback predicate.
func IsMissingIndex(err error) bool {
	return errors.Is(err, ErrMissingIndex)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrUnknownFilterField) ||
		errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

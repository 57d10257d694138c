/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every error is scoped to the one operation that raised it; nothing in
  this package is fatal to the process.

ERROR CATEGORIES:
  1. Not-found errors - Referenced item/project/record missing
  2. Validation errors - Business rule violations (stock, transitions)
  3. Store errors - Commit/idempotency failures

USAGE:
  Callers branch on kind with errors.Is and extract detail with
  errors.As:

    var insufficient *inventory.InsufficientStockError
    if errors.As(err, &insufficient) {
        log.Printf("short on %s", insufficient.ItemID)
    }

SEE ALSO:
  - store.go: Apply surfaces these errors
  - api/handlers.go: Maps kinds to HTTP statuses
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrItemNotFound is returned when a referenced item doesn't exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrProjectNotFound is returned when a referenced project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrRecordNotFound is returned when a referenced tracking record doesn't exist.
	ErrRecordNotFound = errors.New("tracking record not found")

	// ErrInsufficientStock is returned when a bucket would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidTransition is returned when a target status is unreachable
	// from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyReplenished is returned when replenish is called twice on
	// the same tracking record.
	ErrAlreadyReplenished = errors.New("tracking record already replenished")

	// ErrNoBillOfMaterials is returned when manufacturing is requested for
	// an item without a BOM.
	ErrNoBillOfMaterials = errors.New("item has no bill of materials")

	// ErrNoCadence is returned when replenishment is requested for an item
	// whose cadence has been removed since the record was created.
	ErrNoCadence = errors.New("item has no replacement cadence")

	// ErrDuplicateOperation is returned when a batch carries an operation
	// id that has already been applied. This is expected behavior for
	// retries after an ambiguous commit.
	ErrDuplicateOperation = errors.New("duplicate operation id")

	// ErrCommitFailed is returned when the underlying atomic batch write
	// did not commit. Safe to retry after re-checking whether the previous
	// attempt landed (the operation id makes blind retries safe too).
	ErrCommitFailed = errors.New("batch commit failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError identifies the offending item and bucket.
type InsufficientStockError struct {
	ItemID    ItemID
	Bucket    Bucket
	Available Quantity
	Requested Quantity
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: item %s bucket %s has %v, requested %v",
		e.ItemID, e.Bucket, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidTransitionError identifies the illegal (from, to) pair.
type InvalidTransitionError struct {
	From ProjectStatus
	To   ProjectStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError wraps the relevant not-found sentinel with the id.
type NotFoundError struct {
	Kind string // "item", "project", "record"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "project":
		return ErrProjectNotFound
	case "record":
		return ErrRecordNotFound
	default:
		return ErrItemNotFound
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing aggregate.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

// IsClientError returns true if the error is due to invalid caller input
// rather than infrastructure failure. Not retried automatically.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadyReplenished) ||
		errors.Is(err, ErrNoBillOfMaterials) ||
		errors.Is(err, ErrNoCadence) ||
		errors.Is(err, ErrDuplicateOperation)
}

// IsRetryable returns true if the error might succeed on retry.
// Deltas are relative and batches carry operation ids, so retrying a
// failed commit cannot double-apply.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCommitFailed)
}

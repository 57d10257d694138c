/*
tracking.go - Product tracking scheduler

PURPOSE:
  Derives a replacement due-date for every completed project line from
  the item's cadence, and handles the replenishment cycle: closing the
  due record, restocking on-hand, and opening the next cycle.

CADENCE:
  Cadence is the tagged variant Months(n) | PerYear(n) - a useful life
  in months for products/components, a replacements-per-year frequency
  for sensors and sensor extras. One conversion function (Cadence.Next)
  turns either into a due date offset. Items without a cadence are
  simply not tracked.

ACTIVE RECORD:
  At most one active (non-replenished) record exists per
  (projectID, itemID). Re-completing a reopened project updates the
  active record in place rather than stacking duplicates. Replenishment
  closes the record and creates a fresh one; history is never deleted.

REPLENISHMENT:
  The one place stock re-enters on-hand outside of a purchase receipt:
  the deployed unit's replacement has shipped, the old unit is available
  or discarded, and a fresh tracking cycle starts. Marking the record,
  crediting on-hand and creating the next record is one atomic batch.

SEE ALSO:
  - lifecycle.go: Invokes ScheduleForCompletion after completion commits
  - ledger.go: Inflow used for the replenishment credit
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TRACKER
// =============================================================================

type Tracker struct {
	store  Store
	ledger *Ledger
	now    func() time.Time
}

func NewTracker(store Store, ledger *Ledger) *Tracker {
	return &Tracker{store: store, ledger: ledger, now: time.Now}
}

// NewTrackerAt creates a tracker with a fixed clock, for tests.
func NewTrackerAt(store Store, ledger *Ledger, now func() time.Time) *Tracker {
	return &Tracker{store: store, ledger: ledger, now: now}
}

// =============================================================================
// COMPLETION SCHEDULING
// =============================================================================

// ScheduleForCompletion creates or refreshes the tracking record for a
// completed project line. Items without a cadence are a no-op (nil
// record, nil error). If an active record already exists for
// (projectID, itemID) it is updated in place, which supports a project
// being reopened and re-completed.
func (t *Tracker) ScheduleForCompletion(ctx context.Context, projectID ProjectID, itemID ItemID, quantity Quantity, completedAt time.Time) (*TrackingRecord, error) {
	item, err := t.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Cadence.IsZero() {
		return nil, nil
	}

	now := t.now().UTC()
	rec, err := t.store.ActiveTrackingRecord(ctx, projectID, itemID)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		rec = &TrackingRecord{
			ID:        RecordID(uuid.NewString()),
			ProjectID: projectID,
			ItemID:    itemID,
			CreatedAt: now,
		}
	}

	rec.Quantity = quantity
	rec.Cadence = item.Cadence
	rec.CompletedAt = completedAt
	rec.ReplaceBy = item.Cadence.Next(completedAt)
	rec.UpdatedAt = now

	if err := t.store.PutTrackingRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// =============================================================================
// REPLENISHMENT
// =============================================================================

// Replenish closes a due tracking record: marks it replenished, credits
// the item's on-hand stock by the record quantity, and opens the next
// cycle's record - all in one atomic batch.
//
// The item's cadence is re-validated here, not just at creation: an
// item whose cadence was removed since can no longer be replenished
// into a new cycle.
//
// nextDue, when non-nil, overrides the computed replace-by date of the
// new record.
func (t *Tracker) Replenish(ctx context.Context, recordID RecordID, nextDue *time.Time) (*TrackingRecord, error) {
	rec, err := t.store.GetTrackingRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Replenished {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrAlreadyReplenished)
	}

	item, err := t.store.GetItem(ctx, rec.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Cadence.IsZero() {
		return nil, fmt.Errorf("item %s: %w", item.ID, ErrNoCadence)
	}

	now := t.now().UTC()
	rec.Replenished = true
	rec.ReplenishedAt = &now
	rec.UpdatedAt = now

	next := &TrackingRecord{
		ID:          RecordID(uuid.NewString()),
		ProjectID:   rec.ProjectID,
		ItemID:      rec.ItemID,
		Quantity:    rec.Quantity,
		Cadence:     item.Cadence,
		CompletedAt: now,
		ReplaceBy:   item.Cadence.Next(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nextDue != nil {
		next.ReplaceBy = *nextDue
	}

	batch := &Batch{OperationID: NewOperationID()}
	if err := t.ledger.Inflow(batch, rec.ItemID, BucketOnHand, rec.Quantity, string(rec.ID), "replenishment restock"); err != nil {
		return nil, err
	}
	batch.TrackingPuts = []*TrackingRecord{rec, next}

	if err := t.store.Apply(ctx, batch); err != nil {
		return nil, err
	}
	return next, nil
}

// =============================================================================
// NOTES
// =============================================================================

// AddNote appends a note to a tracking record. Notes are append-only
// and ordered by creation time.
func (t *Tracker) AddNote(ctx context.Context, recordID RecordID, body, author string) error {
	if body == "" {
		return fmt.Errorf("note body must not be empty")
	}
	if _, err := t.store.GetTrackingRecord(ctx, recordID); err != nil {
		return err
	}
	return t.store.AppendNote(ctx, recordID, TrackingNote{
		Body:      body,
		Author:    author,
		CreatedAt: t.now().UTC(),
	})
}

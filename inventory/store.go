/*
store.go - Persistence contract for items, projects and the movement log

PURPOSE:
  Defines the interface between the domain logic and the database. The
  Store is the module boundary that enforces the central rule of this
  engine: bucket quantities are mutated ONLY through relative increments
  inside an atomic batch. No other code path writes bucket fields.

KEY TYPES:
  Store:  Point reads, lookups, and the single write primitive Apply
  Batch:  One logical operation's writes (increments, movements,
          project/tracking upserts) applied all-or-nothing

RELATIVE INCREMENTS:
  Batches carry deltas, never absolute values. Two concurrent
  transitions on different projects touching the same item commute:
  whichever commits second still lands on correct totals. Application
  code must never read-modify-write an absolute quantity.

NON-NEGATIVITY:
  Apply re-validates that no bucket goes below zero and rejects the
  whole batch with InsufficientStockError otherwise. Service-level
  pre-checks are an early exit, not the safety mechanism; the store is
  the authoritative guard.

IDEMPOTENCY:
  Every batch carries an OperationID. A batch whose OperationID has
  already been applied is rejected with ErrDuplicateOperation, so a
  caller that timed out before commit can retry the whole operation
  without risking double-application.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - inventory/store/memory.go: In-memory for testing/dev

SEE ALSO:
  - ledger.go: Builds batches through MoveBucket/Inflow/Outflow
  - lifecycle.go: One batch per status transition
*/
package inventory

import "context"

// =============================================================================
// BATCH - One logical operation's atomic writes
// =============================================================================

// BucketIncrement is a relative delta against one bucket of one item.
type BucketIncrement struct {
	ItemID ItemID
	Bucket Bucket
	Delta  Quantity
}

// Batch collects every write of one logical operation. Apply commits it
// all-or-nothing: either every item's buckets update or none do.
type Batch struct {
	// OperationID is the idempotency key for this batch. Required.
	OperationID string

	Increments []BucketIncrement
	Movements  []MovementEntry

	// Optional dependent writes committed with the bucket deltas.
	ProjectPut   *Project
	TrackingPuts []*TrackingRecord
}

// Increment appends a relative bucket delta. BucketExternal deltas are
// dropped: external stock is not stored.
func (b *Batch) Increment(itemID ItemID, bucket Bucket, delta Quantity) {
	if bucket == BucketExternal || delta.IsZero() {
		return
	}
	b.Increments = append(b.Increments, BucketIncrement{ItemID: itemID, Bucket: bucket, Delta: delta})
}

// Empty reports whether the batch carries no writes at all.
func (b *Batch) Empty() bool {
	return len(b.Increments) == 0 && len(b.Movements) == 0 &&
		b.ProjectPut == nil && len(b.TrackingPuts) == 0
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store handles persistence for the inventory engine.
//
// IMPORTANT: Apply is the ONLY way bucket quantities change. PutItem
// exists for item creation and metadata edits and must never alter
// buckets of an existing item.
type Store interface {
	// --- Items ---

	// GetItem returns the item or ErrItemNotFound.
	GetItem(ctx context.Context, id ItemID) (*InventoryItem, error)

	// ListItems returns all items.
	ListItems(ctx context.Context) ([]*InventoryItem, error)

	// PutItem creates or updates an item's identity/metadata. For an
	// existing item the stored buckets are preserved; seeding buckets is
	// allowed only on first insert (import).
	PutItem(ctx context.Context, item *InventoryItem) error

	// --- Projects ---

	// GetProject returns the project or ErrProjectNotFound.
	GetProject(ctx context.Context, id ProjectID) (*Project, error)

	// ListProjects returns all projects.
	ListProjects(ctx context.Context) ([]*Project, error)

	// --- Tracking records ---

	// GetTrackingRecord returns the record or ErrRecordNotFound.
	GetTrackingRecord(ctx context.Context, id RecordID) (*TrackingRecord, error)

	// ActiveTrackingRecord returns the single active (non-replenished)
	// record for (projectID, itemID), or nil if none exists.
	ActiveTrackingRecord(ctx context.Context, projectID ProjectID, itemID ItemID) (*TrackingRecord, error)

	// ListTrackingRecords returns all records, active first, soonest
	// replace-by first.
	ListTrackingRecords(ctx context.Context) ([]*TrackingRecord, error)

	// PutTrackingRecord creates or updates a single tracking record
	// outside a batch (used by completion scheduling, which runs after
	// the transition batch commits).
	PutTrackingRecord(ctx context.Context, rec *TrackingRecord) error

	// AppendNote appends one note to a tracking record. Append-only.
	AppendNote(ctx context.Context, id RecordID, note TrackingNote) error

	// --- Movement log ---

	// Movements returns all movement entries for an item in write order.
	Movements(ctx context.Context, itemID ItemID) ([]MovementEntry, error)

	// --- The write primitive ---

	// Apply commits a batch atomically. It validates:
	//   - every incremented item exists (ErrItemNotFound)
	//   - no bucket goes negative (InsufficientStockError)
	//   - the operation id is fresh (ErrDuplicateOperation)
	// Movement entries are stamped with the post-apply bucket snapshot.
	// Infrastructure-level commit failures wrap ErrCommitFailed.
	Apply(ctx context.Context, batch *Batch) error
}

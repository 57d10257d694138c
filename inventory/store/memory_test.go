package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/inventory/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedMemoryItem(t *testing.T, m *store.Memory, id inventory.ItemID, onHand int) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, m.PutItem(ctx, &inventory.InventoryItem{
		ID: id, Name: string(id), Type: inventory.ItemProduct,
	}))
	batch := &inventory.Batch{}
	batch.Increment(id, inventory.BucketOnHand, inventory.QuantityFromInt(onHand))
	require.NoError(t, m.Apply(ctx, batch))
}

func onHand(t *testing.T, m *store.Memory, id inventory.ItemID) inventory.Quantity {
	t.Helper()
	item, err := m.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item.Buckets.OnHand
}

// =============================================================================
// APPLY ATOMICITY TESTS
// =============================================================================

func TestMemory_Apply_AllOrNothing(t *testing.T) {
	// GIVEN: Two items, the second short on stock
	// WHEN: A batch debits both, the second beyond its balance
	// THEN: The batch fails and the FIRST item is untouched too

	m := store.NewMemory()
	ctx := context.Background()
	seedMemoryItem(t, m, "a", 10)
	seedMemoryItem(t, m, "b", 1)

	batch := &inventory.Batch{OperationID: "op-1"}
	batch.Increment("a", inventory.BucketOnHand, inventory.QuantityFromInt(-5))
	batch.Increment("b", inventory.BucketOnHand, inventory.QuantityFromInt(-5))

	err := m.Apply(ctx, batch)

	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, inventory.ItemID("b"), insufficient.ItemID)

	assert.True(t, onHand(t, m, "a").Equal(inventory.QuantityFromInt(10)))
	assert.True(t, onHand(t, m, "b").Equal(inventory.QuantityFromInt(1)))
}

func TestMemory_Apply_UnknownItem_NothingCommitted(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedMemoryItem(t, m, "a", 10)

	batch := &inventory.Batch{}
	batch.Increment("a", inventory.BucketOnHand, inventory.QuantityFromInt(-2))
	batch.Increment("ghost", inventory.BucketOnHand, inventory.QuantityFromInt(1))

	err := m.Apply(ctx, batch)
	assert.True(t, inventory.IsNotFound(err))
	assert.True(t, onHand(t, m, "a").Equal(inventory.QuantityFromInt(10)))
}

func TestMemory_Apply_DuplicateOperationID_Rejected(t *testing.T) {
	// Re-applying the same operation id must not double-apply deltas.
	m := store.NewMemory()
	ctx := context.Background()
	seedMemoryItem(t, m, "a", 10)

	batch := &inventory.Batch{OperationID: "op-retry"}
	batch.Increment("a", inventory.BucketOnHand, inventory.QuantityFromInt(-3))
	require.NoError(t, m.Apply(ctx, batch))

	retry := &inventory.Batch{OperationID: "op-retry"}
	retry.Increment("a", inventory.BucketOnHand, inventory.QuantityFromInt(-3))
	err := m.Apply(ctx, retry)

	require.ErrorIs(t, err, inventory.ErrDuplicateOperation)
	assert.True(t, onHand(t, m, "a").Equal(inventory.QuantityFromInt(7)))
}

func TestMemory_Apply_MultipleIncrementsSameItem(t *testing.T) {
	// Increments against the same item accumulate within one batch.
	m := store.NewMemory()
	ctx := context.Background()
	seedMemoryItem(t, m, "a", 10)

	batch := &inventory.Batch{}
	batch.Increment("a", inventory.BucketOnHand, inventory.QuantityFromInt(-4))
	batch.Increment("a", inventory.BucketReserved, inventory.QuantityFromInt(4))
	batch.Increment("a", inventory.BucketOnHand, inventory.QuantityFromInt(-6))
	batch.Increment("a", inventory.BucketReserved, inventory.QuantityFromInt(6))
	require.NoError(t, m.Apply(ctx, batch))

	item, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.True(t, item.Buckets.OnHand.IsZero())
	assert.True(t, item.Buckets.Reserved.Equal(inventory.QuantityFromInt(10)))
}

func TestMemory_Apply_StampsMovementBalance(t *testing.T) {
	// Movement entries carry the post-apply bucket snapshot.
	m := store.NewMemory()
	ctx := context.Background()
	seedMemoryItem(t, m, "a", 10)

	batch := &inventory.Batch{}
	batch.Increment("a", inventory.BucketOnHand, inventory.QuantityFromInt(-4))
	batch.Increment("a", inventory.BucketReserved, inventory.QuantityFromInt(4))
	batch.Movements = append(batch.Movements, inventory.MovementEntry{
		ID: "m-1", ItemID: "a", At: time.Now().UTC(),
		FromBucket: inventory.BucketOnHand, ToBucket: inventory.BucketReserved,
		Quantity: inventory.QuantityFromInt(4),
	})
	require.NoError(t, m.Apply(ctx, batch))

	movements, err := m.Movements(ctx, "a")
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.True(t, movements[0].Balance.OnHand.Equal(inventory.QuantityFromInt(6)))
	assert.True(t, movements[0].Balance.Reserved.Equal(inventory.QuantityFromInt(4)))
}

// =============================================================================
// ITEM METADATA TESTS
// =============================================================================

func TestMemory_PutItem_PreservesBucketsOnUpdate(t *testing.T) {
	// Metadata updates must never write bucket fields; only Apply does.
	m := store.NewMemory()
	ctx := context.Background()
	seedMemoryItem(t, m, "a", 10)

	renamed := &inventory.InventoryItem{ID: "a", Name: "Renamed", Type: inventory.ItemProduct}
	require.NoError(t, m.PutItem(ctx, renamed))

	item, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", item.Name)
	assert.True(t, item.Buckets.OnHand.Equal(inventory.QuantityFromInt(10)))
}

func TestMemory_GetItem_ReturnsCopy(t *testing.T) {
	// Mutating a returned item must not leak into the store.
	m := store.NewMemory()
	ctx := context.Background()
	seedMemoryItem(t, m, "a", 10)

	item, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	item.Name = "mutated"
	item.Buckets.OnHand = inventory.QuantityFromInt(999)

	fresh, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", fresh.Name)
	assert.True(t, fresh.Buckets.OnHand.Equal(inventory.QuantityFromInt(10)))
}

// =============================================================================
// TRACKING RECORD TESTS
// =============================================================================

func TestMemory_ActiveTrackingRecord_IgnoresReplenished(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	now := time.Now().UTC()
	closed := &inventory.TrackingRecord{
		ID: "r-1", ProjectID: "p-1", ItemID: "a",
		Replenished: true, ReplenishedAt: &now,
	}
	open := &inventory.TrackingRecord{ID: "r-2", ProjectID: "p-1", ItemID: "a"}
	require.NoError(t, m.PutTrackingRecord(ctx, closed))
	require.NoError(t, m.PutTrackingRecord(ctx, open))

	active, err := m.ActiveTrackingRecord(ctx, "p-1", "a")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, inventory.RecordID("r-2"), active.ID)

	none, err := m.ActiveTrackingRecord(ctx, "p-2", "a")
	require.NoError(t, err)
	assert.Nil(t, none)
}

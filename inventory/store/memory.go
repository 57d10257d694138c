// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	items      map[inventory.ItemID]*inventory.InventoryItem
	projects   map[inventory.ProjectID]*inventory.Project
	records    map[inventory.RecordID]*inventory.TrackingRecord
	movements  map[inventory.ItemID][]inventory.MovementEntry
	operations map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		items:      make(map[inventory.ItemID]*inventory.InventoryItem),
		projects:   make(map[inventory.ProjectID]*inventory.Project),
		records:    make(map[inventory.RecordID]*inventory.TrackingRecord),
		movements:  make(map[inventory.ItemID][]inventory.MovementEntry),
		operations: make(map[string]bool),
	}
}

// =============================================================================
// ITEMS
// =============================================================================

func (m *Memory) GetItem(_ context.Context, id inventory.ItemID) (*inventory.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, &inventory.NotFoundError{Kind: "item", ID: string(id)}
	}
	return copyItem(item), nil
}

func (m *Memory) ListItems(_ context.Context) ([]*inventory.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*inventory.InventoryItem, 0, len(m.items))
	for _, item := range m.items {
		result = append(result, copyItem(item))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// PutItem creates or updates item identity/metadata. Buckets of an
// existing item are preserved; only Apply mutates them.
func (m *Memory) PutItem(_ context.Context, item *inventory.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyItem(item)
	if existing, ok := m.items[item.ID]; ok {
		stored.Buckets = existing.Buckets
	}
	m.items[item.ID] = stored
	return nil
}

// =============================================================================
// PROJECTS
// =============================================================================

func (m *Memory) GetProject(_ context.Context, id inventory.ProjectID) (*inventory.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	project, ok := m.projects[id]
	if !ok {
		return nil, &inventory.NotFoundError{Kind: "project", ID: string(id)}
	}
	return copyProject(project), nil
}

func (m *Memory) ListProjects(_ context.Context) ([]*inventory.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*inventory.Project, 0, len(m.projects))
	for _, p := range m.projects {
		result = append(result, copyProject(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// =============================================================================
// TRACKING RECORDS
// =============================================================================

func (m *Memory) GetTrackingRecord(_ context.Context, id inventory.RecordID) (*inventory.TrackingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, &inventory.NotFoundError{Kind: "record", ID: string(id)}
	}
	return copyRecord(rec), nil
}

func (m *Memory) ActiveTrackingRecord(_ context.Context, projectID inventory.ProjectID, itemID inventory.ItemID) (*inventory.TrackingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.ProjectID == projectID && rec.ItemID == itemID && rec.Active() {
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

func (m *Memory) ListTrackingRecords(_ context.Context) ([]*inventory.TrackingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*inventory.TrackingRecord, 0, len(m.records))
	for _, rec := range m.records {
		result = append(result, copyRecord(rec))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Replenished != result[j].Replenished {
			return !result[i].Replenished
		}
		return result[i].ReplaceBy.Before(result[j].ReplaceBy)
	})
	return result, nil
}

func (m *Memory) PutTrackingRecord(_ context.Context, rec *inventory.TrackingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.ID] = copyRecord(rec)
	return nil
}

func (m *Memory) AppendNote(_ context.Context, id inventory.RecordID, note inventory.TrackingNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return &inventory.NotFoundError{Kind: "record", ID: string(id)}
	}
	rec.Notes = append(rec.Notes, note)
	return nil
}

// =============================================================================
// MOVEMENT LOG
// =============================================================================

func (m *Memory) Movements(_ context.Context, itemID inventory.ItemID) ([]inventory.MovementEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]inventory.MovementEntry, len(m.movements[itemID]))
	copy(result, m.movements[itemID])
	return result, nil
}

// =============================================================================
// APPLY - The atomic write primitive
// =============================================================================

// Apply validates the whole batch under the write lock, then mutates.
// Validation-before-mutation makes the batch all-or-nothing by
// construction: nothing is touched until every check has passed.
func (m *Memory) Apply(_ context.Context, batch *inventory.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if batch.OperationID != "" && m.operations[batch.OperationID] {
		return inventory.ErrDuplicateOperation
	}

	// Compute resulting buckets per touched item without mutating.
	resulting := make(map[inventory.ItemID]inventory.BucketSet)
	for _, inc := range batch.Increments {
		buckets, ok := resulting[inc.ItemID]
		if !ok {
			item, exists := m.items[inc.ItemID]
			if !exists {
				return &inventory.NotFoundError{Kind: "item", ID: string(inc.ItemID)}
			}
			buckets = item.Buckets
		}
		buckets = buckets.Apply(inc.Bucket, inc.Delta)
		if after := buckets.Get(inc.Bucket); after.IsNegative() {
			return &inventory.InsufficientStockError{
				ItemID:    inc.ItemID,
				Bucket:    inc.Bucket,
				Available: after.Sub(inc.Delta),
				Requested: inc.Delta.Neg(),
			}
		}
		resulting[inc.ItemID] = buckets
	}

	for _, e := range batch.Movements {
		if _, ok := m.items[e.ItemID]; !ok {
			return &inventory.NotFoundError{Kind: "item", ID: string(e.ItemID)}
		}
	}

	// Commit.
	for id, buckets := range resulting {
		m.items[id].Buckets = buckets
	}
	for _, e := range batch.Movements {
		e.Balance = m.items[e.ItemID].Buckets
		m.movements[e.ItemID] = append(m.movements[e.ItemID], e)
	}
	if batch.ProjectPut != nil {
		m.projects[batch.ProjectPut.ID] = copyProject(batch.ProjectPut)
	}
	for _, rec := range batch.TrackingPuts {
		m.records[rec.ID] = copyRecord(rec)
	}
	if batch.OperationID != "" {
		m.operations[batch.OperationID] = true
	}
	return nil
}

// =============================================================================
// COPY HELPERS - Readers never alias internal state
// =============================================================================

func copyItem(item *inventory.InventoryItem) *inventory.InventoryItem {
	out := *item
	out.BOM = append([]inventory.BOMLine(nil), item.BOM...)
	out.MustHaves = append([]inventory.MustHave(nil), item.MustHaves...)
	return &out
}

func copyProject(p *inventory.Project) *inventory.Project {
	out := *p
	out.Lines = append([]inventory.ProjectLine(nil), p.Lines...)
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func copyRecord(rec *inventory.TrackingRecord) *inventory.TrackingRecord {
	out := *rec
	out.Notes = append([]inventory.TrackingNote(nil), rec.Notes...)
	if rec.ReplenishedAt != nil {
		t := *rec.ReplenishedAt
		out.ReplenishedAt = &t
	}
	return &out
}

/*
Package sqlite provides a SQLite-backed implementation of the storage interface.

PURPOSE:
  Implements inventory.Store using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

BUCKET MUTATION:
  Buckets are mutated only inside Apply, which runs one database
  transaction per batch: the touched items' buckets are read inside the
  transaction, the relative increments are applied with exact decimal
  arithmetic, non-negativity is re-validated as the authoritative guard,
  and the new values are written together with the movement entries and
  dependent records. Either everything commits or nothing does.

APPEND-ONLY TABLES:
  movements and tracking_notes have no UPDATE or DELETE paths. The
  applied_operations table records every committed operation id; a
  batch reusing an id is rejected before any write.

QUANTITY STORAGE:
  Quantities are stored as decimal strings (TEXT) and computed in Go
  with shopspring/decimal, never as floats, so replaying the movement
  log reproduces bucket totals exactly.

CONCURRENCY:
  sync.RWMutex around the handle plus WAL mode. A single writer at a
  time; readers don't block each other.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - inventory/store.go: Interface and Batch semantics
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/stock-engine/inventory"
)

// Store implements inventory.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Items: the bucket quadruple lives here. Quantities are decimal
	-- strings; CHECKs are a second line of defense behind Apply's guard.
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		sku TEXT,
		name TEXT NOT NULL,
		item_type TEXT NOT NULL,
		on_hand TEXT NOT NULL DEFAULT '0' CHECK (CAST(on_hand AS NUMERIC) >= 0),
		reserved TEXT NOT NULL DEFAULT '0' CHECK (CAST(reserved AS NUMERIC) >= 0),
		wip TEXT NOT NULL DEFAULT '0' CHECK (CAST(wip AS NUMERIC) >= 0),
		completed TEXT NOT NULL DEFAULT '0' CHECK (CAST(completed AS NUMERIC) >= 0),
		bom_json TEXT,
		cadence_kind TEXT NOT NULL DEFAULT '',
		cadence_n INTEGER NOT NULL DEFAULT 0,
		must_haves_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_type ON items(item_type);

	-- Movements (append-only bucket-transfer audit log)
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id),
		at TEXT NOT NULL,
		from_bucket TEXT NOT NULL,
		to_bucket TEXT NOT NULL,
		quantity TEXT NOT NULL,
		reference TEXT,
		note TEXT,
		balance_json TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_item ON movements(item_id, seq);
	CREATE INDEX IF NOT EXISTS idx_movements_reference ON movements(reference)
		WHERE reference IS NOT NULL;

	-- Projects
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		external_deal_id TEXT,
		status TEXT NOT NULL,
		lines_json TEXT NOT NULL,
		completed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);

	-- Tracking records (replacement cycles; never deleted)
	CREATE TABLE IF NOT EXISTS tracking_records (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		cadence_kind TEXT NOT NULL,
		cadence_n INTEGER NOT NULL,
		completed_at TEXT NOT NULL,
		replace_by TEXT NOT NULL,
		replenished INTEGER NOT NULL DEFAULT 0,
		replenished_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- At most one active record per (project, item).
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tracking_active
		ON tracking_records(project_id, item_id)
		WHERE replenished = 0;
	CREATE INDEX IF NOT EXISTS idx_tracking_replace_by
		ON tracking_records(replenished, replace_by);

	-- Tracking notes (append-only)
	CREATE TABLE IF NOT EXISTS tracking_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT NOT NULL REFERENCES tracking_records(id),
		body TEXT NOT NULL,
		author TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notes_record ON tracking_notes(record_id, id);

	-- Idempotency: every committed batch's operation id
	CREATE TABLE IF NOT EXISTS applied_operations (
		operation_id TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ITEMS
// =============================================================================

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const itemColumns = `id, sku, name, item_type, on_hand, reserved, wip, completed,
	bom_json, cadence_kind, cadence_n, must_haves_json, created_at, updated_at`

func (s *Store) GetItem(ctx context.Context, id inventory.ItemID) (*inventory.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, db queryer, id inventory.ItemID) (*inventory.InventoryItem, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, &inventory.NotFoundError{Kind: "item", ID: string(id)}
	}
	return item, err
}

func (s *Store) ListItems(ctx context.Context) ([]*inventory.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*inventory.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// PutItem creates an item or updates its identity/metadata. Existing
// buckets are never touched here; Apply is the only bucket writer.
func (s *Store) PutItem(ctx context.Context, item *inventory.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bomJSON, _ := json.Marshal(item.BOM)
	mustHavesJSON, _ := json.Marshal(item.MustHaves)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items
			(id, sku, name, item_type, on_hand, reserved, wip, completed,
			 bom_json, cadence_kind, cadence_n, must_haves_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sku = excluded.sku,
			name = excluded.name,
			item_type = excluded.item_type,
			bom_json = excluded.bom_json,
			cadence_kind = excluded.cadence_kind,
			cadence_n = excluded.cadence_n,
			must_haves_json = excluded.must_haves_json,
			updated_at = excluded.updated_at
	`,
		item.ID, item.SKU, item.Name, item.Type,
		item.Buckets.OnHand.String(), item.Buckets.Reserved.String(),
		item.Buckets.WIP.String(), item.Buckets.Completed.String(),
		string(bomJSON), item.Cadence.Kind, item.Cadence.N, string(mustHavesJSON),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func scanItem(row rowScanner) (*inventory.InventoryItem, error) {
	var (
		item                             inventory.InventoryItem
		sku                              sql.NullString
		onHand, reserved, wip, completed string
		bomJSON, mustHavesJSON           sql.NullString
		cadenceKind                      string
		cadenceN                         int
		createdAt, updatedAt             string
	)

	err := row.Scan(
		&item.ID, &sku, &item.Name, &item.Type,
		&onHand, &reserved, &wip, &completed,
		&bomJSON, &cadenceKind, &cadenceN, &mustHavesJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.SKU = sku.String
	item.Buckets = inventory.BucketSet{
		OnHand:    inventory.MustParseQuantity(onHand),
		Reserved:  inventory.MustParseQuantity(reserved),
		WIP:       inventory.MustParseQuantity(wip),
		Completed: inventory.MustParseQuantity(completed),
	}
	item.Cadence = inventory.Cadence{Kind: inventory.CadenceKind(cadenceKind), N: cadenceN}
	if bomJSON.Valid && bomJSON.String != "" {
		json.Unmarshal([]byte(bomJSON.String), &item.BOM)
	}
	if mustHavesJSON.Valid && mustHavesJSON.String != "" {
		json.Unmarshal([]byte(mustHavesJSON.String), &item.MustHaves)
	}
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &item, nil
}

// =============================================================================
// PROJECTS
// =============================================================================

const projectColumns = `id, name, external_deal_id, status, lines_json, completed_at, created_at, updated_at`

func (s *Store) GetProject(ctx context.Context, id inventory.ProjectID) (*inventory.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, &inventory.NotFoundError{Kind: "project", ID: string(id)}
	}
	return project, err
}

func (s *Store) ListProjects(ctx context.Context) ([]*inventory.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*inventory.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(row rowScanner) (*inventory.Project, error) {
	var (
		p                    inventory.Project
		externalDealID       sql.NullString
		linesJSON            string
		completedAt          sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(&p.ID, &p.Name, &externalDealID, &p.Status, &linesJSON, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.ExternalDealID = externalDealID.String
	json.Unmarshal([]byte(linesJSON), &p.Lines)
	if completedAt.Valid && completedAt.String != "" {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		p.CompletedAt = &t
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func upsertProject(ctx context.Context, db queryer, p *inventory.Project) error {
	linesJSON, _ := json.Marshal(p.Lines)
	var completedAt any
	if p.CompletedAt != nil {
		completedAt = p.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projects
			(id, name, external_deal_id, status, lines_json, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			external_deal_id = excluded.external_deal_id,
			status = excluded.status,
			lines_json = excluded.lines_json,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at
	`,
		p.ID, p.Name, p.ExternalDealID, p.Status, string(linesJSON), completedAt,
		p.CreatedAt.UTC().Format(time.RFC3339Nano), p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

// =============================================================================
// TRACKING RECORDS
// =============================================================================

const recordColumns = `id, project_id, item_id, quantity, cadence_kind, cadence_n,
	completed_at, replace_by, replenished, replenished_at, created_at, updated_at`

func (s *Store) GetTrackingRecord(ctx context.Context, id inventory.RecordID) (*inventory.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM tracking_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, &inventory.NotFoundError{Kind: "record", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	rec.Notes, err = s.loadNotes(ctx, id)
	return rec, err
}

func (s *Store) ActiveTrackingRecord(ctx context.Context, projectID inventory.ProjectID, itemID inventory.ItemID) (*inventory.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM tracking_records
		WHERE project_id = ? AND item_id = ? AND replenished = 0
	`, projectID, itemID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Notes, err = s.loadNotes(ctx, rec.ID)
	return rec, err
}

func (s *Store) ListTrackingRecords(ctx context.Context) ([]*inventory.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM tracking_records
		ORDER BY replenished ASC, replace_by ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking records: %w", err)
	}
	defer rows.Close()

	var records []*inventory.TrackingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Notes, err = s.loadNotes(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) PutTrackingRecord(ctx context.Context, rec *inventory.TrackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return upsertRecord(ctx, s.db, rec)
}

func upsertRecord(ctx context.Context, db queryer, rec *inventory.TrackingRecord) error {
	var replenishedAt any
	if rec.ReplenishedAt != nil {
		replenishedAt = rec.ReplenishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO tracking_records
			(id, project_id, item_id, quantity, cadence_kind, cadence_n,
			 completed_at, replace_by, replenished, replenished_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quantity = excluded.quantity,
			cadence_kind = excluded.cadence_kind,
			cadence_n = excluded.cadence_n,
			completed_at = excluded.completed_at,
			replace_by = excluded.replace_by,
			replenished = excluded.replenished,
			replenished_at = excluded.replenished_at,
			updated_at = excluded.updated_at
	`,
		rec.ID, rec.ProjectID, rec.ItemID, rec.Quantity.String(),
		rec.Cadence.Kind, rec.Cadence.N,
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
		rec.ReplaceBy.UTC().Format(time.RFC3339Nano),
		boolToInt(rec.Replenished), replenishedAt,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tracking record: %w", err)
	}
	return nil
}

func scanRecord(row rowScanner) (*inventory.TrackingRecord, error) {
	var (
		rec                    inventory.TrackingRecord
		quantity               string
		cadenceKind            string
		cadenceN               int
		completedAt, replaceBy string
		replenished            int
		replenishedAt          sql.NullString
		createdAt, updatedAt   string
	)

	err := row.Scan(
		&rec.ID, &rec.ProjectID, &rec.ItemID, &quantity,
		&cadenceKind, &cadenceN, &completedAt, &replaceBy,
		&replenished, &replenishedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Quantity = inventory.MustParseQuantity(quantity)
	rec.Cadence = inventory.Cadence{Kind: inventory.CadenceKind(cadenceKind), N: cadenceN}
	rec.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
	rec.ReplaceBy, _ = time.Parse(time.RFC3339Nano, replaceBy)
	rec.Replenished = replenished != 0
	if replenishedAt.Valid && replenishedAt.String != "" {
		t, _ := time.Parse(time.RFC3339Nano, replenishedAt.String)
		rec.ReplenishedAt = &t
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

func (s *Store) AppendNote(ctx context.Context, id inventory.RecordID, note inventory.TrackingNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracking_records WHERE id = ?`, id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return &inventory.NotFoundError{Kind: "record", ID: string(id)}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_notes (record_id, body, author, created_at)
		VALUES (?, ?, ?, ?)
	`, id, note.Body, note.Author, note.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append note: %w", err)
	}
	return nil
}

func (s *Store) loadNotes(ctx context.Context, id inventory.RecordID) ([]inventory.TrackingNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body, author, created_at FROM tracking_notes
		WHERE record_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []inventory.TrackingNote
	for rows.Next() {
		var (
			note      inventory.TrackingNote
			author    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&note.Body, &author, &createdAt); err != nil {
			return nil, err
		}
		note.Author = author.String
		note.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// =============================================================================
// MOVEMENT LOG
// =============================================================================

func (s *Store) Movements(ctx context.Context, itemID inventory.ItemID) ([]inventory.MovementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, at, from_bucket, to_bucket, quantity, reference, note, balance_json
		FROM movements WHERE item_id = ? ORDER BY seq
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var entries []inventory.MovementEntry
	for rows.Next() {
		var (
			e               inventory.MovementEntry
			at              string
			quantity        string
			reference, note sql.NullString
			rawBalance      string
		)
		if err := rows.Scan(&e.ID, &e.ItemID, &at, &e.FromBucket, &e.ToBucket, &quantity, &reference, &note, &rawBalance); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Quantity = inventory.MustParseQuantity(quantity)
		e.Reference = reference.String
		e.Note = note.String
		e.Balance = parseBalance(rawBalance)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// balanceJSON is the serialized post-apply bucket snapshot on a
// movement row. Decimal strings, same representation as the items table.
type balanceJSON struct {
	OnHand    string `json:"onHand"`
	Reserved  string `json:"reserved"`
	WIP       string `json:"wip"`
	Completed string `json:"completed"`
}

func formatBalance(b inventory.BucketSet) string {
	out, _ := json.Marshal(balanceJSON{
		OnHand:    b.OnHand.String(),
		Reserved:  b.Reserved.String(),
		WIP:       b.WIP.String(),
		Completed: b.Completed.String(),
	})
	return string(out)
}

func parseBalance(raw string) inventory.BucketSet {
	var b balanceJSON
	json.Unmarshal([]byte(raw), &b)
	return inventory.BucketSet{
		OnHand:    inventory.MustParseQuantity(b.OnHand),
		Reserved:  inventory.MustParseQuantity(b.Reserved),
		WIP:       inventory.MustParseQuantity(b.WIP),
		Completed: inventory.MustParseQuantity(b.Completed),
	}
}

// =============================================================================
// APPLY - The atomic write primitive
// =============================================================================

// Apply commits a batch in one database transaction. Bucket reads,
// increment arithmetic and non-negativity checks all happen inside the
// transaction, so a concurrent batch sees either all of this one's
// effects or none of them.
func (s *Store) Apply(ctx context.Context, batch *inventory.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", inventory.ErrCommitFailed, err)
	}
	defer tx.Rollback()

	// Idempotency first: a replayed operation must not touch anything.
	if batch.OperationID != "" {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO applied_operations (operation_id, applied_at) VALUES (?, ?)`,
			batch.OperationID, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			if isUniqueConstraintError(err) {
				return inventory.ErrDuplicateOperation
			}
			return fmt.Errorf("%w: record operation: %v", inventory.ErrCommitFailed, err)
		}
	}

	// Load touched items inside the transaction and apply increments
	// with exact decimal arithmetic.
	buckets := make(map[inventory.ItemID]inventory.BucketSet)
	load := func(id inventory.ItemID) (inventory.BucketSet, error) {
		if b, ok := buckets[id]; ok {
			return b, nil
		}
		item, err := getItem(ctx, tx, id)
		if err != nil {
			return inventory.BucketSet{}, err
		}
		buckets[id] = item.Buckets
		return item.Buckets, nil
	}

	for _, inc := range batch.Increments {
		b, err := load(inc.ItemID)
		if err != nil {
			return err
		}
		b = b.Apply(inc.Bucket, inc.Delta)
		if after := b.Get(inc.Bucket); after.IsNegative() {
			return &inventory.InsufficientStockError{
				ItemID:    inc.ItemID,
				Bucket:    inc.Bucket,
				Available: after.Sub(inc.Delta),
				Requested: inc.Delta.Neg(),
			}
		}
		buckets[inc.ItemID] = b
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for id, b := range buckets {
		_, err := tx.ExecContext(ctx, `
			UPDATE items SET on_hand = ?, reserved = ?, wip = ?, completed = ?, updated_at = ?
			WHERE id = ?
		`, b.OnHand.String(), b.Reserved.String(), b.WIP.String(), b.Completed.String(), now, id)
		if err != nil {
			return fmt.Errorf("%w: update buckets: %v", inventory.ErrCommitFailed, err)
		}
	}

	for _, e := range batch.Movements {
		balance, err := load(e.ItemID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO movements
				(id, item_id, at, from_bucket, to_bucket, quantity, reference, note, balance_json, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
				COALESCE((SELECT MAX(seq) FROM movements), 0) + 1)
		`,
			e.ID, e.ItemID, e.At.UTC().Format(time.RFC3339Nano),
			e.FromBucket, e.ToBucket, e.Quantity.String(),
			nullString(e.Reference), nullString(e.Note), formatBalance(balance),
		)
		if err != nil {
			return fmt.Errorf("%w: insert movement: %v", inventory.ErrCommitFailed, err)
		}
	}

	if batch.ProjectPut != nil {
		if err := upsertProject(ctx, tx, batch.ProjectPut); err != nil {
			return fmt.Errorf("%w: %v", inventory.ErrCommitFailed, err)
		}
	}
	for _, rec := range batch.TrackingPuts {
		if err := upsertRecord(ctx, tx, rec); err != nil {
			return fmt.Errorf("%w: %v", inventory.ErrCommitFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", inventory.ErrCommitFailed, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

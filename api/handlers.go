/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the stock engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Items:
    GET    /api/items                       List the item catalog
    POST   /api/items                       Create or update an item
    GET    /api/items/{id}                  Get one item with buckets
    POST   /api/items/{id}/receipts        Purchase receipt (on-hand credit)
    POST   /api/items/{id}/adjustments     Administrative on-hand override
    GET    /api/items/{id}/movements       Movement log for the item
    GET    /api/items/{id}/reconciliation  Replay movements vs stored buckets

  Projects:
    GET    /api/projects                    List projects
    POST   /api/projects                    Create (immediately reserves stock)
    GET    /api/projects/{id}               Get one project
    POST   /api/projects/{id}/transition   Move to a target status

  Manufacturing:
    POST   /api/manufacturing/runs          Manufacture a sub-assembly

  Tracking:
    GET    /api/tracking                    List tracking records
    GET    /api/tracking/{id}               Get one record with notes
    POST   /api/tracking/{id}/replenish    Close the cycle, restock, open next
    POST   /api/tracking/{id}/notes        Append a note

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid transitions
  - 404: Item/project/record not found
  - 409: Insufficient stock, duplicate operation, already replenished
  - 500: Internal errors, commit failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. It depends on the
// Store interface, so both the SQLite and memory stores work behind it.
type Handler struct {
	Store        inventory.Store
	Ledger       *inventory.Ledger
	Projects     *inventory.ProjectService
	Manufacturer *inventory.Manufacturer
	Tracker      *inventory.Tracker
}

// NewHandler wires the full service stack on top of one store.
func NewHandler(store inventory.Store) *Handler {
	ledger := inventory.NewLedger(store)
	tracker := inventory.NewTracker(store, ledger)
	return &Handler{
		Store:        store,
		Ledger:       ledger,
		Projects:     inventory.NewProjectService(store, ledger, tracker),
		Manufacturer: inventory.NewManufacturer(store, ledger),
		Tracker:      tracker,
	}
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// ListItems returns the full item catalog with bucket totals.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetItem returns a single item.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := inventory.ItemID(chi.URLParam(r, "id"))

	item, err := h.Store.GetItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// CreateItem creates or updates an item's identity and metadata. The
// on_hand field seeds initial stock for imports only; buckets of an
// existing item are never touched here.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	item := &inventory.InventoryItem{
		ID:        inventory.ItemID(req.ID),
		SKU:       req.SKU,
		Name:      req.Name,
		Type:      inventory.NormalizeItemType(req.Type),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	for _, bom := range req.BOM {
		perUnit, err := inventory.ParseQuantity(bom.PerUnit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid BOM per-unit quantity", err)
			return
		}
		line := inventory.BOMLine{ComponentID: inventory.ItemID(bom.ComponentID), PerUnit: perUnit}
		if bom.UnitCost != "" {
			cost, err := inventory.ParseQuantity(bom.UnitCost)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid BOM unit cost", err)
				return
			}
			line.UnitCost = cost.Value
		}
		item.BOM = append(item.BOM, line)
	}
	if req.Cadence != nil {
		item.Cadence = inventory.Cadence{Kind: inventory.CadenceKind(req.Cadence.Kind), N: req.Cadence.N}
		if item.Cadence.IsZero() {
			writeError(w, http.StatusBadRequest, "Invalid cadence", nil)
			return
		}
	}
	for _, mh := range req.MustHaves {
		perUnit, err := inventory.ParseQuantity(mh.PerUnit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid must-have quantity", err)
			return
		}
		item.MustHaves = append(item.MustHaves, inventory.MustHave{
			ItemID:  inventory.ItemID(mh.ItemID),
			PerUnit: perUnit,
		})
	}

	if err := h.Store.PutItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store item", err)
		return
	}

	// Initial stock seed goes through the ledger so it shows in the log.
	if req.OnHand != "" {
		seed, err := inventory.ParseQuantity(req.OnHand)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid on-hand seed", err)
			return
		}
		if seed.IsPositive() {
			if err := h.Ledger.ReceivePurchase(r.Context(), item.ID, seed, "initial import"); err != nil {
				writeDomainError(w, "Failed to seed stock", err)
				return
			}
		}
	}

	stored, err := h.Store.GetItem(r.Context(), item.ID)
	if err != nil {
		writeDomainError(w, "Failed to reload item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(stored))
}

// ReceivePurchase credits on-hand stock for a received purchase.
func (h *Handler) ReceivePurchase(w http.ResponseWriter, r *http.Request) {
	id := inventory.ItemID(chi.URLParam(r, "id"))

	var req ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	qty, err := inventory.ParseQuantity(req.Quantity)
	if err != nil || !qty.IsPositive() {
		writeError(w, http.StatusBadRequest, "Receipt quantity must be a positive decimal", err)
		return
	}

	if err := h.Ledger.ReceivePurchase(r.Context(), id, qty, req.Reference); err != nil {
		writeDomainError(w, "Failed to receive purchase", err)
		return
	}

	item, err := h.Store.GetItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reload item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// AdjustOnHand applies an administrative on-hand correction.
func (h *Handler) AdjustOnHand(w http.ResponseWriter, r *http.Request) {
	id := inventory.ItemID(chi.URLParam(r, "id"))

	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	delta, err := inventory.ParseQuantity(req.Delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid adjustment delta", err)
		return
	}

	if err := h.Ledger.AdjustOnHand(r.Context(), id, delta, req.Reason); err != nil {
		writeDomainError(w, "Failed to adjust stock", err)
		return
	}

	item, err := h.Store.GetItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reload item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// ListMovements returns the movement log for one item, oldest first.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id := inventory.ItemID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetItem(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get item", err)
		return
	}
	entries, err := h.Store.Movements(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list movements", err)
		return
	}

	dtos := make([]MovementDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toMovementDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Reconcile replays the movement log against stored buckets.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := inventory.ItemID(chi.URLParam(r, "id"))

	report, err := h.Ledger.Reconcile(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reconcile", err)
		return
	}

	writeJSON(w, http.StatusOK, ReconciliationDTO{
		ItemID:   string(report.ItemID),
		Stored:   toBucketsDTO(report.Stored),
		Replayed: toBucketsDTO(report.Replayed),
		Entries:  report.Entries,
		InSync:   report.InSync,
	})
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all projects, oldest first.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProject returns a single project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProjectID(chi.URLParam(r, "id"))

	project, err := h.Store.GetProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(project))
}

// CreateProject creates a project in the reserved state, debiting
// on-hand and crediting reserved for every line and companion.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	input := inventory.CreateProjectInput{
		Name:           req.Name,
		ExternalDealID: req.ExternalDealID,
	}
	for _, line := range req.Lines {
		qty, err := inventory.ParseQuantity(line.Quantity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid line quantity", err)
			return
		}
		input.Lines = append(input.Lines, inventory.LineInput{
			ItemID:   inventory.ItemID(line.ItemID),
			Quantity: qty,
		})
	}

	project, err := h.Projects.Create(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(project))
}

// TransitionProject moves a project to the requested status.
func (h *Handler) TransitionProject(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProjectID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	project, err := h.Projects.Transition(r.Context(), id, inventory.ProjectStatus(req.Status))
	if err != nil {
		writeDomainError(w, "Failed to transition project", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(project))
}

// =============================================================================
// MANUFACTURING HANDLERS
// =============================================================================

// Manufacture runs a sub-assembly build: consumes component on-hand
// stock per the BOM and credits the assembly's on-hand bucket.
func (h *Handler) Manufacture(w http.ResponseWriter, r *http.Request) {
	var req ManufactureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AssemblyID == "" {
		writeError(w, http.StatusBadRequest, "assembly_id is required", nil)
		return
	}
	if req.Units <= 0 {
		writeError(w, http.StatusBadRequest, "units must be positive", nil)
		return
	}

	run, err := h.Manufacturer.Manufacture(r.Context(), inventory.ItemID(req.AssemblyID), req.Units)
	if err != nil {
		writeDomainError(w, "Failed to manufacture", err)
		return
	}

	dto := ManufacturingRunDTO{
		ID:         run.ID,
		AssemblyID: string(run.AssemblyID),
		Units:      run.Units,
		At:         run.At.Format(time.RFC3339),
	}
	for _, c := range run.Consumed {
		dto.Consumed = append(dto.Consumed, ConsumptionLineDTO{
			ComponentID: string(c.ComponentID),
			Required:    c.Required.String(),
		})
	}
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// TRACKING HANDLERS
// =============================================================================

// ListTrackingRecords returns all tracking records, active and due
// records first.
func (h *Handler) ListTrackingRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListTrackingRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tracking records", err)
		return
	}

	dtos := make([]TrackingRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toTrackingRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTrackingRecord returns a single tracking record with its notes.
func (h *Handler) GetTrackingRecord(w http.ResponseWriter, r *http.Request) {
	id := inventory.RecordID(chi.URLParam(r, "id"))

	rec, err := h.Store.GetTrackingRecord(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get tracking record", err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackingRecordDTO(rec))
}

// Replenish closes a due tracking record, restocks on-hand, and returns
// the next cycle's record.
func (h *Handler) Replenish(w http.ResponseWriter, r *http.Request) {
	id := inventory.RecordID(chi.URLParam(r, "id"))

	var req ReplenishRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var nextDue *time.Time
	if req.NextDue != "" {
		t, err := time.Parse(time.RFC3339, req.NextDue)
		if err != nil {
			writeError(w, http.StatusBadRequest, "next_due must be RFC 3339", err)
			return
		}
		nextDue = &t
	}

	next, err := h.Tracker.Replenish(r.Context(), id, nextDue)
	if err != nil {
		writeDomainError(w, "Failed to replenish", err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackingRecordDTO(next))
}

// AddTrackingNote appends a note to a tracking record.
func (h *Handler) AddTrackingNote(w http.ResponseWriter, r *http.Request) {
	id := inventory.RecordID(chi.URLParam(r, "id"))

	var req AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required", nil)
		return
	}

	if err := h.Tracker.AddNote(r.Context(), id, req.Body, req.Author); err != nil {
		writeDomainError(w, "Failed to add note", err)
		return
	}

	rec, err := h.Store.GetTrackingRecord(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reload record", err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackingRecordDTO(rec))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP statuses: not-found to
// 404, validation and transition errors to 400, stock and idempotency
// conflicts to 409, everything else to 500.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case inventory.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, inventory.ErrInvalidTransition),
		errors.Is(err, inventory.ErrNoBillOfMaterials),
		errors.Is(err, inventory.ErrNoCadence):
		status = http.StatusBadRequest
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrDuplicateOperation),
		errors.Is(err, inventory.ErrAlreadyReplenished):
		status = http.StatusConflict
	case inventory.IsClientError(err):
		status = http.StatusBadRequest
	}
	writeError(w, status, message, err)
}

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-engine/api"
	"github.com/warp/stock-engine/inventory/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := api.NewHandler(store.NewMemory())
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createItem(t *testing.T, server *httptest.Server, id, itemType, onHand string) api.ItemDTO {
	t.Helper()
	var item api.ItemDTO
	resp := doJSON(t, http.MethodPost, server.URL+"/api/items", api.CreateItemRequest{
		ID: id, Name: id, Type: itemType, OnHand: onHand,
	}, &item)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return item
}

// =============================================================================
// ITEM ENDPOINT TESTS
// =============================================================================

func TestAPI_CreateAndGetItem(t *testing.T) {
	server := newTestServer(t)

	created := createItem(t, server, "widget-a", "product", "10")
	assert.Equal(t, "10", created.Buckets.OnHand)
	assert.Equal(t, "product", created.Type)

	var fetched api.ItemDTO
	resp := doJSON(t, http.MethodGet, server.URL+"/api/items/widget-a", nil, &fetched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "widget-a", fetched.ID)
	assert.Equal(t, "10", fetched.Total)
}

func TestAPI_GetItem_NotFound(t *testing.T) {
	server := newTestServer(t)

	var errResp api.ErrorResponse
	resp := doJSON(t, http.MethodGet, server.URL+"/api/items/ghost", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, errResp.Error)
}

func TestAPI_ReceivePurchase(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "widget-a", "product", "7")

	var item api.ItemDTO
	resp := doJSON(t, http.MethodPost, server.URL+"/api/items/widget-a/receipts",
		api.ReceiptRequest{Quantity: "5", Reference: "PO-1001"}, &item)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12", item.Buckets.OnHand)
}

func TestAPI_ReceivePurchase_BadQuantity(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "widget-a", "product", "7")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/items/widget-a/receipts",
		api.ReceiptRequest{Quantity: "-1"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_AdjustOnHand_Conflict(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "widget-a", "product", "2")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/items/widget-a/adjustments",
		api.AdjustmentRequest{Delta: "-5", Reason: "shrinkage"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_MovementsAndReconciliation(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "widget-a", "product", "10")

	var movements []api.MovementDTO
	resp := doJSON(t, http.MethodGet, server.URL+"/api/items/widget-a/movements", nil, &movements)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, movements, 1) // the import seed
	assert.Equal(t, "external", movements[0].FromBucket)
	assert.Equal(t, "10", movements[0].Balance.OnHand)

	var report api.ReconciliationDTO
	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/widget-a/reconciliation", nil, &report)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, report.InSync)
	assert.Equal(t, 1, report.Entries)
}

// =============================================================================
// PROJECT ENDPOINT TESTS
// =============================================================================

func TestAPI_ProjectLifecycle(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "widget-a", "product", "10")

	var project api.ProjectDTO
	resp := doJSON(t, http.MethodPost, server.URL+"/api/projects", api.CreateProjectRequest{
		Name:  "Acme rollout",
		Lines: []api.LineInputRequest{{ItemID: "widget-a", Quantity: "3"}},
	}, &project)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "reserved", project.Status)
	require.Len(t, project.Lines, 1)

	transition := func(status string) api.ProjectDTO {
		var updated api.ProjectDTO
		url := fmt.Sprintf("%s/api/projects/%s/transition", server.URL, project.ID)
		resp := doJSON(t, http.MethodPost, url, api.TransitionRequest{Status: status}, &updated)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return updated
	}

	updated := transition("wip")
	assert.Equal(t, "wip", updated.Status)

	updated = transition("complete")
	assert.Equal(t, "complete", updated.Status)
	assert.NotNil(t, updated.CompletedAt)

	var item api.ItemDTO
	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/widget-a", nil, &item)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "7", item.Buckets.OnHand)
	assert.Equal(t, "3", item.Buckets.Completed)
}

func TestAPI_CreateProject_InsufficientStock_Conflict(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "widget-a", "product", "2")

	var errResp api.ErrorResponse
	resp := doJSON(t, http.MethodPost, server.URL+"/api/projects", api.CreateProjectRequest{
		Name:  "Overcommitted",
		Lines: []api.LineInputRequest{{ItemID: "widget-a", Quantity: "5"}},
	}, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, errResp.Details, "insufficient stock")
}

func TestAPI_TransitionProject_InvalidStatus(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "widget-a", "product", "10")

	var project api.ProjectDTO
	resp := doJSON(t, http.MethodPost, server.URL+"/api/projects", api.CreateProjectRequest{
		Name:  "Bad target",
		Lines: []api.LineInputRequest{{ItemID: "widget-a", Quantity: "1"}},
	}, &project)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	url := fmt.Sprintf("%s/api/projects/%s/transition", server.URL, project.ID)
	resp = doJSON(t, http.MethodPost, url, api.TransitionRequest{Status: "archived"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// MANUFACTURING ENDPOINT TESTS
// =============================================================================

func TestAPI_Manufacture(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "c1", "component", "10")

	var assembly api.ItemDTO
	resp := doJSON(t, http.MethodPost, server.URL+"/api/items", api.CreateItemRequest{
		ID: "asm", Name: "Assembly", Type: "subAssembly",
		BOM: []api.BOMLineDTO{{ComponentID: "c1", PerUnit: "2"}},
	}, &assembly)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run api.ManufacturingRunDTO
	resp = doJSON(t, http.MethodPost, server.URL+"/api/manufacturing/runs",
		api.ManufactureRequest{AssemblyID: "asm", Units: 3}, &run)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, run.Consumed, 1)
	assert.Equal(t, "6", run.Consumed[0].Required)

	var item api.ItemDTO
	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/c1", nil, &item)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "4", item.Buckets.OnHand)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/asm", nil, &item)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", item.Buckets.OnHand)
}

func TestAPI_Manufacture_InsufficientComponents_Conflict(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, "c1", "component", "1")

	resp := doJSON(t, http.MethodPost, server.URL+"/api/items", api.CreateItemRequest{
		ID: "asm", Name: "Assembly", Type: "subAssembly",
		BOM: []api.BOMLineDTO{{ComponentID: "c1", PerUnit: "2"}},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, server.URL+"/api/manufacturing/runs",
		api.ManufactureRequest{AssemblyID: "asm", Units: 1}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// =============================================================================
// TRACKING ENDPOINT TESTS
// =============================================================================

func TestAPI_TrackingReplenishCycle(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/items", api.CreateItemRequest{
		ID: "widget-a", Name: "WidgetA", Type: "product", OnHand: "10",
		Cadence: &api.CadenceDTO{Kind: "months", N: 12},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var project api.ProjectDTO
	resp = doJSON(t, http.MethodPost, server.URL+"/api/projects", api.CreateProjectRequest{
		Name:  "Tracked",
		Lines: []api.LineInputRequest{{ItemID: "widget-a", Quantity: "5"}},
	}, &project)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	url := fmt.Sprintf("%s/api/projects/%s/transition", server.URL, project.ID)
	resp = doJSON(t, http.MethodPost, url, api.TransitionRequest{Status: "complete"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []api.TrackingRecordDTO
	resp = doJSON(t, http.MethodGet, server.URL+"/api/tracking", nil, &records)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, "5", record.Quantity)
	assert.False(t, record.Replenished)

	var next api.TrackingRecordDTO
	url = fmt.Sprintf("%s/api/tracking/%s/replenish", server.URL, record.ID)
	resp = doJSON(t, http.MethodPost, url, nil, &next)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, record.ID, next.ID)
	assert.False(t, next.Replenished)

	// Replenishing twice is a conflict.
	resp = doJSON(t, http.MethodPost, url, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Stock came back: 10 - 5 reserved + 5 replenished.
	var item api.ItemDTO
	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/widget-a", nil, &item)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10", item.Buckets.OnHand)
	assert.Equal(t, "5", item.Buckets.Completed)
}

func TestAPI_TrackingNotes(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/items", api.CreateItemRequest{
		ID: "widget-a", Name: "WidgetA", Type: "product", OnHand: "10",
		Cadence: &api.CadenceDTO{Kind: "perYear", N: 2},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var project api.ProjectDTO
	resp = doJSON(t, http.MethodPost, server.URL+"/api/projects", api.CreateProjectRequest{
		Name:  "Noted",
		Lines: []api.LineInputRequest{{ItemID: "widget-a", Quantity: "1"}},
	}, &project)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	url := fmt.Sprintf("%s/api/projects/%s/transition", server.URL, project.ID)
	resp = doJSON(t, http.MethodPost, url, api.TransitionRequest{Status: "complete"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []api.TrackingRecordDTO
	resp = doJSON(t, http.MethodGet, server.URL+"/api/tracking", nil, &records)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, records, 1)

	var updated api.TrackingRecordDTO
	url = fmt.Sprintf("%s/api/tracking/%s/notes", server.URL, records[0].ID)
	resp = doJSON(t, http.MethodPost, url, api.AddNoteRequest{Body: "customer called", Author: "sam"}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, updated.Notes, 1)
	assert.Equal(t, "customer called", updated.Notes[0].Body)

	resp = doJSON(t, http.MethodPost, url, api.AddNoteRequest{Body: ""}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gelchrist-coder/gel-invent/internal/adapter/api"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/api/apitest"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/session"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/storage"
	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
	"github.com/gelchrist-coder/gel-invent/internal/core/event"
	"github.com/gelchrist-coder/gel-invent/internal/core/service"
)

type testApp struct {
	remote  *apitest.Server
	bus     *event.Bus
	session *session.State
	cache   *service.ProductCache
	outbox  *service.SaleOutbox
	engine  *service.SyncEngine
	router  *gin.Engine
}

func newTestApp(t *testing.T, online bool) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	remote := apitest.NewServer("token")
	t.Cleanup(remote.Close)
	remote.SetProducts("b1", []domain.Product{{ID: 1, SKU: "A-1", Name: "Soap", CurrentStock: domain.QuantityFromInt(10)}})

	kv := storage.NewMemoryAdapter()
	bus := event.NewBus(nil)
	state := session.NewState(bus, "b1", online)
	cache := service.NewProductCache(kv, state, nil)
	outbox := service.NewSaleOutbox(kv, state, bus, nil)
	engine := service.NewSyncEngine(api.NewClient(remote.URL, "token", time.Second), outbox, cache, state, bus, service.EngineOptions{})
	t.Cleanup(engine.Close)

	router := gin.New()
	NewHTTPHandler(state, engine, service.NewCheckout(engine), cache, outbox).Register(router)

	return &testApp{
		remote:  remote,
		bus:     bus,
		session: state,
		cache:   cache,
		outbox:  outbox,
		engine:  engine,
		router:  router,
	}
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func saleBody(productID int64, qty string) map[string]any {
	return map[string]any{
		"product_id":     productID,
		"quantity":       qty,
		"unit_price":     "2.50",
		"total_price":    "5.00",
		"payment_method": "cash",
	}
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp(t, true)
	rec := app.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmitSales_OfflineQueuesAndProjects(t *testing.T) {
	app := newTestApp(t, false)
	ctx := context.Background()
	app.cache.CacheProducts(ctx, []domain.Product{{ID: 1, SKU: "A-1", Name: "Soap", CurrentStock: domain.QuantityFromInt(10)}}, domain.ActiveBranch())

	rec := app.do(t, http.MethodPost, "/api/v1/sales", []any{saleBody(1, "2"), saleBody(1, "3")})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Queued, 2)
	assert.Empty(t, resp.Confirmed)
	assert.Equal(t, "2 sales pending sync", resp.Message)

	rec = app.do(t, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var products ProductsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products.Products, 1)
	assert.Equal(t, "5", products.Products[0].CurrentStock.String())
	assert.Equal(t, 0, app.remote.SaleCount())
}

func TestSubmitSales_OnlineConfirms(t *testing.T) {
	app := newTestApp(t, true)

	rec := app.do(t, http.MethodPost, "/api/v1/sales", []any{saleBody(1, "4")})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Confirmed, 1)
	assert.Empty(t, resp.Queued)
	assert.Len(t, app.remote.Sales("b1"), 1)

	// The confirmed checkout reloaded the catalog from the backend.
	products, ok := app.cache.LoadCachedProducts(context.Background(), domain.ActiveBranch())
	require.True(t, ok)
	assert.Equal(t, "6", products[0].CurrentStock.String())
}

func TestSubmitSales_Validation(t *testing.T) {
	app := newTestApp(t, true)

	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPost, "/api/v1/sales", []any{}).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPost, "/api/v1/sales", []any{saleBody(1, "abc")}).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPost, "/api/v1/sales", []any{saleBody(1, "0")}).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPost, "/api/v1/sales", []any{saleBody(1, "1e50000000")}).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPost, "/api/v1/sales", map[string]any{"x": 1}).Code)
}

func TestConnectivity_ReconnectDrainsOutbox(t *testing.T) {
	app := newTestApp(t, false)
	app.do(t, http.MethodPost, "/api/v1/sales", []any{saleBody(1, "1")})

	rec := app.do(t, http.MethodGet, "/api/v1/outbox/count", nil)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = app.do(t, http.MethodPut, "/api/v1/connectivity", map[string]any{"online": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var status service.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Online)
	assert.Equal(t, 0, status.Pending)
	assert.Empty(t, status.Notice)
	assert.Equal(t, 1, app.remote.SaleCount())

	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPut, "/api/v1/connectivity", map[string]any{}).Code)
}

func TestSyncNow(t *testing.T) {
	app := newTestApp(t, true)
	app.outbox.EnqueueSales(context.Background(), []domain.SalePayload{{
		ProductID: 1, Quantity: domain.QuantityFromInt(1), ClientSaleID: "queued-1",
	}}, domain.ActiveBranch())

	app.remote.FailWith(http.StatusBadGateway)
	rec := app.do(t, http.MethodPost, "/api/v1/sync", nil)
	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Attempted)
	assert.Equal(t, 1, resp.Remaining)
	assert.NotEmpty(t, resp.Message)

	app.remote.FailWith(0)
	rec = app.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Confirmed)
	assert.Equal(t, 0, resp.Remaining)

	rec = app.do(t, http.MethodGet, "/api/v1/sales/recent", nil)
	assert.Contains(t, rec.Body.String(), "queued-1")
}

func TestOutboxAdministration(t *testing.T) {
	app := newTestApp(t, false)
	entries := app.outbox.EnqueueSales(context.Background(), []domain.SalePayload{
		{ProductID: 1, Quantity: domain.QuantityFromInt(1)},
		{ProductID: 1, Quantity: domain.QuantityFromInt(2)},
	}, domain.ActiveBranch())

	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, "/api/v1/outbox/"+entries[0].ID, nil).Code)

	var listed []domain.OutboxEntry
	rec := app.do(t, http.MethodGet, "/api/v1/outbox", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, entries[1].ID, listed[0].ID)

	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, "/api/v1/outbox", nil).Code)
	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, "/api/v1/outbox", nil).Code)
	assert.JSONEq(t, `{"count":0}`, app.do(t, http.MethodGet, "/api/v1/outbox/count", nil).Body.String())
}

func TestCachedProducts_BranchSelection(t *testing.T) {
	app := newTestApp(t, true)

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/v1/products?branch=missing-branch", nil).Code)

	rec := app.do(t, http.MethodPut, "/api/v1/branch", map[string]any{"branch_id": "b1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Switching to a different branch while online refreshes its catalog.
	app.session.SetActiveBranch("b2")
	app.remote.SetProducts("b1", nil)
	app.do(t, http.MethodPut, "/api/v1/branch", map[string]any{"branch_id": "b1"})

	rec = app.do(t, http.MethodGet, "/api/v1/products?branch=b1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var products ProductsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	assert.Equal(t, "b1", products.BranchID)
	assert.Empty(t, products.Products)
}

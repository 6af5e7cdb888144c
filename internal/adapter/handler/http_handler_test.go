package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/pos-core/internal/adapter/messaging"
	"github.com/rl1809/pos-core/internal/adapter/storage"
	"github.com/rl1809/pos-core/internal/core/service"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestCore(t *testing.T) *service.Core {
	t.Helper()
	return service.New(
		storage.NewMemoryStore(),
		storage.NewMemoryLocker(time.Second),
		messaging.NewLogPublisher(zap.NewNop()),
		service.WithClock(func() time.Time { return testNow }),
		service.WithRetry(3, time.Millisecond),
	)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHTTPHandler(newTestCore(t), zap.NewNop()).Register(r)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, r http.Handler, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func createProduct(t *testing.T, r http.Handler, category string, price string, stock, threshold int) ProductResponse {
	t.Helper()
	code, env := call(t, r, http.MethodPost, "/api/products", map[string]any{
		"name":              category + " item",
		"category":          category,
		"price":             price,
		"cost_price":        "1",
		"initial_stock":     stock,
		"reorder_threshold": threshold,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	return decode[ProductResponse](t, env)
}

func createOrder(t *testing.T, r http.Handler) OrderResponse {
	t.Helper()
	code, env := call(t, r, http.MethodPost, "/api/orders", nil)
	require.Equal(t, http.StatusCreated, code, env.Message)
	return decode[OrderResponse](t, env)
}

func TestHTTPHandler_HealthCheck(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHTTPHandler_Products(t *testing.T) {
	r := newTestRouter(t)

	p := createProduct(t, r, "bakery", "2.50", 10, 3)
	assert.Equal(t, 10, p.StockQuantity)
	assert.True(t, decimal.RequireFromString("2.50").Equal(p.Price))

	code, env := call(t, r, http.MethodGet, "/api/products/"+p.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, p.ID, decode[ProductResponse](t, env).ID)

	code, env = call(t, r, http.MethodPut, "/api/products/"+p.ID+"/price", map[string]any{"price": "3"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.True(t, decimal.NewFromInt(3).Equal(decode[ProductResponse](t, env).Price))

	code, env = call(t, r, http.MethodGet, "/api/products?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]ProductResponse](t, env), 1)
}

func TestHTTPHandler_ProductErrors(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"malformed body", http.MethodPost, "/api/products", "{", http.StatusBadRequest, "bad_request"},
		{"missing name", http.MethodPost, "/api/products", map[string]any{"price": "1"}, http.StatusBadRequest, "bad_request"},
		{"negative price", http.MethodPost, "/api/products", map[string]any{"name": "x", "price": "-1"}, http.StatusBadRequest, "invalid_amount"},
		{"negative stock", http.MethodPost, "/api/products", map[string]any{"name": "x", "initial_stock": -1}, http.StatusBadRequest, "invalid_quantity"},
		{"unknown product", http.MethodGet, "/api/products/missing", nil, http.StatusNotFound, "not_found"},
		{"bad limit", http.MethodGet, "/api/products?limit=abc", nil, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := call(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}
}

func TestHTTPHandler_StockMovements(t *testing.T) {
	r := newTestRouter(t)
	p := createProduct(t, r, "drinks", "1", 5, 2)

	code, env := call(t, r, http.MethodPost, "/api/products/"+p.ID+"/adjustments", map[string]any{"delta": -4, "reason": "breakage"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.NotEmpty(t, decode[TransactionResponse](t, env).TransactionID)

	code, env = call(t, r, http.MethodPost, "/api/products/"+p.ID+"/adjustments", map[string]any{"delta": -2})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "insufficient_stock", env.Code)

	code, env = call(t, r, http.MethodGet, "/api/inventory/low-stock", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{p.ID}, decode[[]string](t, env))

	code, env = call(t, r, http.MethodGet, "/api/inventory/low-stock?category=bakery", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]string](t, env))

	code, env = call(t, r, http.MethodPost, "/api/products/"+p.ID+"/receipts", map[string]any{"quantity": 6})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = call(t, r, http.MethodGet, "/api/products/"+p.ID+"/ledger", nil)
	require.Equal(t, http.StatusOK, code)
	entries := decode[[]LedgerEntryResponse](t, env)
	require.Len(t, entries, 2)
	assert.Equal(t, -4, entries[0].QuantityDelta)
	assert.Equal(t, 7, entries[1].StockAfter)

	code, env = call(t, r, http.MethodGet, "/api/products/"+p.ID+"/reconcile", nil)
	require.Equal(t, http.StatusOK, code)
	rec := decode[map[string]any](t, env)
	assert.Equal(t, true, rec["consistent"])
	assert.EqualValues(t, 7, rec["cached"])
}

func TestHTTPHandler_OrderLifecycle(t *testing.T) {
	r := newTestRouter(t)
	p := createProduct(t, r, "grocery", "10", 5, 0)
	o := createOrder(t, r)
	assert.Equal(t, "pending", o.Status)
	assert.Equal(t, defaultActor, o.ActorID)

	orderPath := "/api/orders/" + o.ID

	code, env := call(t, r, http.MethodPost, orderPath+"/items", map[string]any{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, code, env.Message)
	item := decode[ItemResponse](t, env)
	assert.True(t, decimal.NewFromInt(20).Equal(item.TotalPrice))

	code, env = call(t, r, http.MethodPost, orderPath+"/items", map[string]any{"product_id": p.ID, "quantity": 10})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "insufficient_stock", env.Code)

	code, env = call(t, r, http.MethodPost, orderPath+"/items", map[string]any{"product_id": p.ID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_quantity", env.Code)

	code, env = call(t, r, http.MethodGet, orderPath, nil)
	require.Equal(t, http.StatusOK, code)
	view := decode[OrderResponse](t, env)
	require.Len(t, view.Items, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(view.TotalAmount))

	code, env = call(t, r, http.MethodPost, orderPath+"/payments", map[string]any{"amount": "20", "method": "card"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Equal(t, "card", decode[PaymentResponse](t, env).Method)

	code, env = call(t, r, http.MethodPost, orderPath+"/complete", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "completed", decode[OrderResponse](t, env).Status)

	code, env = call(t, r, http.MethodPost, orderPath+"/complete", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_state", env.Code)

	code, env = call(t, r, http.MethodPost, orderPath+"/payments", map[string]any{"amount": "1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_state", env.Code)

	code, env = call(t, r, http.MethodGet, orderPath+"/payments", nil)
	require.Equal(t, http.StatusOK, code)
	payments := decode[struct {
		Payments []PaymentResponse `json:"payments"`
		Summary  SummaryResponse   `json:"summary"`
	}](t, env)
	assert.Len(t, payments.Payments, 1)
	assert.True(t, payments.Summary.Balance.IsZero())

	code, env = call(t, r, http.MethodGet, "/api/orders?status=completed", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]OrderResponse](t, env), 1)
}

func TestHTTPHandler_RemoveItemAndCancel(t *testing.T) {
	r := newTestRouter(t)
	p := createProduct(t, r, "grocery", "4", 5, 0)
	o := createOrder(t, r)
	orderPath := "/api/orders/" + o.ID

	code, env := call(t, r, http.MethodPost, orderPath+"/items", map[string]any{"product_id": p.ID, "quantity": 3})
	require.Equal(t, http.StatusCreated, code, env.Message)
	item := decode[ItemResponse](t, env)

	code, env = call(t, r, http.MethodDelete, orderPath+"/items/"+item.ID, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	view := decode[OrderResponse](t, env)
	assert.Empty(t, view.Items)
	assert.True(t, view.TotalAmount.IsZero())

	code, env = call(t, r, http.MethodDelete, orderPath+"/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Code)

	code, env = call(t, r, http.MethodPost, orderPath+"/items", map[string]any{"product_id": p.ID, "quantity": 5})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = call(t, r, http.MethodPost, orderPath+"/cancel", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "cancelled", decode[OrderResponse](t, env).Status)

	code, env = call(t, r, http.MethodGet, "/api/products/"+p.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, decode[ProductResponse](t, env).StockQuantity)
}

func TestHTTPHandler_ActorHeader(t *testing.T) {
	r := newTestRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/orders", nil, actorHeader, "cashier-7")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "cashier-7", decode[OrderResponse](t, env).ActorID)
}

func TestHTTPHandler_Accounting(t *testing.T) {
	r := newTestRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/expenses", map[string]any{"amount": "15", "description": "rent"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Equal(t, "expense", decode[FinancialTransactionResponse](t, env).Kind)

	code, env = call(t, r, http.MethodPost, "/api/expenses", map[string]any{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_amount", env.Code)

	code, env = call(t, r, http.MethodPost, "/api/refunds", map[string]any{"order_id": "missing", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Code)
}

func TestHTTPHandler_Reports(t *testing.T) {
	r := newTestRouter(t)
	p := createProduct(t, r, "grocery", "10", 5, 0)
	o := createOrder(t, r)
	code, env := call(t, r, http.MethodPost, "/api/orders/"+o.ID+"/items", map[string]any{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, code, env.Message)
	code, env = call(t, r, http.MethodPost, "/api/orders/"+o.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = call(t, r, http.MethodGet, "/api/reports/sales?from=2026-03-10&to=2026-03-11", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	sales := decode[struct {
		Orders int             `json:"orders"`
		Total  decimal.Decimal `json:"total"`
		Days   []struct {
			Day string `json:"day"`
		} `json:"days"`
	}](t, env)
	assert.Equal(t, 1, sales.Orders)
	assert.True(t, decimal.NewFromInt(20).Equal(sales.Total))
	require.Len(t, sales.Days, 1)
	assert.Equal(t, "2026-03-10", sales.Days[0].Day)

	code, env = call(t, r, http.MethodGet, "/api/reports/sales?from=2026-03-10", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", env.Code)

	code, env = call(t, r, http.MethodGet, "/api/reports/financial?from=2026-03-10T00:00:00Z&to=2026-03-11T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	fin := decode[struct {
		Sales  decimal.Decimal `json:"sales"`
		Profit decimal.Decimal `json:"profit"`
	}](t, env)
	assert.True(t, decimal.NewFromInt(20).Equal(fin.Sales))

	code, env = call(t, r, http.MethodGet, "/api/reports/inventory", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	inv := decode[struct {
		TotalValue decimal.Decimal `json:"total_value"`
	}](t, env)
	assert.True(t, decimal.NewFromInt(30).Equal(inv.TotalValue))
}

package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/core/service"
	"github.com/rl1809/pos-core/internal/port"
)

const (
	actorHeader  = "X-Actor-ID"
	defaultActor = "anonymous"
)

type HTTPHandler struct {
	core   *service.Core
	logger *zap.Logger
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func NewHTTPHandler(core *service.Core, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{core: core, logger: logger}
}

// Register mounts every route on r.
func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")

	products := api.Group("/products")
	products.POST("", h.CreateProduct)
	products.GET("", h.ListProducts)
	products.GET("/:id", h.GetProduct)
	products.PUT("/:id/price", h.UpdatePrice)
	products.POST("/:id/adjustments", h.AdjustStock)
	products.POST("/:id/receipts", h.ReceiveStock)
	products.GET("/:id/ledger", h.History)
	products.GET("/:id/reconcile", h.Reconcile)
	api.GET("/inventory/low-stock", h.LowStock)

	orders := api.Group("/orders")
	orders.POST("", h.CreateOrder)
	orders.GET("", h.ListOrders)
	orders.GET("/:id", h.GetOrder)
	orders.POST("/:id/items", h.AddItem)
	orders.DELETE("/:id/items/:item_id", h.RemoveItem)
	orders.POST("/:id/complete", h.CompleteOrder)
	orders.POST("/:id/cancel", h.CancelOrder)
	orders.POST("/:id/payments", h.RecordPayment)
	orders.GET("/:id/payments", h.Payments)

	api.POST("/expenses", h.RecordExpense)
	api.POST("/refunds", h.RecordRefund)

	reports := api.Group("/reports")
	reports.GET("/sales", h.SalesReport)
	reports.GET("/inventory", h.InventoryValuation)
	reports.GET("/financial", h.FinancialReport)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := h.core.Catalog.Create(c.Request.Context(), service.NewProduct{
		Name:             req.Name,
		Category:         req.Category,
		Price:            req.Price,
		CostPrice:        req.CostPrice,
		InitialStock:     req.InitialStock,
		ReorderThreshold: req.ReorderThreshold,
	}, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, toProduct(p))
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	products, err := h.core.Catalog.List(c.Request.Context(), c.Query("after"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProduct(p))
	}
	h.ok(c, http.StatusOK, out)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	p, err := h.core.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, toProduct(p))
}

func (h *HTTPHandler) UpdatePrice(c *gin.Context) {
	var req PriceRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := h.core.Catalog.UpdatePrice(c.Request.Context(), c.Param("id"), req.Price, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, toProduct(p))
}

func (h *HTTPHandler) AdjustStock(c *gin.Context) {
	var req StockRequest
	if !h.bind(c, &req) {
		return
	}
	id, err := h.core.Catalog.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta, req.Reason, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, TransactionResponse{TransactionID: id})
}

func (h *HTTPHandler) ReceiveStock(c *gin.Context) {
	var req StockRequest
	if !h.bind(c, &req) {
		return
	}
	id, err := h.core.Catalog.ReceiveStock(c.Request.Context(), c.Param("id"), req.Quantity, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, TransactionResponse{TransactionID: id})
}

func (h *HTTPHandler) History(c *gin.Context) {
	entries, err := h.core.Ledger.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, toLedgerEntries(entries))
}

func (h *HTTPHandler) Reconcile(c *gin.Context) {
	rec, err := h.core.Ledger.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{
		"product_id": rec.ProductID,
		"cached":     rec.Cached,
		"replayed":   rec.Replayed,
		"entries":    rec.Entries,
		"consistent": rec.Consistent,
	})
}

func (h *HTTPHandler) LowStock(c *gin.Context) {
	var pred func(domain.Product) bool
	if category := c.Query("category"); category != "" {
		pred = func(p domain.Product) bool { return p.Category == category }
	}

	ids := []string{}
	for id, err := range h.core.Ledger.LowStock(c.Request.Context(), pred) {
		if err != nil {
			h.fail(c, err)
			return
		}
		ids = append(ids, id)
	}
	h.ok(c, http.StatusOK, ids)
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	o, err := h.core.Orders.Create(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, toOrder(o, nil))
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	from, to, err := timeRange(c, false)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	orders, err := h.core.Orders.List(c.Request.Context(), port.OrderFilter{
		Status: domain.OrderStatus(c.Query("status")),
		From:   from,
		To:     to,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrder(o, nil))
	}
	h.ok(c, http.StatusOK, out)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	view, err := h.core.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, toOrderView(view))
}

func (h *HTTPHandler) AddItem(c *gin.Context) {
	var req ItemRequest
	if !h.bind(c, &req) {
		return
	}
	item, err := h.core.Orders.AddItem(c.Request.Context(), c.Param("id"), req.ProductID, req.Quantity, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, toItem(item))
}

func (h *HTTPHandler) RemoveItem(c *gin.Context) {
	if err := h.core.Orders.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("item_id"), actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	h.GetOrder(c)
}

func (h *HTTPHandler) CompleteOrder(c *gin.Context) {
	o, err := h.core.Orders.Complete(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, toOrder(o, nil))
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	o, err := h.core.Orders.Cancel(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, toOrder(o, nil))
}

func (h *HTTPHandler) RecordPayment(c *gin.Context) {
	var req PaymentRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := h.core.Payments.RecordPayment(c.Request.Context(), c.Param("id"), req.Amount,
		domain.PaymentMethod(req.Method), req.Notes, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, toPayment(p))
}

func (h *HTTPHandler) Payments(c *gin.Context) {
	ctx := c.Request.Context()
	payments, err := h.core.Payments.Payments(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	summary, err := h.core.Payments.Summary(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPayment(p))
	}
	h.ok(c, http.StatusOK, gin.H{"payments": out, "summary": toSummary(summary)})
}

func (h *HTTPHandler) RecordExpense(c *gin.Context) {
	var req MoneyRequest
	if !h.bind(c, &req) {
		return
	}
	ft, err := h.core.Accounting.RecordExpense(c.Request.Context(), req.Amount, req.Description, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, toFinancialTransaction(ft))
}

func (h *HTTPHandler) RecordRefund(c *gin.Context) {
	var req MoneyRequest
	if !h.bind(c, &req) {
		return
	}
	ft, err := h.core.Accounting.RecordRefund(c.Request.Context(), req.OrderID, req.Amount, req.Description, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, toFinancialTransaction(ft))
}

func (h *HTTPHandler) SalesReport(c *gin.Context) {
	from, to, err := timeRange(c, true)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	report, err := h.core.Reports.SalesReport(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	days := make([]gin.H, 0, len(report.Days))
	for _, d := range report.Days {
		days = append(days, gin.H{
			"day":    d.Day.Format(time.DateOnly),
			"orders": d.Orders,
			"total":  d.Total,
		})
	}
	h.ok(c, http.StatusOK, gin.H{
		"from":   report.From,
		"to":     report.To,
		"days":   days,
		"orders": report.Orders,
		"total":  report.Total,
	})
}

func (h *HTTPHandler) InventoryValuation(c *gin.Context) {
	v, err := h.core.Reports.InventoryValuation(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	categories := make([]gin.H, 0, len(v.Categories))
	for _, cat := range v.Categories {
		categories = append(categories, gin.H{
			"category":    cat.Category,
			"products":    cat.Products,
			"units":       cat.Units,
			"total_value": cat.TotalValue,
		})
	}
	h.ok(c, http.StatusOK, gin.H{"categories": categories, "total_value": v.TotalValue})
}

func (h *HTTPHandler) FinancialReport(c *gin.Context) {
	from, to, err := timeRange(c, true)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	s, err := h.core.Reports.FinancialReport(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{
		"from":     s.From,
		"to":       s.To,
		"sales":    s.Sales,
		"expenses": s.Expenses,
		"refunds":  s.Refunds,
		"profit":   s.Profit,
	})
}

func (h *HTTPHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.badRequest(c, "invalid request body")
		return false
	}
	return true
}

func (h *HTTPHandler) ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func (h *HTTPHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Message: message, Code: "bad_request"})
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	code, status, _ := errorKind(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		message = "internal error"
	}
	c.JSON(status, Response{Success: false, Message: message, Code: code})
}

func actor(c *gin.Context) string {
	if a := c.GetHeader(actorHeader); a != "" {
		return a
	}
	return defaultActor
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// timeRange reads the from and to query parameters as RFC 3339 timestamps
// or plain dates.
func timeRange(c *gin.Context, required bool) (from, to time.Time, err error) {
	if from, err = parseTime(c.Query("from")); err != nil {
		return from, to, fmt.Errorf("from: %w", err)
	}
	if to, err = parseTime(c.Query("to")); err != nil {
		return from, to, fmt.Errorf("to: %w", err)
	}
	if required && (from.IsZero() || to.IsZero()) {
		return from, to, fmt.Errorf("from and to are required")
	}
	return from, to, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

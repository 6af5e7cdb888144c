package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/core/service"
)

type ProductRequest struct {
	Name             string          `json:"name" binding:"required"`
	Category         string          `json:"category"`
	Price            decimal.Decimal `json:"price"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	InitialStock     int             `json:"initial_stock"`
	ReorderThreshold int             `json:"reorder_threshold"`
	ActorID          string          `json:"actor_id,omitempty"`
}

type PriceRequest struct {
	ProductID string          `json:"product_id,omitempty"`
	Price     decimal.Decimal `json:"price"`
	ActorID   string          `json:"actor_id,omitempty"`
}

type StockRequest struct {
	ProductID string `json:"product_id,omitempty"`
	Delta     int    `json:"delta"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	ActorID   string `json:"actor_id,omitempty"`
}

type OrderRequest struct {
	OrderID string `json:"order_id,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

type ItemRequest struct {
	OrderID   string `json:"order_id,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	ActorID   string `json:"actor_id,omitempty"`
}

type PaymentRequest struct {
	OrderID string          `json:"order_id,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Notes   string          `json:"notes"`
	ActorID string          `json:"actor_id,omitempty"`
}

type MoneyRequest struct {
	OrderID     string          `json:"order_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ActorID     string          `json:"actor_id,omitempty"`
}

type ProductResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Price            decimal.Decimal `json:"price"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	InitialStock     int             `json:"initial_stock"`
	StockQuantity    int             `json:"stock_quantity"`
	ReorderThreshold int             `json:"reorder_threshold"`
	LowStock         bool            `json:"low_stock"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toProduct(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:               p.ID,
		Name:             p.Name,
		Category:         p.Category,
		Price:            p.Price,
		CostPrice:        p.CostPrice,
		InitialStock:     p.InitialStock,
		StockQuantity:    p.StockQuantity,
		ReorderThreshold: p.ReorderThreshold,
		LowStock:         p.IsLowStock(),
		UpdatedAt:        p.UpdatedAt,
	}
}

type LedgerEntryResponse struct {
	ID            string    `json:"id"`
	QuantityDelta int       `json:"quantity_delta"`
	Kind          string    `json:"kind"`
	ActorID       string    `json:"actor_id"`
	Reason        string    `json:"reason,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	StockAfter    int       `json:"stock_after"`
	CreatedAt     time.Time `json:"created_at"`
}

func toLedgerEntries(entries []domain.InventoryTransaction) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{
			ID:            e.ID,
			QuantityDelta: e.QuantityDelta,
			Kind:          string(e.Kind),
			ActorID:       e.ActorID,
			Reason:        e.Reason,
			Reference:     e.Reference,
			StockAfter:    e.StockAfter,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}

type ItemResponse struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func toItem(it domain.OrderItem) ItemResponse {
	return ItemResponse{
		ID:         it.ID,
		ProductID:  it.ProductID,
		Quantity:   it.Quantity,
		UnitPrice:  it.UnitPrice,
		TotalPrice: it.TotalPrice,
	}
}

type OrderResponse struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ActorID        string          `json:"actor_id"`
	Items          []ItemResponse  `json:"items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
}

func toOrder(o domain.Order, items []domain.OrderItem) OrderResponse {
	resp := OrderResponse{
		ID:             o.ID,
		Status:         string(o.Status),
		Subtotal:       o.Subtotal,
		TaxAmount:      o.TaxAmount,
		DiscountAmount: o.DiscountAmount,
		TotalAmount:    o.TotalAmount,
		ActorID:        o.ActorID,
		CreatedAt:      o.CreatedAt,
		CompletedAt:    o.CompletedAt,
		CancelledAt:    o.CancelledAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, toItem(it))
	}
	return resp
}

func toOrderView(v service.OrderView) OrderResponse {
	return toOrder(v.Order, v.Items)
}

type PaymentResponse struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toPayment(p domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Method:    string(p.Method),
		Notes:     p.Notes,
		CreatedAt: p.CreatedAt,
	}
}

type SummaryResponse struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
	Paid    decimal.Decimal `json:"paid"`
	Balance decimal.Decimal `json:"balance"`
}

func toSummary(s domain.PaymentSummary) SummaryResponse {
	return SummaryResponse{OrderID: s.OrderID, Total: s.Total, Paid: s.Paid, Balance: s.Balance}
}

type FinancialTransactionResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	OrderID     string          `json:"order_id,omitempty"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toFinancialTransaction(ft domain.FinancialTransaction) FinancialTransactionResponse {
	return FinancialTransactionResponse{
		ID:          ft.ID,
		Kind:        string(ft.Kind),
		Amount:      ft.Amount,
		OrderID:     ft.OrderID,
		Description: ft.Description,
		CreatedAt:   ft.CreatedAt,
	}
}

type TransactionResponse struct {
	TransactionID string `json:"transaction_id"`
}

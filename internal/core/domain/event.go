package domain

import "time"

type EventType string

const (
	EventOrderCompleted       EventType = "order.completed"
	EventOrderCancelled       EventType = "order.cancelled"
	EventLowStock             EventType = "inventory.low_stock"
	EventFinancialTransaction EventType = "finance.transaction_recorded"
)

// Event is published after the unit of work that produced it commits.
type Event struct {
	Type        EventType `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Payload     any       `json:"payload,omitempty"`
}

type LowStockAlert struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

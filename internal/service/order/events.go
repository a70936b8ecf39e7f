package order

import (
	"time"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

// Lifecycle event names carried in the event-type header.
const (
	EventOrderCreated  = "order.created"
	EventOrderMoved    = "order.moved"
	EventOrderImported = "order.imported"
	EventOrdersPurged  = "orders.purged"
)

// OrderCreatedEvent is emitted when checkout appends an order to pending.
type OrderCreatedEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Total     string    `json:"total"`
	Currency  string    `json:"currency"`
	OrderDate time.Time `json:"orderDate"`
}

// OrderMovedEvent is emitted after an order changes partition.
type OrderMovedEvent struct {
	ID      string           `json:"id"`
	From    entity.Partition `json:"from"`
	To      entity.Partition `json:"to"`
	MovedAt time.Time        `json:"movedAt"`
}

// OrderImportedEvent is emitted for every migrated legacy order.
type OrderImportedEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	DedupeKey string    `json:"dedupeKey"`
	OrderDate time.Time `json:"orderDate"`
}

// OrdersPurgedEvent summarizes one janitor run.
type OrdersPurgedEvent struct {
	Removed  map[entity.Partition]int64 `json:"removed"`
	PurgedAt time.Time                  `json:"purgedAt"`
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

// LineItem is one product line in requests and responses.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	FullName      string           `json:"fullName,omitempty"`
	BuyerInfo     string           `json:"buyerinfo,omitempty"`
	BuyerName     string           `json:"buyerName"`
	Items         []LineItem       `json:"items"`
	Total         decimal.Decimal  `json:"total"`
	Currency      string           `json:"currency"`
	OrderDate     time.Time        `json:"orderDate"`
	Status        string           `json:"status"`
	DisplayStatus string           `json:"displayStatus,omitempty"`
	Collection    entity.Partition `json:"collection"`
	OrderNumber   string           `json:"orderNumber,omitempty"`
	Migrated      bool             `json:"migrated"`
	Test          bool             `json:"test"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// PlaceOrderRequest is the checkout payload.
type PlaceOrderRequest struct {
	UserID        string     `json:"userId"`
	FullName      string     `json:"fullName"`
	BuyerInfo     string     `json:"buyerinfo"`
	Items         []LineItem `json:"items"`
	Currency      string     `json:"currency"`
	DisplayStatus string     `json:"displayStatus"`
	OrderNumber   string     `json:"orderNumber"`
	Test          bool       `json:"test"`
}

// MoveOrderRequest names the expected source and the destination partition.
type MoveOrderRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CountsResponse reports orders per partition.
type CountsResponse struct {
	Partitions map[entity.Partition]int `json:"partitions"`
	Total      int                      `json:"total"`
}

// PurgeResponse reports rows removed per partition.
type PurgeResponse struct {
	Removed map[entity.Partition]int64 `json:"removed"`
	Total   int64                      `json:"total"`
}

// NewOrderResponse maps an entity to its transport shape.
func NewOrderResponse(o *entity.Order) OrderResponse {
	items := make([]LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, LineItem(it))
	}
	return OrderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		FullName:      o.FullName,
		BuyerInfo:     o.BuyerInfo,
		BuyerName:     o.BuyerName(),
		Items:         items,
		Total:         o.Total,
		Currency:      o.Currency,
		OrderDate:     o.OrderDate,
		Status:        o.Status,
		DisplayStatus: o.DisplayStatus,
		Collection:    o.Collection,
		OrderNumber:   o.OrderNumber,
		Migrated:      o.Migrated,
		Test:          o.Test,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// NewOrderResponses maps a slice of entities.
func NewOrderResponses(orders []entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, NewOrderResponse(&orders[i]))
	}
	return out
}

// ToEntityItems converts request line items.
func ToEntityItems(items []LineItem) []entity.LineItem {
	out := make([]entity.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, entity.LineItem(it))
	}
	return out
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// UnknownBuyer is shown when an order carries neither a full name nor buyer info.
const UnknownBuyer = "unknown"

// LineItem is one ordered product. Items are stored as JSON on the order row.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Order is a purchase order. The same shape is stored in every partition table;
// the table is chosen per query, so Collection is filled from the table a row was
// read from and is never persisted.
type Order struct {
	bun.BaseModel `bun:"table:orders_pending,alias:o"`

	ID            string          `bun:"id,pk"`
	UserID        string          `bun:"user_id,notnull"`
	FullName      string          `bun:"full_name,nullzero"`
	BuyerInfo     string          `bun:"buyer_info,nullzero"`
	Items         []LineItem      `bun:"items,notnull"`
	Total         decimal.Decimal `bun:"total,notnull"`
	Currency      string          `bun:"currency,notnull"`
	OrderDate     time.Time       `bun:"order_date,notnull"`
	Status        string          `bun:"status,notnull"`
	DisplayStatus string          `bun:"display_status,nullzero"`
	OrderNumber   string          `bun:"order_number,nullzero"`
	Migrated      bool            `bun:"migrated,notnull"`
	Test          bool            `bun:"test,notnull"`
	DedupeKey     string          `bun:"dedupe_key,nullzero"`
	CreatedAt     time.Time       `bun:"created_at,notnull"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull"`

	Collection Partition `bun:"-"`
}

// BuyerName resolves the display name: full name first, then the legacy buyer
// info field, then UnknownBuyer.
func (o *Order) BuyerName() string {
	switch {
	case o.FullName != "":
		return o.FullName
	case o.BuyerInfo != "":
		return o.BuyerInfo
	default:
		return UnknownBuyer
	}
}

// OrderRegistration tracks where every order currently lives. Its primary key
// makes identifiers unique across all partitions.
type OrderRegistration struct {
	bun.BaseModel `bun:"table:order_registry,alias:r"`

	OrderID   string    `bun:"order_id,pk"`
	Stage     Partition `bun:"stage,notnull"`
	DedupeKey string    `bun:"dedupe_key,nullzero"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

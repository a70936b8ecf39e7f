package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DedupeKey identifies an order by content rather than by identifier, so the
// same client-local order imported twice maps to the same key. Timestamps are
// truncated to milliseconds, the precision browsers record.
func DedupeKey(userID string, orderDate time.Time, items []LineItem) string {
	return fmt.Sprintf("%s:%d:%016x", userID, orderDate.UTC().UnixMilli(), itemsHash(items))
}

func itemsHash(items []LineItem) uint64 {
	digest := xxhash.New()
	for _, item := range items {
		// Canonical form: fixed field order, normalized price.
		line, _ := json.Marshal(struct {
			ProductID string `json:"p"`
			Name      string `json:"n"`
			Quantity  int    `json:"q"`
			UnitPrice string `json:"u"`
		}{item.ProductID, item.Name, item.Quantity, item.UnitPrice.String()})
		_, _ = digest.Write(line)
		_, _ = digest.Write([]byte{'\n'})
	}
	return digest.Sum64()
}

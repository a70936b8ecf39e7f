package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

const maxIdentifierLength = 64

// LegacyOrder is an order recorded client-side before server persistence
// existed. Field names follow what browsers stored.
type LegacyOrder struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	FullName      string            `json:"fullName"`
	BuyerInfo     string            `json:"buyerinfo"`
	Items         []entity.LineItem `json:"items"`
	Total         *decimal.Decimal  `json:"total"`
	Currency      string            `json:"currency"`
	OrderDate     time.Time         `json:"orderDate"`
	DisplayStatus string            `json:"displayStatus"`
	OrderNumber   string            `json:"orderNumber"`
	Test          bool              `json:"test"`
}

// Rejection explains why a legacy record was not imported.
type Rejection struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ImportReport summarizes one import run.
type ImportReport struct {
	Imported int         `json:"imported"`
	Skipped  int         `json:"skipped"`
	Rejected []Rejection `json:"rejected"`
}

// Importer migrates legacy orders into the pending partition. Running it again
// with the same input imports nothing.
type Importer struct {
	store     Store
	logger    *zap.Logger
	publisher messaging.Client
	metrics   instruments

	// Runs are serialized so two imports of the same file cannot race past the
	// dedupe check.
	mu sync.Mutex
}

// NewImporter wires an Importer.
func NewImporter(p Params) *Importer {
	return &Importer{
		store:     p.Store,
		logger:    loggerOrNop(p.Logger),
		publisher: p.Publisher,
		metrics:   newInstruments(),
	}
}

// ImportLegacy imports records in order. Invalid records are rejected and
// reported; a store failure stops the run and returns the partial report.
func (im *Importer) ImportLegacy(ctx context.Context, records []LegacyOrder) (ImportReport, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	ctx, span := serviceTracer.Start(ctx, "OrderImporter.ImportLegacy")
	defer span.End()

	report := ImportReport{Rejected: []Rejection{}}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		order, reason := fromLegacy(rec)
		if reason != "" {
			report.Rejected = append(report.Rejected, Rejection{Index: i, ID: rec.ID, Reason: reason})
			continue
		}

		inserted, err := im.appendOnce(ctx, order)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "import aborted")
			im.logger.Error("legacy import aborted", zap.Int("index", i), zap.Error(err))
			return report, fmt.Errorf("import record %d: %w", i, err)
		}
		if !inserted {
			report.Skipped++
			continue
		}

		report.Imported++
		publishEvent(ctx, im.publisher, im.logger, EventOrderImported, order.ID, OrderImportedEvent{
			ID:        order.ID,
			UserID:    order.UserID,
			DedupeKey: order.DedupeKey,
			OrderDate: order.OrderDate,
		})
	}

	im.metrics.imported.Add(ctx, int64(report.Imported))
	im.metrics.skipped.Add(ctx, int64(report.Skipped))
	span.SetAttributes(
		attribute.Int("import.imported", report.Imported),
		attribute.Int("import.skipped", report.Skipped),
		attribute.Int("import.rejected", len(report.Rejected)),
	)
	im.logger.Info("legacy import finished",
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("rejected", len(report.Rejected)),
	)
	return report, nil
}

// appendOnce keeps the legacy identifier when it is free and falls back to a
// fresh one when a different order already owns it.
func (im *Importer) appendOnce(ctx context.Context, order *entity.Order) (bool, error) {
	inserted, err := im.store.AppendIfAbsent(ctx, entity.PartitionPending, order)
	if !errors.Is(err, repo.ErrDuplicateIdentifier) {
		return inserted, err
	}
	im.logger.Debug("legacy identifier taken; assigning a new one", zap.String("legacy_id", order.ID))
	order.ID = uuid.NewString()
	return im.store.AppendIfAbsent(ctx, entity.PartitionPending, order)
}

func fromLegacy(rec LegacyOrder) (*entity.Order, string) {
	if err := validateItems(rec.UserID, rec.Items); err != nil {
		return nil, err.Error()
	}
	if rec.OrderDate.IsZero() {
		return nil, "orderDate is required"
	}

	total := sumItems(rec.Items)
	if rec.Total != nil {
		if rec.Total.IsNegative() {
			return nil, "total must not be negative"
		}
		total = *rec.Total
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" || len(id) > maxIdentifierLength {
		id = uuid.NewString()
	}

	return &entity.Order{
		ID:            id,
		UserID:        rec.UserID,
		FullName:      strings.TrimSpace(rec.FullName),
		BuyerInfo:     strings.TrimSpace(rec.BuyerInfo),
		Items:         rec.Items,
		Total:         total,
		Currency:      currencyOrDefault(rec.Currency),
		OrderDate:     rec.OrderDate.UTC(),
		DisplayStatus: rec.DisplayStatus,
		OrderNumber:   rec.OrderNumber,
		Migrated:      true,
		Test:          rec.Test,
		DedupeKey:     entity.DedupeKey(rec.UserID, rec.OrderDate, rec.Items),
	}, ""
}

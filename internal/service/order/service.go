package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/order")

const defaultCurrency = "USD"

// Service handles checkout and per-order lifecycle operations.
type Service struct {
	store     Store
	logger    *zap.Logger
	publisher messaging.Client
	metrics   instruments
	now       func() time.Time
}

// Params defines dependencies for constructing the order services.
type Params struct {
	fx.In

	Store     Store
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		store:     p.Store,
		logger:    loggerOrNop(p.Logger),
		publisher: p.Publisher,
		metrics:   newInstruments(),
		now:       time.Now,
	}
}

// PlaceInput is a checkout request.
type PlaceInput struct {
	UserID        string
	FullName      string
	BuyerInfo     string
	Items         []entity.LineItem
	Currency      string
	DisplayStatus string
	OrderNumber   string
	Test          bool
}

// Place validates a checkout request and appends it to the pending partition.
func (s *Service) Place(ctx context.Context, in PlaceInput) (*entity.Order, error) {
	if err := validateItems(in.UserID, in.Items); err != nil {
		return nil, errorbank.BadRequest(err.Error())
	}

	now := s.now().UTC()
	order := &entity.Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		FullName:      strings.TrimSpace(in.FullName),
		BuyerInfo:     strings.TrimSpace(in.BuyerInfo),
		Items:         in.Items,
		Total:         sumItems(in.Items),
		Currency:      currencyOrDefault(in.Currency),
		OrderDate:     now,
		DisplayStatus: in.DisplayStatus,
		OrderNumber:   in.OrderNumber,
		Test:          in.Test,
		DedupeKey:     entity.DedupeKey(in.UserID, now, in.Items),
	}
	if order.OrderNumber == "" {
		order.OrderNumber = orderNumber(order.ID, now)
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.Place", trace.WithAttributes(attribute.String("order.id", order.ID)))
	defer span.End()

	if err := s.store.Append(ctx, entity.PartitionPending, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return nil, fmt.Errorf("place order: %w", err)
	}
	s.metrics.placed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("order.test", order.Test)))

	s.publish(ctx, EventOrderCreated, order.ID, OrderCreatedEvent{
		ID:        order.ID,
		UserID:    order.UserID,
		Total:     order.Total.StringFixed(2),
		Currency:  order.Currency,
		OrderDate: order.OrderDate,
	})
	return order, nil
}

// Move advances an order to the next lifecycle stage.
func (s *Service) Move(ctx context.Context, id string, from, to entity.Partition) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Move", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.to", string(to)),
	))
	defer span.End()

	moved, err := s.store.Move(ctx, id, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "move failed")
		return nil, fmt.Errorf("move order %s: %w", id, err)
	}
	s.metrics.moved.Add(ctx, 1, metric.WithAttributes(attribute.String("order.to", string(to))))
	s.logger.Info("order moved", zap.String("id", id), zap.Stringer("from", from), zap.Stringer("to", to))

	s.publish(ctx, EventOrderMoved, id, OrderMovedEvent{ID: id, From: from, To: to, MovedAt: moved.UpdatedAt})
	return moved, nil
}

// Get loads one order with its current partition.
func (s *Service) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
		}
		return nil, err
	}
	return order, nil
}

// ListRecent returns the most recent orders of one partition.
func (s *Service) ListRecent(ctx context.Context, p entity.Partition, limit int, newestFirst bool) ([]entity.Order, error) {
	return s.store.ListRecent(ctx, p, limit, newestFirst)
}

func (s *Service) publish(ctx context.Context, eventType, key string, payload any) {
	publishEvent(ctx, s.publisher, s.logger, eventType, key, payload)
}

// publishEvent is best effort: the store is the source of truth, events only
// notify downstream consumers.
func publishEvent(ctx context.Context, client messaging.Client, logger *zap.Logger, eventType, key string, payload any) {
	if err := messaging.PublishEvent(ctx, client, eventType, key, payload); err != nil {
		logger.Error("publish order event", zap.String("event", eventType), zap.String("key", key), zap.Error(err))
	}
}

func validateItems(userID string, items []entity.LineItem) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("userId is required")
	}
	if len(items) == 0 {
		return errors.New("at least one item is required")
	}
	for i, item := range items {
		if item.ProductID == "" {
			return fmt.Errorf("items[%d]: productId is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be positive", i)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("items[%d]: unitPrice must not be negative", i)
		}
	}
	return nil
}

func sumItems(items []entity.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return defaultCurrency
	}
	return currency
}

func orderNumber(id string, at time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), strings.ToUpper(id[:8]))
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

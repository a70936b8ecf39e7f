package seeder

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
)

// ErrProduction is returned when seeding is attempted against production.
var ErrProduction = errors.New("refusing to seed a production environment")

// Module provides the seeder to CLI commands.
var Module = fx.Provide(New)

// Seeder fills a local database with test-flagged sample orders. Every row it
// writes is removable by the test-record janitor.
type Seeder struct {
	orders     *ordersvc.Service
	aggregator *ordersvc.Aggregator
	cfg        config.Config
	logger     *zap.Logger
}

// New constructs a Seeder on top of the order service.
func New(orders *ordersvc.Service, aggregator *ordersvc.Aggregator, cfg config.Config, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{orders: orders, aggregator: aggregator, cfg: cfg, logger: logger}
}

type sample struct {
	input  ordersvc.PlaceInput
	target entity.Partition
}

func samples() []sample {
	price := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return []sample{
		{
			input: ordersvc.PlaceInput{
				UserID:   "seed-user-1",
				FullName: "Ada Tester",
				Items: []entity.LineItem{
					{ProductID: "sku-100", Name: "Notebook", Quantity: 2, UnitPrice: price("4.50")},
				},
				DisplayStatus: "Awaiting review",
			},
			target: entity.PartitionPending,
		},
		{
			input: ordersvc.PlaceInput{
				UserID:   "seed-user-2",
				FullName: "Grace Tester",
				Items: []entity.LineItem{
					{ProductID: "sku-200", Name: "Desk lamp", Quantity: 1, UnitPrice: price("29.99")},
					{ProductID: "sku-201", Name: "Bulb", Quantity: 3, UnitPrice: price("2.10")},
				},
				DisplayStatus: "Preparing",
			},
			target: entity.PartitionAccepted,
		},
		{
			input: ordersvc.PlaceInput{
				UserID:   "seed-user-1",
				FullName: "Ada Tester",
				Items: []entity.LineItem{
					{ProductID: "sku-300", Name: "Chair", Quantity: 1, UnitPrice: price("120.00")},
				},
				Currency:      "EUR",
				DisplayStatus: "Delivered",
			},
			target: entity.PartitionDelivered,
		},
	}
}

// Orders seeds sample orders across all partitions unless test orders
// already exist. It returns the number of orders written.
func (s *Seeder) Orders(ctx context.Context) (int, error) {
	if s.cfg.App.IsProduction() {
		return 0, ErrProduction
	}

	existing, err := s.aggregator.Counts(ctx, repo.OnlyTest())
	if err != nil {
		return 0, err
	}
	if existing.Total > 0 {
		s.logger.Info("test orders already present; skipping seed", zap.Int("existing", existing.Total))
		return 0, nil
	}

	written := 0
	for _, sm := range samples() {
		in := sm.input
		in.Test = true
		order, err := s.orders.Place(ctx, in)
		if err != nil {
			return written, err
		}
		if err := s.advance(ctx, order.ID, sm.target); err != nil {
			return written, err
		}
		written++
	}

	s.logger.Info("seeded orders", zap.Int("count", written))
	return written, nil
}

func (s *Seeder) advance(ctx context.Context, id string, target entity.Partition) error {
	current := entity.PartitionPending
	for current != target {
		next, ok := current.Next()
		if !ok {
			return nil
		}
		if _, err := s.orders.Move(ctx, id, current, next); err != nil {
			return err
		}
		current = next
	}
	return nil
}

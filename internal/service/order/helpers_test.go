package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database/dbtest"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
)

var day = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	msgs []messaging.Message
}

func (r *recorder) Publish(_ context.Context, msg messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *recorder) Topic() string { return "orders.events" }

func (r *recorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.EventType())
	}
	return out
}

func newStore(t *testing.T) *repo.Repository {
	t.Helper()
	cfg := config.Config{Store: config.Store{OpTimeout: 2 * time.Second, MaxRetries: 1, RetryBackoff: time.Millisecond}}
	return repo.NewRepository(dbtest.New(t), cfg, zap.NewNop())
}

func params(store ordersvc.Store, pub messaging.Client) ordersvc.Params {
	return ordersvc.Params{Store: store, Logger: zap.NewNop(), Publisher: pub}
}

func items(price string, qty int) []entity.LineItem {
	return []entity.LineItem{{ProductID: "sku-1", Name: "Notebook", Quantity: qty, UnitPrice: decimal.RequireFromString(price)}}
}

func seed(t *testing.T, store *repo.Repository, p entity.Partition, id string, at time.Time, test bool) {
	t.Helper()
	o := &entity.Order{
		ID:            id,
		UserID:        "user-1",
		Items:         items("3.00", 1),
		Total:         decimal.RequireFromString("3.00"),
		Currency:      "USD",
		OrderDate:     at,
		DisplayStatus: "Placed",
		Test:          test,
		DedupeKey:     entity.DedupeKey("user-1", at, items("3.00", 1)) + ":" + id,
	}
	if err := store.Append(context.Background(), entity.PartitionPending, o); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	for from := entity.PartitionPending; from != p; {
		to, _ := from.Next()
		if _, err := store.Move(context.Background(), id, from, to); err != nil {
			t.Fatalf("seed move %s: %v", id, err)
		}
		from = to
	}
}

// flakyStore fails reads of selected partitions.
type flakyStore struct {
	ordersvc.Store
	failing map[entity.Partition]bool
	block   chan struct{}
}

var errReplicaDown = errors.New("replica down")

func (f *flakyStore) List(ctx context.Context, p entity.Partition) ([]entity.Order, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failing[p] {
		return nil, errReplicaDown
	}
	return f.Store.List(ctx, p)
}

func (f *flakyStore) Count(ctx context.Context, p entity.Partition, filter *repo.Filter) (int, error) {
	if f.failing[p] {
		return 0, errReplicaDown
	}
	return f.Store.Count(ctx, p, filter)
}

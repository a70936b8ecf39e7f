package order

import (
	"context"

	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

// Store is the slice of the partition store the order services depend on.
type Store interface {
	Append(ctx context.Context, p entity.Partition, order *entity.Order) error
	AppendIfAbsent(ctx context.Context, p entity.Partition, order *entity.Order) (bool, error)
	Move(ctx context.Context, id string, from, to entity.Partition) (*entity.Order, error)
	Get(ctx context.Context, id string) (*entity.Order, error)
	List(ctx context.Context, p entity.Partition) ([]entity.Order, error)
	ListRecent(ctx context.Context, p entity.Partition, limit int, newestFirst bool) ([]entity.Order, error)
	Count(ctx context.Context, p entity.Partition, filter *repo.Filter) (int, error)
	DeleteWhere(ctx context.Context, p entity.Partition, filter *repo.Filter) (int64, error)
	HoldRelocations() (release func())
}

var _ Store = (*repo.Repository)(nil)

package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderdesk/repository/order")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var (
	// ErrNotFound is returned when an order is missing from the requested partition.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateIdentifier is returned when the identifier exists in any partition.
	ErrDuplicateIdentifier = errors.New("order identifier already exists")
	// ErrInvalidTransition is returned when a move skips or reverses a stage.
	ErrInvalidTransition = errors.New("invalid partition transition")
	// ErrInvalidPartition is returned for unknown partition names.
	ErrInvalidPartition = errors.New("unknown partition")
	// ErrEmptyFilter guards bulk deletes that would match every row.
	ErrEmptyFilter = errors.New("bulk delete requires a filter")
	// ErrStoreUnavailable is returned once transient failures exhaust the retry budget.
	ErrStoreUnavailable = errors.New("order store unavailable")
)

// Repository is the partition store: one table per lifecycle stage plus a
// registry enforcing identifier uniqueness across all of them.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
	logger *zap.Logger

	opTimeout    time.Duration
	maxRetries   int
	retryBackoff time.Duration

	// relocation is held exclusively by Move and shared by readers that must
	// see every partition at the same instant.
	relocation sync.RWMutex

	now func() time.Time
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections, cfg config.Config, logger *zap.Logger) *Repository {
	return &Repository{
		writer:       conns.Writer,
		reader:       conns.Reader,
		logger:       logger,
		opTimeout:    cfg.Store.OpTimeout,
		maxRetries:   cfg.Store.MaxRetries,
		retryBackoff: cfg.Store.RetryBackoff,
		now:          time.Now,
	}
}

// HoldRelocations blocks Move until release is called. Readers use it to take
// a consistent view across partitions.
func (r *Repository) HoldRelocations() (release func()) {
	r.relocation.RLock()
	return r.relocation.RUnlock
}

// Append inserts a new order into partition p.
func (r *Repository) Append(ctx context.Context, p entity.Partition, order *entity.Order) error {
	_, err := r.insert(ctx, "append", p, order, false)
	return err
}

// AppendIfAbsent inserts order unless another order with the same dedupe key
// exists in any partition. It reports whether the order was inserted.
func (r *Repository) AppendIfAbsent(ctx context.Context, p entity.Partition, order *entity.Order) (bool, error) {
	if order != nil && order.DedupeKey == "" {
		return false, errors.New("order has no dedupe key")
	}
	return r.insert(ctx, "append_if_absent", p, order, true)
}

func (r *Repository) insert(ctx context.Context, op string, p entity.Partition, order *entity.Order, checkDedupe bool) (bool, error) {
	if order == nil {
		return false, errors.New("nil order")
	}
	if !p.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidPartition, p)
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository."+op, trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.partition", string(p)),
	))
	defer span.End()

	now := r.now().UTC()
	row := *order
	row.Status = string(p)
	row.OrderDate = row.OrderDate.UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	inserted := false
	err := r.run(ctx, op, func(ctx context.Context) error {
		inserted = false
		return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if checkDedupe {
				dup, err := tx.NewSelect().
					Model((*entity.OrderRegistration)(nil)).
					Where("dedupe_key = ?", row.DedupeKey).
					Exists(ctx)
				if err != nil {
					return err
				}
				if dup {
					return nil
				}
			}

			taken, err := tx.NewSelect().
				Model((*entity.OrderRegistration)(nil)).
				Where("order_id = ?", row.ID).
				Exists(ctx)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateIdentifier
			}

			reg := entity.OrderRegistration{
				OrderID:   row.ID,
				Stage:     p,
				DedupeKey: row.DedupeKey,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.NewInsert().Model(&reg).Exec(ctx); err != nil {
				return mapUnique(err)
			}
			if _, err := insertInto(tx, p, &row).Exec(ctx); err != nil {
				return mapUnique(err)
			}
			inserted = true
			return nil
		})
	})
	if err != nil {
		recordError(span, err)
		return false, err
	}

	if inserted {
		row.Collection = p
		*order = row
	}
	return inserted, nil
}

// Move relocates one order from one stage to the next in a single transaction.
// When the registry already places the order in to, the call succeeds without
// changes so interrupted moves can be retried.
func (r *Repository) Move(ctx context.Context, id string, from, to entity.Partition) (*entity.Order, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: %q -> %q", ErrInvalidPartition, from, to)
	}
	if !from.CanMoveTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	ctx, span := repoTracer.Start(ctx, "OrderRepository.Move", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.from", string(from)),
		attribute.String("order.to", string(to)),
	))
	defer span.End()

	r.relocation.Lock()
	defer r.relocation.Unlock()

	var moved entity.Order
	err := r.run(ctx, "move", func(ctx context.Context) error {
		moved = entity.Order{}
		return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var reg entity.OrderRegistration
			err := lockRegistration(tx, id, &reg).Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}

			if reg.Stage == to {
				return selectByID(tx, to, id, &moved).Scan(ctx)
			}
			if reg.Stage != from {
				return ErrNotFound
			}

			if err := selectByID(tx, from, id, &moved).Scan(ctx); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}

			now := r.now().UTC()
			moved.Status = string(to)
			moved.UpdatedAt = now

			if _, err := insertInto(tx, to, &moved).Exec(ctx); err != nil {
				return mapUnique(err)
			}
			if _, err := deleteFrom(tx, from).Where("o.id = ?", id).Exec(ctx); err != nil {
				return err
			}
			_, err = tx.NewUpdate().
				Model((*entity.OrderRegistration)(nil)).
				Set("stage = ?", to).
				Set("updated_at = ?", now).
				Where("order_id = ?", id).
				Exec(ctx)
			return err
		})
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	moved.Collection = to
	return &moved, nil
}

// Get loads an order from whichever partition currently holds it.
func (r *Repository) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	var order entity.Order
	err := r.run(ctx, "get", func(ctx context.Context) error {
		order = entity.Order{}
		return r.reader.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
			var reg entity.OrderRegistration
			if err := tx.NewSelect().Model(&reg).Where("r.order_id = ?", id).Scan(ctx); err != nil {
				return err
			}
			if err := selectByID(tx, reg.Stage, id, &order).Scan(ctx); err != nil {
				return err
			}
			order.Collection = reg.Stage
			return nil
		})
	})
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return &order, nil
}

// List returns every order in partition p, newest first.
func (r *Repository) List(ctx context.Context, p entity.Partition) ([]entity.Order, error) {
	return r.list(ctx, "list", p, 0, true)
}

// ListRecent returns at most limit orders from partition p ordered by order date.
func (r *Repository) ListRecent(ctx context.Context, p entity.Partition, limit int, newestFirst bool) ([]entity.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return r.list(ctx, "list_recent", p, limit, newestFirst)
}

func (r *Repository) list(ctx context.Context, op string, p entity.Partition, limit int, newestFirst bool) ([]entity.Order, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPartition, p)
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository."+op, trace.WithAttributes(
		attribute.String("order.partition", string(p)),
		attribute.Int("query.limit", limit),
	))
	defer span.End()

	direction := "DESC"
	if !newestFirst {
		direction = "ASC"
	}

	var orders []entity.Order
	err := r.run(ctx, op, func(ctx context.Context) error {
		orders = nil
		q := r.reader.NewSelect().
			Model(&orders).
			ModelTableExpr("? AS o", bun.Ident(p.Table())).
			OrderExpr("o.order_date " + direction).
			OrderExpr("o.id ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Scan(ctx)
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	for i := range orders {
		orders[i].Collection = p
	}
	span.SetAttributes(attribute.Int("query.rows", len(orders)))
	return orders, nil
}

// Count returns the number of orders in partition p matching filter.
func (r *Repository) Count(ctx context.Context, p entity.Partition, filter *Filter) (int, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPartition, p)
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Count", trace.WithAttributes(attribute.String("order.partition", string(p))))
	defer span.End()

	var count int
	err := r.run(ctx, "count", func(ctx context.Context) error {
		q := r.reader.NewSelect().
			Model((*entity.Order)(nil)).
			ModelTableExpr("? AS o", bun.Ident(p.Table()))
		for _, c := range filter.clauses() {
			q = q.Where(c.query, c.args...)
		}
		n, err := q.Count(ctx)
		count = n
		return err
	})
	if err != nil {
		recordError(span, err)
		return 0, err
	}
	return count, nil
}

// DeleteWhere removes every order in partition p matching filter and returns
// how many were removed. An empty filter is rejected.
func (r *Repository) DeleteWhere(ctx context.Context, p entity.Partition, filter *Filter) (int64, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPartition, p)
	}
	clauses := filter.clauses()
	if len(clauses) == 0 {
		return 0, ErrEmptyFilter
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.DeleteWhere", trace.WithAttributes(attribute.String("order.partition", string(p))))
	defer span.End()

	var removed int64
	err := r.run(ctx, "delete_where", func(ctx context.Context) error {
		removed = 0
		return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			matching := tx.NewSelect().
				Model((*entity.Order)(nil)).
				ModelTableExpr("? AS o", bun.Ident(p.Table())).
				ColumnExpr("o.id")
			for _, c := range clauses {
				matching = matching.Where(c.query, c.args...)
			}
			if _, err := tx.NewDelete().
				Model((*entity.OrderRegistration)(nil)).
				Where("order_id IN (?)", matching).
				Exec(ctx); err != nil {
				return err
			}

			del := deleteFrom(tx, p)
			for _, c := range clauses {
				del = del.Where(c.query, c.args...)
			}
			res, err := del.Exec(ctx)
			if err != nil {
				return err
			}
			removed, err = res.RowsAffected()
			return err
		})
	})
	if err != nil {
		recordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("query.rows", removed))
	return removed, nil
}

// lockRegistration selects the registry row of id and, where the dialect has
// row locks, holds it until the transaction ends so a concurrent mover waits
// and then sees the committed stage. sqlite already serializes writers.
func lockRegistration(db bun.IDB, id string, dst *entity.OrderRegistration) *bun.SelectQuery {
	q := db.NewSelect().Model(dst).Where("r.order_id = ?", id)
	if db.Dialect().Name() == dialect.SQLite {
		return q
	}
	return q.For("UPDATE")
}

func insertInto(db bun.IDB, p entity.Partition, order *entity.Order) *bun.InsertQuery {
	return db.NewInsert().Model(order).ModelTableExpr("?", bun.Ident(p.Table()))
}

func selectByID(db bun.IDB, p entity.Partition, id string, dst *entity.Order) *bun.SelectQuery {
	return db.NewSelect().
		Model(dst).
		ModelTableExpr("? AS o", bun.Ident(p.Table())).
		Where("o.id = ?", id)
}

func deleteFrom(db bun.IDB, p entity.Partition) *bun.DeleteQuery {
	return db.NewDelete().
		Model((*entity.Order)(nil)).
		ModelTableExpr("? AS o", bun.Ident(p.Table()))
}

func mapUnique(err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateIdentifier, err)
	}
	return err
}

func recordError(span trace.Span, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		span.SetStatus(codes.Error, "not found")
	case errors.Is(err, ErrDuplicateIdentifier), errors.Is(err, ErrInvalidTransition):
		span.SetStatus(codes.Error, err.Error())
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
	}
}

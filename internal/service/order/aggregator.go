package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

// ErrPartialAggregation matches any aggregation where at least one partition failed.
var ErrPartialAggregation = errors.New("partial aggregation failure")

// PartialAggregationError lists every partition that could not be read.
type PartialAggregationError struct {
	Failed []entity.Partition
	Causes map[entity.Partition]error
}

func (e *PartialAggregationError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, p := range e.Failed {
		names = append(names, fmt.Sprintf("%s (%v)", p, e.Causes[p]))
	}
	return fmt.Sprintf("%s: %s", ErrPartialAggregation, strings.Join(names, ", "))
}

// Is lets errors.Is match ErrPartialAggregation.
func (e *PartialAggregationError) Is(target error) bool {
	return target == ErrPartialAggregation
}

// Unwrap exposes the per-partition causes.
func (e *PartialAggregationError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, p := range e.Failed {
		out = append(out, e.Causes[p])
	}
	return out
}

// Aggregator builds the staff view across every partition. It never writes.
type Aggregator struct {
	store  Store
	logger *zap.Logger
}

// NewAggregator wires an Aggregator.
func NewAggregator(p Params) *Aggregator {
	return &Aggregator{store: p.Store, logger: loggerOrNop(p.Logger)}
}

// MergeAll reads every partition concurrently and returns the union tagged with
// each record's partition, newest order first with ties broken by id. If any
// partition fails the whole call fails and no data is returned.
func (a *Aggregator) MergeAll(ctx context.Context) ([]entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderAggregator.MergeAll")
	defer span.End()

	results := make([][]entity.Order, len(entity.Partitions))
	errs := make([]error, len(entity.Partitions))

	release := a.store.HoldRelocations()
	var g errgroup.Group
	for i, p := range entity.Partitions {
		g.Go(func() error {
			orders, err := a.store.List(ctx, p)
			if err != nil {
				errs[i] = err
				return nil
			}
			for j := range orders {
				orders[j].Collection = p
			}
			results[i] = orders
			return nil
		})
	}
	_ = g.Wait()
	release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed := partialError(errs); failed != nil {
		a.logger.Warn("staff aggregation failed", zap.Error(failed))
		span.RecordError(failed)
		span.SetStatus(codes.Error, "partial aggregation")
		return nil, failed
	}

	total := 0
	for _, orders := range results {
		total += len(orders)
	}
	merged := make([]entity.Order, 0, total)
	for _, orders := range results {
		merged = append(merged, orders...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].OrderDate.Equal(merged[j].OrderDate) {
			return merged[i].OrderDate.After(merged[j].OrderDate)
		}
		return merged[i].ID < merged[j].ID
	})

	span.SetAttributes(attribute.Int("orders.total", len(merged)))
	return merged, nil
}

// Counts holds per-partition totals.
type Counts struct {
	ByPartition map[entity.Partition]int
	Total       int
}

// Counts returns how many orders matching filter sit in each partition, read
// under the same consistency guard as MergeAll.
func (a *Aggregator) Counts(ctx context.Context, filter *repo.Filter) (Counts, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderAggregator.Counts")
	defer span.End()

	counts := make([]int, len(entity.Partitions))
	errs := make([]error, len(entity.Partitions))

	release := a.store.HoldRelocations()
	var g errgroup.Group
	for i, p := range entity.Partitions {
		g.Go(func() error {
			counts[i], errs[i] = a.store.Count(ctx, p, filter)
			return nil
		})
	}
	_ = g.Wait()
	release()

	if err := ctx.Err(); err != nil {
		return Counts{}, err
	}
	if failed := partialError(errs); failed != nil {
		span.RecordError(failed)
		span.SetStatus(codes.Error, "partial aggregation")
		return Counts{}, failed
	}

	out := Counts{ByPartition: make(map[entity.Partition]int, len(entity.Partitions))}
	for i, p := range entity.Partitions {
		out.ByPartition[p] = counts[i]
		out.Total += counts[i]
	}
	return out, nil
}

func partialError(errs []error) *PartialAggregationError {
	var failed *PartialAggregationError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if failed == nil {
			failed = &PartialAggregationError{Causes: make(map[entity.Partition]error)}
		}
		p := entity.Partitions[i]
		failed.Failed = append(failed.Failed, p)
		failed.Causes[p] = err
	}
	return failed
}

package order

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

// Janitor removes synthetic test orders. It selects strictly by the test flag;
// names, emails and amounts that merely look fake are never considered.
type Janitor struct {
	store     Store
	logger    *zap.Logger
	publisher messaging.Client
	metrics   instruments
	now       func() time.Time
}

// NewJanitor wires a Janitor.
func NewJanitor(p Params) *Janitor {
	return &Janitor{
		store:     p.Store,
		logger:    loggerOrNop(p.Logger),
		publisher: p.Publisher,
		metrics:   newInstruments(),
		now:       time.Now,
	}
}

// PurgeTestRecords deletes every test-flagged order from every partition and
// reports how many rows each partition lost. Finding nothing is not an error.
// On failure the counts removed so far are returned with the error.
func (j *Janitor) PurgeTestRecords(ctx context.Context) (map[entity.Partition]int64, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderJanitor.PurgeTestRecords")
	defer span.End()

	removed := make(map[entity.Partition]int64, len(entity.Partitions))
	var total int64
	for _, p := range entity.Partitions {
		n, err := j.store.DeleteWhere(ctx, p, repo.OnlyTest())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "purge failed")
			return removed, fmt.Errorf("purge %s: %w", p, err)
		}
		removed[p] = n
		total += n
		j.metrics.purged.Add(ctx, n, metric.WithAttributes(attribute.String("order.partition", string(p))))
	}

	j.logger.Info("test orders purged",
		zap.Int64("pending", removed[entity.PartitionPending]),
		zap.Int64("accepted", removed[entity.PartitionAccepted]),
		zap.Int64("delivered", removed[entity.PartitionDelivered]),
	)
	span.SetAttributes(attribute.Int64("orders.purged", total))

	if total > 0 {
		publishEvent(ctx, j.publisher, j.logger, EventOrdersPurged, "janitor", OrdersPurgedEvent{
			Removed:  removed,
			PurgedAt: j.now().UTC(),
		})
	}
	return removed, nil
}

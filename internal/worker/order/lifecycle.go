package order

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/messaging"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orderdesk/worker/order")

// Module registers order lifecycle handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		asHandler(NewOrderCreatedHandler),
		asHandler(NewOrderMovedHandler),
		asHandler(NewOrderImportedHandler),
		asHandler(NewOrdersPurgedHandler),
	),
)

func asHandler(ctor any) any {
	return fx.Annotate(ctor, fx.ResultTags(`group:"worker.handlers"`))
}

// NewOrderCreatedHandler logs checkout orders.
func NewOrderCreatedHandler(logger *zap.Logger) worker.HandlerRegistration {
	return register(ordersvc.EventOrderCreated, func(event ordersvc.OrderCreatedEvent) {
		logger.Info("order created",
			zap.String("id", event.ID),
			zap.String("user_id", event.UserID),
			zap.String("total", event.Total),
			zap.String("currency", event.Currency),
		)
	}, logger)
}

// NewOrderMovedHandler logs partition moves.
func NewOrderMovedHandler(logger *zap.Logger) worker.HandlerRegistration {
	return register(ordersvc.EventOrderMoved, func(event ordersvc.OrderMovedEvent) {
		logger.Info("order moved",
			zap.String("id", event.ID),
			zap.Stringer("from", event.From),
			zap.Stringer("to", event.To),
			zap.Time("moved_at", event.MovedAt),
		)
	}, logger)
}

// NewOrderImportedHandler logs migrated legacy orders.
func NewOrderImportedHandler(logger *zap.Logger) worker.HandlerRegistration {
	return register(ordersvc.EventOrderImported, func(event ordersvc.OrderImportedEvent) {
		logger.Info("legacy order imported",
			zap.String("id", event.ID),
			zap.String("user_id", event.UserID),
			zap.String("dedupe_key", event.DedupeKey),
		)
	}, logger)
}

// NewOrdersPurgedHandler logs janitor runs.
func NewOrdersPurgedHandler(logger *zap.Logger) worker.HandlerRegistration {
	return register(ordersvc.EventOrdersPurged, func(event ordersvc.OrdersPurgedEvent) {
		fields := []zap.Field{zap.Time("purged_at", event.PurgedAt)}
		for p, n := range event.Removed {
			fields = append(fields, zap.Int64(string(p), n))
		}
		logger.Info("test orders purged", fields...)
	}, logger)
}

func register[T any](eventType string, handle func(T), logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.orders."+eventType, trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.String("messaging.event_type", eventType),
		))
		defer span.End()

		var event T
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event", zap.String("event", eventType), zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		handle(event)
		return nil
	}

	return worker.HandlerRegistration{EventType: eventType, Handler: handler}
}

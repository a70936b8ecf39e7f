// Package worker consumes order lifecycle events from the message bus and
// routes each one to the handler registered for its event type.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/messaging"
)

const maxConsumeBackoff = 30 * time.Second

var meter = otel.Meter("github.com/Additional-Code/orderdesk/worker")

// HandlerRegistration binds a lifecycle event type to its handler.
type HandlerRegistration struct {
	EventType string
	Handler   messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine runs a fixed number of consumers against one client.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	workers  config.Worker
	enabled  bool
	handlers map[string]messaging.Handler
	handled  metric.Int64Counter

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Module wires the engine into the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{OnStart: engine.Start, OnStop: engine.Stop})
	}),
)

// NewEngine constructs the worker Engine. Registrations without an event
// type or handler are ignored; a later registration for the same event wins.
func NewEngine(p Params) *Engine {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handlers := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.EventType == "" || r.Handler == nil {
			continue
		}
		handlers[r.EventType] = r.Handler
	}

	handled, err := meter.Int64Counter("orderdesk.worker.events",
		metric.WithDescription("Lifecycle events consumed, by event type and outcome."))
	if err != nil {
		logger.Warn("worker counter unavailable", zap.Error(err))
	}

	return &Engine{
		client:   p.Client,
		logger:   logger,
		workers:  p.Config.Messaging.Workers,
		enabled:  p.Config.Messaging.Enabled && p.Config.Messaging.Workers.Enabled,
		handlers: handlers,
		handled:  handled,
	}
}

// Start launches the consumers. It returns immediately.
func (e *Engine) Start(context.Context) error {
	if !e.enabled {
		e.logger.Info("worker engine disabled")
		return nil
	}
	if len(e.handlers) == 0 {
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	concurrency := max(e.workers.Concurrency, 1)
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.group = &errgroup.Group{}
	for i := 0; i < concurrency; i++ {
		workerID := i
		e.group.Go(func() error {
			e.consume(runCtx, workerID)
			return nil
		})
	}

	e.logger.Info("worker engine started", zap.Int("workers", concurrency), zap.Int("handlers", len(e.handlers)))
	return nil
}

// Stop cancels the consumers and waits for in-flight messages.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	}
}

// Dispatch routes msg to the handler registered for its event type. Messages
// without a handler are acknowledged and dropped.
func (e *Engine) Dispatch(ctx context.Context, msg messaging.Message) error {
	event := msg.EventType()
	handler, ok := e.handlers[event]
	if !ok {
		e.logger.Warn("no handler for event", zap.String("event", event), zap.String("topic", msg.Topic))
		e.count(ctx, event, "unrouted")
		return nil
	}
	if err := handler(msg.Context(ctx), msg); err != nil {
		e.count(ctx, event, "failed")
		return err
	}
	e.count(ctx, event, "handled")
	return nil
}

func (e *Engine) count(ctx context.Context, event, outcome string) {
	if e.handled == nil {
		return
	}
	e.handled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

// consume keeps one consumer attached to the bus, backing off exponentially
// from the poll interval while the client keeps failing.
func (e *Engine) consume(ctx context.Context, workerID int) {
	base := e.workers.PollInterval
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.WithCappedDuration(maxConsumeBackoff, retry.NewExponential(base))

	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			e.logger.Debug("processing message",
				zap.String("event", msg.EventType()),
				zap.Int64("offset", msg.Offset),
				zap.Int("worker", workerID),
			)
			return e.Dispatch(msgCtx, msg)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		e.logger.Error("consume loop error", zap.Int("worker", workerID), zap.Error(err))
		return retry.RetryableError(err)
	})
}

// Package cache holds short-lived keyed state, such as pending verification
// codes, behind a backend chosen by configuration.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

var tracer = otel.Tracer("github.com/Additional-Code/orderdesk/cache")

// Store is a keyed byte store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var (
	// ErrCacheMiss indicates the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
	// ErrUnavailable wraps backend failures the caller may retry later.
	ErrUnavailable = errors.New("cache unavailable")
	// ErrEmptyKey rejects writes without a key.
	ErrEmptyKey = errors.New("cache key is required")
)

// Module provides the cache store to the Fx graph.
var Module = fx.Provide(NewStore)

// NewStore builds the configured backend and scopes every key under
// cfg.Cache.KeyPrefix.
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var backend Store
	switch cfg.Cache.Driver {
	case "memory":
		logger.Info("using in-process memory cache")
		backend = NewMemoryStore(cfg.Cache.DefaultTTL)
	case "redis":
		backend = newRedisStore(lc, cfg.Cache, logger)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}

	return &instrumented{next: backend, prefix: cfg.Cache.KeyPrefix, driver: cfg.Cache.Driver}, nil
}

// instrumented prefixes keys and traces each call.
type instrumented struct {
	next   Store
	prefix string
	driver string
}

func (s *instrumented) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "cache."+op, trace.WithAttributes(attribute.String("cache.driver", s.driver)))
}

func (s *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.start(ctx, "Get")
	defer span.End()

	value, err := s.next.Get(ctx, s.prefix+key)
	span.SetAttributes(attribute.Bool("cache.hit", err == nil))
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return value, err
}

func (s *instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	ctx, span := s.start(ctx, "Set")
	defer span.End()

	err := s.next.Set(ctx, s.prefix+key, value, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	ctx, span := s.start(ctx, "Delete")
	defer span.End()

	err := s.next.Delete(ctx, s.prefix+key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

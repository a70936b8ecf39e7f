// Package observability owns the process-wide trace and metric providers.
// Instrumented packages only talk to the otel globals; this package decides
// what sits behind them.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

const (
	serviceVersion   = "0.1.0"
	shutdownTimeout  = 10 * time.Second
	exporterDeadline = 10 * time.Second
	stdoutInterval   = 30 * time.Second
)

// Module exposes the observability manager to Fx.
var Module = fx.Provide(NewManager)

// Manager holds the configured providers. A nil provider means the signal is
// off and the otel no-op globals stay in place.
type Manager struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsHandler http.Handler
	registerer     prometheus.Registerer
	cfg            config.Observability
	logger         *zap.Logger
}

// NewManager builds providers from configuration and installs them as otel
// globals when the application starts.
func NewManager(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Manager, error) {
	mgr, err := build(context.Background(), cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			mgr.install()
			return nil
		},
		OnStop: mgr.Shutdown,
	})
	return mgr, nil
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	obs := cfg.Observability
	env := obs.Environment
	if cfg.App.Environment != "" {
		env = string(cfg.App.Environment)
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithHost(),
		sdkresource.WithAttributes(
			semconv.ServiceName(obs.ServiceName),
			semconv.ServiceVersion(serviceVersion),
			attribute.String("deployment.environment", env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability resource: %w", err)
	}

	mgr := &Manager{registerer: reg, cfg: obs, logger: logger}
	if obs.EnableTracing {
		exporter, err := mgr.spanExporter(ctx)
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		if exporter != nil {
			mgr.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(res),
				sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRatio(obs.TraceSampling)))),
			)
		}
	}
	if obs.EnableMetrics {
		reader, handler, err := mgr.metricReader()
		if err != nil {
			return nil, fmt.Errorf("metric reader: %w", err)
		}
		if reader != nil {
			mgr.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
			mgr.metricsHandler = handler
		}
	}
	return mgr, nil
}

func samplingRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}

// spanExporter returns nil for an unknown exporter name; tracing is then off.
func (m *Manager) spanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch m.cfg.TraceExporter {
	case "", "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		if m.cfg.TraceEndpoint == "" {
			return nil, errors.New("OBS_OTLP_ENDPOINT must be set for the otlp exporter")
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(m.cfg.TraceEndpoint)}
		if m.cfg.TraceInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		dialCtx, cancel := context.WithTimeout(ctx, exporterDeadline)
		defer cancel()
		return otlptracegrpc.New(dialCtx, opts...)
	default:
		m.logger.Warn("unsupported trace exporter; tracing disabled", zap.String("exporter", m.cfg.TraceExporter))
		return nil, nil
	}
}

// metricReader returns the reader and, for prometheus, the scrape handler.
func (m *Manager) metricReader() (sdkmetric.Reader, http.Handler, error) {
	switch m.cfg.MetricsExporter {
	case "prometheus":
		exporter, err := promexporter.New(promexporter.WithRegisterer(m.registerer))
		if err != nil {
			return nil, nil, err
		}
		var handler http.Handler = promhttp.Handler()
		if gatherer, ok := m.registerer.(prometheus.Gatherer); ok && m.registerer != prometheus.DefaultRegisterer {
			handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		}
		return exporter, handler, nil
	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint(), stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, nil, err
		}
		return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(stdoutInterval)), nil, nil
	default:
		m.logger.Warn("unsupported metrics exporter; metrics disabled", zap.String("exporter", m.cfg.MetricsExporter))
		return nil, nil, nil
	}
}

// install publishes the providers as the otel globals.
func (m *Manager) install() {
	if m.tracerProvider != nil {
		otel.SetTracerProvider(m.tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	}
	if m.meterProvider != nil {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// Shutdown flushes pending spans and metric readings.
func (m *Manager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var err error
	if m.tracerProvider != nil {
		err = errors.Join(err, m.tracerProvider.Shutdown(ctx))
	}
	if m.meterProvider != nil {
		err = errors.Join(err, m.meterProvider.Shutdown(ctx))
	}
	return err
}

// TracingEnabled reports whether spans are exported.
func (m *Manager) TracingEnabled() bool {
	return m.tracerProvider != nil
}

// MetricsEnabled reports whether metrics are exported.
func (m *Manager) MetricsEnabled() bool {
	return m.meterProvider != nil
}

// MetricsHandler is the Prometheus scrape handler, or nil.
func (m *Manager) MetricsHandler() http.Handler {
	return m.metricsHandler
}

// PrometheusPath returns the configured scrape path.
func (m *Manager) PrometheusPath() string {
	return m.cfg.PrometheusPath
}

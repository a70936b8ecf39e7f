package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/observability"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(
		NewEcho,
		func(conns *database.Connections) Pinger { return conns },
	),
	fx.Invoke(RegisterHealth, Run),
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewEcho configures the Echo router with basic middleware.
func NewEcho(cfg config.Config, obs *observability.Manager, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		appErr := fromEcho(err)
		if appErr.StatusCode() >= http.StatusInternalServerError {
			logger.Error("http request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		_ = response.New(c).WithError(appErr).Build()
	}

	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	if obs != nil && obs.MetricsEnabled() && obs.MetricsHandler() != nil {
		e.GET(obs.PrometheusPath(), echo.WrapHandler(obs.MetricsHandler()))
	}

	return e
}

// RegisterHealth exposes a liveness probe that also checks the store.
func RegisterHealth(e *echo.Echo, store Pinger, cfg config.Config) {
	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":      "unavailable",
				"environment": string(cfg.App.Environment),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":      "ok",
			"environment": string(cfg.App.Environment),
		})
	})
}

func fromEcho(err error) *errorbank.AppError {
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		return errorbank.From(err)
	}
	message := http.StatusText(httpErr.Code)
	switch httpErr.Code {
	case http.StatusNotFound:
		return errorbank.NotFound(message)
	case http.StatusMethodNotAllowed, http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return errorbank.BadRequest(message)
	case http.StatusTooManyRequests:
		return errorbank.TooManyRequests(message)
	case http.StatusServiceUnavailable:
		return errorbank.Unavailable(message)
	default:
		return errorbank.Internal("internal error", errorbank.WithCause(err))
	}
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}

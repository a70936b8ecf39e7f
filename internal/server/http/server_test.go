package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthReflectsStore(t *testing.T) {
	cfg := config.Config{App: config.App{Environment: config.EnvLocal}}

	for name, tc := range map[string]struct {
		err    error
		status int
	}{
		"reachable":   {nil, nethttp.StatusOK},
		"unreachable": {errors.New("connection refused"), nethttp.StatusServiceUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			e := NewEcho(cfg, nil, zap.NewNop())
			RegisterHealth(e, pinger{tc.err}, cfg)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/health", nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"environment":"local"`)
		})
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	e := NewEcho(config.Config{}, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/api/nothing", nil))
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"kind":"not_found","message":"Not Found"}}`, rec.Body.String())
}

package order_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database/dbtest"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	service "github.com/Additional-Code/orderdesk/internal/service/order"
	ordertransport "github.com/Additional-Code/orderdesk/internal/transport/http/order"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Kind    string         `json:"kind"`
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type orderBody struct {
	ID            string `json:"id"`
	Collection    string `json:"collection"`
	Status        string `json:"status"`
	DisplayStatus string `json:"displayStatus"`
	BuyerName     string `json:"buyerName"`
	Total         string `json:"total"`
}

type brokenStore struct {
	service.Store
}

func (brokenStore) List(ctx context.Context, p entity.Partition) ([]entity.Order, error) {
	if p == entity.PartitionDelivered {
		return nil, repo.ErrStoreUnavailable
	}
	return nil, nil
}

func newServer(t *testing.T, wrap func(service.Store) service.Store) *echo.Echo {
	t.Helper()
	cfg := config.Config{Store: config.Store{OpTimeout: 2 * time.Second, MaxRetries: 1, RetryBackoff: time.Millisecond}}
	var store service.Store = repo.NewRepository(dbtest.New(t), cfg, zap.NewNop())
	if wrap != nil {
		store = wrap(store)
	}
	p := service.Params{Store: store, Config: cfg, Logger: zap.NewNop()}

	e := echo.New()
	ordertransport.Register(e, ordertransport.NewHandler(ordertransport.Params{
		Service:    service.NewService(p),
		Aggregator: service.NewAggregator(p),
		Importer:   service.NewImporter(p),
		Janitor:    service.NewJanitor(p),
	}))
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func place(t *testing.T, e *echo.Echo, body string) orderBody {
	t.Helper()
	status, env := call(t, e, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, status, string(env.Data))
	var o orderBody
	require.NoError(t, json.Unmarshal(env.Data, &o))
	return o
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	e := newServer(t, nil)

	created := place(t, e, `{"userId":"u-1","fullName":"Ada","items":[{"productId":"sku-1","quantity":2,"unitPrice":"2.50"}],"displayStatus":"Awaiting confirmation"}`)
	assert.Equal(t, "pending", created.Collection)
	assert.Equal(t, "Ada", created.BuyerName)
	assert.Equal(t, "5", created.Total)

	status, env := call(t, e, http.MethodPost, "/api/orders/"+created.ID+"/move", `{"from":"pending","to":"delivered"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "InvalidTransition", env.Error.Code)

	status, _ = call(t, e, http.MethodPost, "/api/orders/"+created.ID+"/move", `{"from":"pending","to":"accepted"}`)
	require.Equal(t, http.StatusOK, status)
	status, env = call(t, e, http.MethodPost, "/api/orders/"+created.ID+"/move", `{"from":"accepted","to":"delivered"}`)
	require.Equal(t, http.StatusOK, status)

	var moved orderBody
	require.NoError(t, json.Unmarshal(env.Data, &moved))
	assert.Equal(t, "delivered", moved.Collection)
	assert.Equal(t, "delivered", moved.Status)
	assert.Equal(t, "Awaiting confirmation", moved.DisplayStatus)

	status, env = call(t, e, http.MethodGet, "/api/orders/all-staff", "")
	require.Equal(t, http.StatusOK, status)
	var staff []orderBody
	require.NoError(t, json.Unmarshal(env.Data, &staff))
	require.Len(t, staff, 1)
	assert.Equal(t, "delivered", staff[0].Collection)

	status, env = call(t, e, http.MethodGet, "/api/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NotFound", env.Error.Code)
}

func TestCountsAndPurge(t *testing.T) {
	e := newServer(t, nil)
	for i := 0; i < 5; i++ {
		test := "false"
		if i < 2 {
			test = "true"
		}
		place(t, e, `{"userId":"u-1","items":[{"productId":"sku","quantity":1,"unitPrice":"1"}],"test":`+test+`}`)
	}

	status, env := call(t, e, http.MethodGet, "/api/orders/counts?test=true", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"partitions":{"pending":2,"accepted":0,"delivered":0},"total":2}`, string(env.Data))

	status, env = call(t, e, http.MethodDelete, "/api/orders/test-records", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"removed":{"pending":2,"accepted":0,"delivered":0},"total":2}`, string(env.Data))

	status, env = call(t, e, http.MethodGet, "/api/orders/partitions/pending?limit=2&order=asc", "")
	require.Equal(t, http.StatusOK, status)
	var recent []orderBody
	require.NoError(t, json.Unmarshal(env.Data, &recent))
	assert.Len(t, recent, 2)

	status, env = call(t, e, http.MethodGet, "/api/orders/partitions/archived", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidPartition", env.Error.Code)
}

func TestMigrateEndpoint(t *testing.T) {
	e := newServer(t, nil)
	body := `[{"id":"legacy-1","userId":"u-1","items":[{"productId":"sku","quantity":1,"unitPrice":"3"}],"orderDate":"2024-01-02T03:04:05Z"},{"userId":"","items":[]}]`

	status, env := call(t, e, http.MethodPost, "/api/orders/migrate", body)
	require.Equal(t, http.StatusOK, status)
	var report service.ImportReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.Imported)
	assert.Len(t, report.Rejected, 1)

	_, env = call(t, e, http.MethodPost, "/api/orders/migrate", body)
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 1, report.Skipped)
}

func TestAllStaffNamesUnavailablePartitions(t *testing.T) {
	e := newServer(t, func(s service.Store) service.Store { return brokenStore{Store: s} })

	status, env := call(t, e, http.MethodGet, "/api/orders/all-staff", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, env.Success)
	assert.Equal(t, "PartialAggregationFailure", env.Error.Code)
	assert.Equal(t, []any{"delivered"}, env.Error.Details["partitions"])
	assert.Empty(t, env.Data)
}

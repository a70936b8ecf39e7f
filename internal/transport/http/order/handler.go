package order

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	service "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/order")

// Module registers the order routes on the shared Echo instance.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc        *service.Service
	aggregator *service.Aggregator
	importer   *service.Importer
	janitor    *service.Janitor
}

// Params collects the order services.
type Params struct {
	fx.In

	Service    *service.Service
	Aggregator *service.Aggregator
	Importer   *service.Importer
	Janitor    *service.Janitor
}

// NewHandler constructs an order Handler.
func NewHandler(p Params) *Handler {
	return &Handler{svc: p.Service, aggregator: p.Aggregator, importer: p.Importer, janitor: p.Janitor}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/api/orders")
	g.GET("/all-staff", h.allStaff)
	g.GET("/counts", h.counts)
	g.GET("/partitions/:partition", h.listPartition)
	g.POST("/migrate", h.migrate)
	g.DELETE("/test-records", h.purgeTestRecords)
	g.POST("", h.place)
	g.GET("/:id", h.getByID)
	g.POST("/:id/move", h.move)
}

func (h *Handler) allStaff(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.allStaff")
	defer span.End()

	orders, err := h.aggregator.MergeAll(ctx)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))

	return b.WithData(dto.NewOrderResponses(orders)).WithMeta("count", len(orders)).Build()
}

func (h *Handler) counts(c echo.Context) error {
	b := response.New(c)

	var filter *repo.Filter
	if raw := c.QueryParam("test"); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			return b.WithError(errorbank.BadRequest("test must be true or false", errorbank.WithCause(err))).Build()
		}
		filter = &repo.Filter{Test: &flag}
	}

	counts, err := h.aggregator.Counts(c.Request().Context(), filter)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.CountsResponse{Partitions: counts.ByPartition, Total: counts.Total}).Build()
}

func (h *Handler) listPartition(c echo.Context) error {
	b := response.New(c)

	p, err := entity.ParsePartition(c.Param("partition"))
	if err != nil {
		return b.WithError(errorbank.BadRequest(err.Error(), errorbank.WithCode("InvalidPartition"))).Build()
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return b.WithError(errorbank.BadRequest("limit must be a non-negative integer")).Build()
		}
	}

	newestFirst := true
	switch strings.ToLower(c.QueryParam("order")) {
	case "", "desc":
	case "asc":
		newestFirst = false
	default:
		return b.WithError(errorbank.BadRequest("order must be asc or desc")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.listPartition", trace.WithAttributes(attribute.String("order.partition", string(p))))
	defer span.End()

	orders, err := h.svc.ListRecent(ctx, p, limit, newestFirst)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.NewOrderResponses(orders)).WithPagination(limit, len(orders)).Build()
}

func (h *Handler) place(c echo.Context) error {
	b := response.New(c)

	var payload dto.PlaceOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.place")
	defer span.End()

	order, err := h.svc.Place(ctx, service.PlaceInput{
		UserID:        payload.UserID,
		FullName:      payload.FullName,
		BuyerInfo:     payload.BuyerInfo,
		Items:         dto.ToEntityItems(payload.Items),
		Currency:      payload.Currency,
		DisplayStatus: payload.DisplayStatus,
		OrderNumber:   payload.OrderNumber,
		Test:          payload.Test,
	})
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	return b.WithStatus(http.StatusCreated).WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) move(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload dto.MoveOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	from, err := entity.ParsePartition(payload.From)
	if err != nil {
		return b.WithError(errorbank.BadRequest("from: "+err.Error(), errorbank.WithCode("InvalidPartition"))).Build()
	}
	to, err := entity.ParsePartition(payload.To)
	if err != nil {
		return b.WithError(errorbank.BadRequest("to: "+err.Error(), errorbank.WithCode("InvalidPartition"))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.move", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.from", string(from)),
		attribute.String("order.to", string(to)),
	))
	defer span.End()

	order, err := h.svc.Move(ctx, id, from, to)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) migrate(c echo.Context) error {
	b := response.New(c)

	var records []service.LegacyOrder
	if err := c.Bind(&records); err != nil {
		return b.WithError(errorbank.BadRequest("expected a JSON array of legacy orders", errorbank.WithCause(err))).Build()
	}

	report, err := h.importer.ImportLegacy(c.Request().Context(), records)
	if err != nil {
		return b.WithError(toAppError(err)).WithMeta("report", report).Build()
	}
	return b.WithData(report).Build()
}

func (h *Handler) purgeTestRecords(c echo.Context) error {
	b := response.New(c)

	removed, err := h.janitor.PurgeTestRecords(c.Request().Context())
	resp := dto.PurgeResponse{Removed: removed}
	for _, n := range removed {
		resp.Total += n
	}
	if err != nil {
		return b.WithError(toAppError(err)).WithMeta("removed", resp.Removed).Build()
	}
	return b.WithData(resp).Build()
}

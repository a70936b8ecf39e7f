package auth

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	"github.com/Additional-Code/orderdesk/internal/service/verification"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/auth")

// Module wires the verification-code endpoints.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Handler exposes verification-code endpoints over HTTP.
type Handler struct {
	svc *verification.Service
}

// NewHandler constructs an auth Handler.
func NewHandler(svc *verification.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/api/auth")
	g.POST("/create-verification-code", h.createCode)
	g.POST("/verify-code", h.verifyCode)
}

func (h *Handler) createCode(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateVerificationCodeRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auth.createVerificationCode")
	defer span.End()

	issued, err := h.svc.CreateCode(ctx, payload.Email, payload.UserName)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.CreateVerificationCodeResponse{
		VerificationCode: issued.Code,
		ExpiresAt:        issued.ExpiresAt,
	}).Build()
}

func (h *Handler) verifyCode(c echo.Context) error {
	b := response.New(c)

	var payload dto.VerifyCodeRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Code == "" {
		return b.WithError(errorbank.BadRequest("code is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auth.verifyCode")
	defer span.End()

	if err := h.svc.VerifyCode(ctx, payload.Email, payload.Code); err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.VerifyCodeResponse{Email: payload.Email, Verified: true}).Build()
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, verification.ErrInvalidEmail):
		return errorbank.BadRequest("a valid email is required", errorbank.WithCode("InvalidEmail"))
	case errors.Is(err, verification.ErrNoActiveCode):
		return errorbank.NotFound("no active verification code for this email", errorbank.WithCode("NoActiveCode"))
	case errors.Is(err, verification.ErrCodeExpired):
		return errorbank.Gone("verification code expired, request a new one", errorbank.WithCode("CodeExpired"))
	case errors.Is(err, verification.ErrCodeMismatch):
		return errorbank.Unprocessable("verification code does not match", errorbank.WithCode("CodeMismatch"))
	case errors.Is(err, verification.ErrTooManyAttempts):
		return errorbank.TooManyRequests("too many attempts, request a new code", errorbank.WithCode("TooManyAttempts"))
	case errors.Is(err, cache.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return errorbank.Unavailable("verification store unavailable, retry shortly", errorbank.WithCode("StoreUnavailable"), errorbank.WithCause(err))
	default:
		return errorbank.Internal("internal error", errorbank.WithCause(err))
	}
}

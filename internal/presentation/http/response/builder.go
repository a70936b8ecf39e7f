// Package response renders the JSON envelope shared by every HTTP endpoint:
//
//	{"success": true,  "data": ..., "meta": {...}}
//	{"success": false, "error": {"kind", "code", "message", "details"}, "meta": {...}}
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// Envelope is the wire shape of every response body.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody describes a failed request. Code is the stable name clients
// switch on.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Builder accumulates one response and writes it on Build.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

// New starts a 200 response for the request in ctx.
func New(ctx echo.Context) *Builder {
	b := &Builder{ctx: ctx, status: http.StatusOK}
	if id := ctx.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		b.WithMeta("requestId", id)
	}
	return b
}

// WithStatus overrides the success status. Error statuses come from the error kind.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithPagination records the requested window size and the rows returned.
func (b *Builder) WithPagination(limit, returned int) *Builder {
	return b.WithMeta("limit", limit).WithMeta("count", returned)
}

func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// Build writes the envelope. Unknown errors are rendered as an opaque 500.
func (b *Builder) Build() error {
	if b.err == nil {
		return b.ctx.JSON(b.status, Envelope{Success: true, Data: b.data, Meta: b.meta})
	}

	appErr := errorbank.From(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}
	return b.ctx.JSON(status, Envelope{
		Error: &ErrorBody{
			Kind:    string(appErr.Kind()),
			Code:    appErr.Code(),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.meta,
	})
}

package errorbank_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		err    *errorbank.AppError
		status int
		grpc   codes.Code
	}{
		{errorbank.BadRequest("x"), http.StatusBadRequest, codes.InvalidArgument},
		{errorbank.Conflict("x"), http.StatusConflict, codes.AlreadyExists},
		{errorbank.NotFound("x"), http.StatusNotFound, codes.NotFound},
		{errorbank.Gone("x"), http.StatusGone, codes.NotFound},
		{errorbank.Unprocessable("x"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{errorbank.TooManyRequests("x"), http.StatusTooManyRequests, codes.ResourceExhausted},
		{errorbank.Unavailable("x"), http.StatusServiceUnavailable, codes.Unavailable},
		{errorbank.Internal("x"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(string(tc.err.Kind()), func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.StatusCode())
			assert.Equal(t, tc.grpc, tc.err.GRPCCode())
		})
	}
}

func TestFromKeepsWrappedAppError(t *testing.T) {
	cause := errors.New("boom")
	appErr := errorbank.Gone("code expired", errorbank.WithCode("CodeExpired"), errorbank.WithCause(cause))
	wrapped := fmt.Errorf("verify: %w", appErr)

	got := errorbank.From(wrapped)
	assert.Same(t, appErr, got)
	assert.Equal(t, "CodeExpired", got.Code())
	assert.ErrorIs(t, got, cause)
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	got := errorbank.From(errors.New("driver exploded"))
	assert.Equal(t, errorbank.KindInternal, got.Kind())
	assert.Equal(t, "internal error", got.Message())
	assert.Empty(t, got.Code())
	assert.Nil(t, errorbank.From(nil))
}

func TestDetailsMerge(t *testing.T) {
	err := errorbank.Unavailable("partitions down",
		errorbank.WithDetail("partitions", []string{"accepted"}),
		errorbank.WithDetails(map[string]any{"retryable": true}),
	)
	assert.Equal(t, []string{"accepted"}, err.Details()["partitions"])
	assert.Equal(t, true, err.Details()["retryable"])
}

func TestGRPCStatusFromWrappedError(t *testing.T) {
	err := fmt.Errorf("move: %w", errorbank.Unprocessable("cannot move order", errorbank.WithCode("InvalidTransition")))

	st, ok := status.FromError(err)
	assert.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Contains(t, st.Message(), "cannot move order")
}

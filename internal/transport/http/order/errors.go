package order

import (
	"context"
	"errors"

	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	service "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// toAppError maps store and service failures onto typed API errors.
func toAppError(err error) error {
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var partial *service.PartialAggregationError
	switch {
	case errors.As(err, &partial):
		return errorbank.Unavailable("one or more order partitions are unavailable",
			errorbank.WithCode("PartialAggregationFailure"),
			errorbank.WithDetail("partitions", partial.Failed),
			errorbank.WithCause(err),
		)
	case errors.Is(err, repo.ErrDuplicateIdentifier):
		return errorbank.Conflict("order identifier already exists", errorbank.WithCode("DuplicateIdentifier"), errorbank.WithCause(err))
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found", errorbank.WithCode("NotFound"), errorbank.WithCause(err))
	case errors.Is(err, repo.ErrInvalidTransition):
		return errorbank.Unprocessable("orders move pending, accepted, delivered one stage at a time",
			errorbank.WithCode("InvalidTransition"),
			errorbank.WithCause(err),
		)
	case errors.Is(err, repo.ErrInvalidPartition):
		return errorbank.BadRequest("unknown partition", errorbank.WithCode("InvalidPartition"), errorbank.WithCause(err))
	case errors.Is(err, repo.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return errorbank.Unavailable("order store unavailable, retry later", errorbank.WithCode("StoreUnavailable"), errorbank.WithCause(err))
	default:
		return errorbank.Internal("internal error", errorbank.WithCause(err))
	}
}

package order

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/database"
)

// run executes fn with a per-attempt deadline, retrying transient failures with
// exponential backoff. Exhausted retries surface as ErrStoreUnavailable.
func (r *Repository) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(r.maxRetries), retry.NewExponential(r.retryBackoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && isTransient(err) {
			if r.logger != nil {
				r.logger.Warn("order store call failed; retrying",
					zap.String("op", op),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %s after %d attempts: %v", ErrStoreUnavailable, op, attempt, err)
	}
	return err
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return database.IsBusy(err)
}

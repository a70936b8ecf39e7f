package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderdesk/repository/user")

// ErrNotFound is returned when no account has the requested email.
var ErrNotFound = errors.New("user not found")

// Module provides the user repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository records email verification on accounts owned by the account service.
type Repository struct {
	writer    *bun.DB
	opTimeout time.Duration
	now       func() time.Time
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections, cfg config.Config) *Repository {
	return &Repository{
		writer:    conns.Writer,
		opTimeout: cfg.Store.OpTimeout,
		now:       time.Now,
	}
}

// MarkEmailVerified flags the account for email as verified.
func (r *Repository) MarkEmailVerified(ctx context.Context, email string) error {
	ctx, span := repoTracer.Start(ctx, "UserRepository.MarkEmailVerified")
	defer span.End()
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.writer.NewUpdate().
		Model((*entity.User)(nil)).
		Set("email_verified = ?", true).
		Set("updated_at = ?", r.now().UTC()).
		Where("email = ?", normalize(email)).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

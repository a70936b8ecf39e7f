package verification

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/notify"
	"github.com/Additional-Code/orderdesk/internal/repository/user"
)

var (
	tracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/verification")
	meter  = otel.Meter("github.com/Additional-Code/orderdesk/service/verification")
)

var (
	// ErrNoActiveCode is returned when no code was issued or it was already used.
	ErrNoActiveCode = errors.New("no active verification code")
	// ErrCodeExpired is returned for a code past its expiry.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeMismatch is returned when the submitted code differs.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrTooManyAttempts is returned once the guess budget is spent; the code is discarded.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrInvalidEmail is returned for malformed addresses.
	ErrInvalidEmail = errors.New("invalid email address")
)

// Issued is a freshly created code. The plain code only exists here.
type Issued struct {
	Code      string
	ExpiresAt time.Time
}

// UserStore records successful verification on the account.
type UserStore interface {
	MarkEmailVerified(ctx context.Context, email string) error
}

// Notifier delivers the code out of band. It must not block.
type Notifier interface {
	SendVerificationCode(to, userName, code string)
}

// Module provides the verification service to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *user.Repository) UserStore { return r },
		func(d *notify.Dispatcher) Notifier { return d },
		NewService,
	),
)

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Cache    cache.Store
	Users    UserStore
	Notifier Notifier `optional:"true"`
	Config   config.Config
	Logger   *zap.Logger
}

// Service issues and consumes one-time registration codes. Codes live in the
// cache keyspace under one key per email, so issuing a new code replaces the
// previous one.
type Service struct {
	cache    cache.Store
	users    UserStore
	notifier Notifier
	logger   *zap.Logger

	codeLength  int
	ttl         time.Duration
	retention   time.Duration
	maxAttempts int
	hashCost    int

	locks    *keyLock
	now      func() time.Time
	random   io.Reader
	outcomes metric.Int64Counter
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	outcomes, err := meter.Int64Counter("verification.outcomes", metric.WithDescription("Verification results by outcome"))
	if err != nil {
		outcomes = noop.Int64Counter{}
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cache:       p.Cache,
		users:       p.Users,
		notifier:    p.Notifier,
		logger:      logger,
		codeLength:  p.Config.Verification.CodeLength,
		ttl:         p.Config.Verification.TTL,
		retention:   p.Config.Verification.ExpiredRetention,
		maxAttempts: p.Config.Verification.MaxAttempts,
		hashCost:    p.Config.Verification.HashCost,
		locks:       newKeyLock(),
		now:         time.Now,
		random:      rand.Reader,
		outcomes:    outcomes,
	}
}

// CreateCode issues a new code for email, replacing any earlier one, and hands
// it to the notifier.
func (s *Service) CreateCode(ctx context.Context, email, userName string) (Issued, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Issued{}, err
	}
	ctx, span := tracer.Start(ctx, "VerificationService.CreateCode")
	defer span.End()

	unlock := s.locks.Lock(email)
	defer unlock()

	code, err := s.generate()
	if err != nil {
		return Issued{}, fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return Issued{}, fmt.Errorf("hash code: %w", err)
	}

	now := s.now().UTC()
	record := entity.VerificationCode{
		Email:     email,
		CodeHash:  string(hash),
		UserName:  strings.TrimSpace(userName),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.save(ctx, &record); err != nil {
		return Issued{}, err
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "issued")))
	s.logger.Info("verification code issued", zap.String("email", email), zap.Time("expires_at", record.ExpiresAt))

	if s.notifier != nil {
		s.notifier.SendVerificationCode(email, record.UserName, code)
	}
	return Issued{Code: code, ExpiresAt: record.ExpiresAt}, nil
}

// VerifyCode consumes the active code for email when code matches it. A code
// can be consumed once; afterwards ErrNoActiveCode is returned.
func (s *Service) VerifyCode(ctx context.Context, email, code string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "VerificationService.VerifyCode")
	defer span.End()

	unlock := s.locks.Lock(email)
	defer unlock()

	err = s.verify(ctx, email, strings.TrimSpace(code))
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(err))))
	return err
}

func (s *Service) verify(ctx context.Context, email, code string) error {
	record, err := s.load(ctx, email)
	if err != nil {
		return err
	}
	if record.Consumed {
		return ErrNoActiveCode
	}
	if record.Expired(s.now()) {
		return ErrCodeExpired
	}
	if record.Attempts >= s.maxAttempts {
		return s.discard(ctx, email, ErrTooManyAttempts)
	}

	if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) != nil {
		record.Attempts++
		if record.Attempts >= s.maxAttempts {
			s.logger.Warn("verification attempts exhausted", zap.String("email", email))
			return s.discard(ctx, email, ErrTooManyAttempts)
		}
		if err := s.save(ctx, record); err != nil {
			return err
		}
		return ErrCodeMismatch
	}

	if err := s.cache.Delete(ctx, codeKey(email)); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}

	if err := s.users.MarkEmailVerified(ctx, email); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.logger.Info("verified email has no account yet", zap.String("email", email))
		} else {
			s.logger.Error("mark email verified", zap.String("email", email), zap.Error(err))
		}
	}
	s.logger.Info("verification code consumed", zap.String("email", email))
	return nil
}

func (s *Service) discard(ctx context.Context, email string, cause error) error {
	if err := s.cache.Delete(ctx, codeKey(email)); err != nil {
		return fmt.Errorf("discard code: %w", err)
	}
	return cause
}

func (s *Service) load(ctx context.Context, email string) (*entity.VerificationCode, error) {
	raw, err := s.cache.Get(ctx, codeKey(email))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrNoActiveCode
	}
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}
	var record entity.VerificationCode
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode code: %w", err)
	}
	return &record, nil
}

// save stores record until its expiry plus the retention window, so a late
// verify sees ErrCodeExpired instead of ErrNoActiveCode.
func (s *Service) save(ctx context.Context, record *entity.VerificationCode) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode code: %w", err)
	}
	ttl := record.ExpiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.cache.Set(ctx, codeKey(record.Email), raw, ttl); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	return nil
}

func (s *Service) generate() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.codeLength)), nil)
	n, err := rand.Int(s.random, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", s.codeLength, n), nil
}

func codeKey(email string) string {
	return "verification:" + email
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, ErrNoActiveCode):
		return "no_active_code"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	case errors.Is(err, ErrCodeMismatch):
		return "mismatch"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	default:
		return "error"
	}
}

package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/repository/user"
)

type fakeUsers struct {
	mu       sync.Mutex
	verified []string
	missing  bool
}

func (f *fakeUsers) MarkEmailVerified(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return user.ErrNotFound
	}
	f.verified = append(f.verified, email)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string]string
}

func (f *fakeNotifier) SendVerificationCode(to, _, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[to] = code
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.Config {
	return config.Config{Verification: config.Verification{
		CodeLength:       6,
		TTL:              10 * time.Minute,
		MaxAttempts:      5,
		ExpiredRetention: 10 * time.Minute,
		HashCost:         4,
	}}
}

func newTestService(t *testing.T, store cache.Store) (*Service, *fakeUsers, *fakeNotifier, *clock) {
	t.Helper()
	users := &fakeUsers{}
	notifier := &fakeNotifier{}
	clk := &clock{now: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}
	svc := NewService(Params{Cache: store, Users: users, Notifier: notifier, Config: testConfig(), Logger: zap.NewNop()})
	svc.now = clk.Now
	return svc, users, notifier, clk
}

func TestCreateAndVerifyOnce(t *testing.T) {
	ctx := context.Background()
	svc, users, notifier, clk := newTestService(t, cache.NewMemoryStore(time.Minute))

	issued, err := svc.CreateCode(ctx, " Ada@Example.com ", "Ada")
	require.NoError(t, err)
	assert.Len(t, issued.Code, 6)
	assert.Equal(t, clk.Now().Add(10*time.Minute), issued.ExpiresAt)
	assert.Equal(t, issued.Code, notifier.sent["ada@example.com"])

	require.NoError(t, svc.VerifyCode(ctx, "ada@example.com", issued.Code))
	assert.Equal(t, []string{"ada@example.com"}, users.verified)

	assert.ErrorIs(t, svc.VerifyCode(ctx, "ada@example.com", issued.Code), ErrNoActiveCode)
}

func TestNewCodeSupersedesOld(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, cache.NewMemoryStore(time.Minute))

	first, err := svc.CreateCode(ctx, "a@x.com", "A")
	require.NoError(t, err)
	second, err := svc.CreateCode(ctx, "a@x.com", "A")
	require.NoError(t, err)

	if first.Code != second.Code {
		assert.ErrorIs(t, svc.VerifyCode(ctx, "a@x.com", first.Code), ErrCodeMismatch)
	}
	require.NoError(t, svc.VerifyCode(ctx, "a@x.com", second.Code))
}

func TestExpiredCode(t *testing.T) {
	ctx := context.Background()
	svc, users, _, clk := newTestService(t, cache.NewMemoryStore(time.Minute))

	issued, err := svc.CreateCode(ctx, "late@x.com", "")
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	assert.ErrorIs(t, svc.VerifyCode(ctx, "late@x.com", issued.Code), ErrCodeExpired)
	assert.Empty(t, users.verified)
}

func TestMismatchThenAttemptCap(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, cache.NewMemoryStore(time.Minute))

	issued, err := svc.CreateCode(ctx, "guess@x.com", "")
	require.NoError(t, err)
	wrong := "000000"
	if issued.Code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, svc.VerifyCode(ctx, "guess@x.com", wrong), ErrCodeMismatch, "attempt %d", i+1)
	}
	assert.ErrorIs(t, svc.VerifyCode(ctx, "guess@x.com", wrong), ErrTooManyAttempts)

	// The right code no longer works; a new one must be issued.
	assert.ErrorIs(t, svc.VerifyCode(ctx, "guess@x.com", issued.Code), ErrNoActiveCode)
}

func TestVerifyWithoutCode(t *testing.T) {
	svc, _, _, _ := newTestService(t, cache.NewMemoryStore(time.Minute))
	assert.ErrorIs(t, svc.VerifyCode(context.Background(), "nobody@x.com", "123456"), ErrNoActiveCode)
	assert.ErrorIs(t, svc.VerifyCode(context.Background(), "not-an-email", "123456"), ErrInvalidEmail)
	_, err := svc.CreateCode(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestMissingAccountStillConsumesCode(t *testing.T) {
	ctx := context.Background()
	svc, users, _, _ := newTestService(t, cache.NewMemoryStore(time.Minute))
	users.missing = true

	issued, err := svc.CreateCode(ctx, "new@x.com", "")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyCode(ctx, "new@x.com", issued.Code))
	assert.ErrorIs(t, svc.VerifyCode(ctx, "new@x.com", issued.Code), ErrNoActiveCode)
}

func TestCodesInRedisKeyspace(t *testing.T) {
	mr := miniredis.RunT(t)
	lc := fxtest.NewLifecycle(t)
	store, err := cache.NewStore(lc, config.Config{Cache: config.Cache{Driver: "redis", Redis: config.Redis{Addr: mr.Addr()}}}, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	ctx := context.Background()
	svc, _, _, _ := newTestService(t, store)

	issued, err := svc.CreateCode(ctx, "r@x.com", "R")
	require.NoError(t, err)
	assert.True(t, mr.Exists("verification:r@x.com"))
	assert.Equal(t, 20*time.Minute, mr.TTL("verification:r@x.com"))

	stored, err := mr.Get("verification:r@x.com")
	require.NoError(t, err)
	assert.NotContains(t, stored, issued.Code)

	require.NoError(t, svc.VerifyCode(ctx, "r@x.com", issued.Code))
	assert.False(t, mr.Exists("verification:r@x.com"))
}

func TestConcurrentVerifySucceedsOnce(t *testing.T) {
	ctx := context.Background()
	svc, users, _, _ := newTestService(t, cache.NewMemoryStore(time.Minute))

	issued, err := svc.CreateCode(ctx, "race@x.com", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.VerifyCode(ctx, "race@x.com", issued.Code)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNoActiveCode)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, users.verified, 1)
	assert.Zero(t, svc.locks.size())
}

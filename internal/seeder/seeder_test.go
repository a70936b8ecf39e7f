package seeder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database/dbtest"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/seeder"
)

func newSeeder(t *testing.T, env config.Environment) (*seeder.Seeder, *ordersvc.Aggregator) {
	t.Helper()
	cfg := config.Config{
		App:   config.App{Environment: env},
		Store: config.Store{OpTimeout: 2 * time.Second, MaxRetries: 1, RetryBackoff: time.Millisecond},
	}
	store := repo.NewRepository(dbtest.New(t), cfg, zap.NewNop())
	p := ordersvc.Params{Store: store, Config: cfg, Logger: zap.NewNop()}
	agg := ordersvc.NewAggregator(p)
	return seeder.New(ordersvc.NewService(p), agg, cfg, zap.NewNop()), agg
}

func TestSeedSpreadsTestOrdersAcrossPartitions(t *testing.T) {
	s, agg := newSeeder(t, config.EnvLocal)
	ctx := context.Background()

	written, err := s.Orders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	counts, err := agg.Counts(ctx, repo.OnlyTest())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	for _, p := range entity.Partitions {
		assert.Equal(t, 1, counts.ByPartition[p], p)
	}

	again, err := s.Orders(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestSeedRefusesProduction(t *testing.T) {
	s, _ := newSeeder(t, config.EnvProduction)
	_, err := s.Orders(context.Background())
	assert.ErrorIs(t, err, seeder.ErrProduction)
}

package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
)

func TestMergeAllTagsAndSorts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seed(t, store, entity.PartitionPending, "p-1", day.Add(2*time.Hour), false)
	seed(t, store, entity.PartitionAccepted, "a-1", day.Add(3*time.Hour), false)
	seed(t, store, entity.PartitionDelivered, "d-1", day.Add(time.Hour), false)
	seed(t, store, entity.PartitionDelivered, "d-0", day.Add(2*time.Hour), false)

	merged, err := ordersvc.NewAggregator(params(store, nil)).MergeAll(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 4)

	got := make([]string, 0, len(merged))
	tags := map[string]entity.Partition{}
	for _, o := range merged {
		got = append(got, o.ID)
		tags[o.ID] = o.Collection
	}
	assert.Equal(t, []string{"a-1", "d-0", "p-1", "d-1"}, got)

	total := 0
	for _, p := range entity.Partitions {
		n, err := store.Count(ctx, p, nil)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, total, len(merged))
	assert.Equal(t, map[string]entity.Partition{
		"p-1": entity.PartitionPending,
		"a-1": entity.PartitionAccepted,
		"d-1": entity.PartitionDelivered,
		"d-0": entity.PartitionDelivered,
	}, tags)
}

func TestMergeAllEmptyStore(t *testing.T) {
	merged, err := ordersvc.NewAggregator(params(newStore(t), nil)).MergeAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func TestMergeAllReportsEveryFailedPartition(t *testing.T) {
	store := newStore(t)
	seed(t, store, entity.PartitionPending, "p-1", day, false)

	flaky := &flakyStore{Store: store, failing: map[entity.Partition]bool{
		entity.PartitionAccepted:  true,
		entity.PartitionDelivered: true,
	}}
	merged, err := ordersvc.NewAggregator(params(flaky, nil)).MergeAll(context.Background())
	assert.Nil(t, merged)
	require.ErrorIs(t, err, ordersvc.ErrPartialAggregation)
	assert.ErrorIs(t, err, errReplicaDown)

	var partial *ordersvc.PartialAggregationError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []entity.Partition{entity.PartitionAccepted, entity.PartitionDelivered}, partial.Failed)
}

func TestMergeAllHonoursCancellation(t *testing.T) {
	store := newStore(t)
	flaky := &flakyStore{Store: store, block: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	merged, err := ordersvc.NewAggregator(params(flaky, nil)).MergeAll(ctx)
	assert.Nil(t, merged)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ordersvc.ErrPartialAggregation)
}

func TestMergeAllSeesMovedOrderExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for i := 0; i < 10; i++ {
		seed(t, store, entity.PartitionPending, string(rune('a'+i)), day.Add(time.Duration(i)*time.Minute), false)
	}
	agg := ordersvc.NewAggregator(params(store, nil))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, _ = store.Move(ctx, string(rune('a'+i)), entity.PartitionPending, entity.PartitionAccepted)
		}
	}()

	for round := 0; round < 5; round++ {
		merged, err := agg.MergeAll(ctx)
		require.NoError(t, err)
		assert.Len(t, merged, 10)
	}
	<-done
}

func TestCounts(t *testing.T) {
	store := newStore(t)
	seed(t, store, entity.PartitionPending, "p-1", day, true)
	seed(t, store, entity.PartitionPending, "p-2", day, false)
	seed(t, store, entity.PartitionDelivered, "d-1", day, true)
	agg := ordersvc.NewAggregator(params(store, nil))

	all, err := agg.Counts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 2, all.ByPartition[entity.PartitionPending])
	assert.Equal(t, 0, all.ByPartition[entity.PartitionAccepted])

	tests, err := agg.Counts(context.Background(), repo.OnlyTest())
	require.NoError(t, err)
	assert.Equal(t, 2, tests.Total)

	flaky := &flakyStore{Store: store, failing: map[entity.Partition]bool{entity.PartitionPending: true}}
	_, err = ordersvc.NewAggregator(params(flaky, nil)).Counts(context.Background(), nil)
	assert.ErrorIs(t, err, ordersvc.ErrPartialAggregation)
}

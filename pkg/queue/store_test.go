package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantifiedself/ingest-server/pkg/testing/mocks"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(db *mocks.MockDatabase, now time.Time) *Store {
	store := NewStore(db, testLogger())
	store.Now = func() time.Time { return now }
	return store
}

func TestItemID_Deterministic(t *testing.T) {
	assert.Equal(t, "GarminHealthAPI_user-1_A1", ItemID("GarminHealthAPI", "user-1", "A1"))
	assert.Equal(t, ItemID("GarminHealthAPI", "user-1", "A1"), ItemID("GarminHealthAPI", "user-1", "A1"))
}

func TestEnqueue_CreatesPendingItem(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var created *types.QueueItem
	db := &mocks.MockDatabase{
		CreateQueueItemFunc: func(ctx context.Context, item *types.QueueItem) error {
			created = item
			return nil
		},
	}
	store := newTestStore(db, now)

	item, err := store.Enqueue(context.Background(), "GarminHealthAPI", "user-1", "A1")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "GarminHealthAPI_user-1_A1", created.ID)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, "A1", created.ActivityID)
	assert.Equal(t, 0, created.RetryCount)
	assert.False(t, created.Processed)
	assert.Equal(t, now, created.NextPossibleRun)
	assert.Equal(t, created, item)
}

func TestEnqueue_ExistingItemIsNotReset(t *testing.T) {
	now := time.Now()
	existing := &types.QueueItem{
		ID:         "GarminHealthAPI_user-1_A1",
		UserID:     "user-1",
		ActivityID: "A1",
		RetryCount: 7,
	}

	createCalls := 0
	db := &mocks.MockDatabase{
		GetQueueItemFunc: func(ctx context.Context, id string) (*types.QueueItem, error) {
			return existing, nil
		},
		CreateQueueItemFunc: func(ctx context.Context, item *types.QueueItem) error {
			createCalls++
			return nil
		},
	}
	store := newTestStore(db, now)

	item, err := store.Enqueue(context.Background(), "GarminHealthAPI", "user-1", "A1")

	require.NoError(t, err)
	assert.Equal(t, 0, createCalls)
	assert.Equal(t, existing, item)
	assert.Equal(t, 7, item.RetryCount)
}

func TestEnqueue_LookupFailureDoesNotOverwrite(t *testing.T) {
	now := time.Now()

	createCalls := 0
	db := &mocks.MockDatabase{
		GetQueueItemFunc: func(ctx context.Context, id string) (*types.QueueItem, error) {
			return nil, fmt.Errorf("firestore: transient unavailable")
		},
		CreateQueueItemFunc: func(ctx context.Context, item *types.QueueItem) error {
			createCalls++
			return nil
		},
	}
	store := newTestStore(db, now)

	item, err := store.Enqueue(context.Background(), "GarminHealthAPI", "user-1", "A1")

	// With the item's state unknown, a create could reset a live item's retry
	// state or flip a processed item back to pending.
	require.Error(t, err)
	assert.Nil(t, item)
	assert.Equal(t, 0, createCalls)
}

func TestListEligible_FiltersIneligibleItems(t *testing.T) {
	now := time.Now()
	db := &mocks.MockDatabase{
		ListEligibleQueueItemsFunc: func(ctx context.Context, serviceName string, at time.Time, maxRetryCount int) ([]*types.QueueItem, error) {
			return []*types.QueueItem{
				{ID: "ok", NextPossibleRun: now.Add(-time.Minute)},
				{ID: "done", Processed: true, NextPossibleRun: now.Add(-time.Minute)},
				{ID: "gated", NextPossibleRun: now.Add(time.Hour)},
				{ID: "exhausted", RetryCount: DefaultBackoff.MaxRetryCount, NextPossibleRun: now.Add(-time.Minute)},
			}, nil
		},
	}
	store := newTestStore(db, now)

	items, err := store.ListEligible(context.Background(), "GarminHealthAPI")

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ok", items[0].ID)
}

func TestMarkProcessed(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var updates []map[string]interface{}
	db := &mocks.MockDatabase{
		UpdateQueueItemFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			updates = append(updates, data)
			return nil
		},
	}
	store := newTestStore(db, now)
	item := &types.QueueItem{ID: "item-1"}

	require.NoError(t, store.MarkProcessed(context.Background(), item))

	require.Len(t, updates, 1)
	assert.Equal(t, true, updates[0]["processed"])
	assert.Equal(t, now, updates[0]["processed_at"])
	assert.True(t, item.Processed)
	assert.Equal(t, now, item.ProcessedAt)

	// A second completion is a no-op, not a second write.
	require.NoError(t, store.MarkProcessed(context.Background(), item))
	assert.Len(t, updates, 1)
}

func TestBumpRetry_DefaultIncrement(t *testing.T) {
	now := time.Now()

	var update map[string]interface{}
	db := &mocks.MockDatabase{
		UpdateQueueItemFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			update = data
			return nil
		},
	}
	store := newTestStore(db, now)
	item := &types.QueueItem{ID: "item-1", RetryCount: 2, TotalRetryCount: 2}

	require.NoError(t, store.BumpRetry(context.Background(), item, ConversionFailed(fmt.Errorf("bad fit"))))

	assert.Equal(t, 3, item.RetryCount)
	assert.Equal(t, 3, item.TotalRetryCount)
	assert.True(t, item.NextPossibleRun.After(now))

	require.NotNil(t, update)
	assert.Equal(t, 3, update["retry_count"])
	assert.Equal(t, 3, update["total_retry_count"])

	require.Len(t, item.Errors, 1)
	assert.Equal(t, 2, item.Errors[0].AtRetryCount)
	assert.Contains(t, item.Errors[0].Message, "bad fit")
}

func TestBumpRetry_AcceleratedIncrementOnVendorError(t *testing.T) {
	now := time.Now()
	db := &mocks.MockDatabase{}
	store := newTestStore(db, now)
	item := &types.QueueItem{ID: "item-1", RetryCount: 0}

	require.NoError(t, store.BumpRetry(context.Background(), item, fetchFailureWithStatus(400)))

	assert.Equal(t, 20, item.RetryCount)
	assert.Equal(t, 1, item.TotalRetryCount)
}

func TestBumpRetry_AppendsToErrorTrail(t *testing.T) {
	now := time.Now()
	db := &mocks.MockDatabase{}
	store := newTestStore(db, now)
	item := &types.QueueItem{ID: "item-1"}

	require.NoError(t, store.BumpRetry(context.Background(), item, EmptyResult()))
	require.NoError(t, store.BumpRetry(context.Background(), item, fetchFailureWithStatus(500)))

	require.Len(t, item.Errors, 2)
	assert.Equal(t, 0, item.Errors[0].AtRetryCount)
	assert.Equal(t, 1, item.Errors[1].AtRetryCount)
	assert.Equal(t, 21, item.RetryCount)
}

func TestBumpRetry_IgnoresProcessedItem(t *testing.T) {
	now := time.Now()

	updateCalls := 0
	db := &mocks.MockDatabase{
		UpdateQueueItemFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			updateCalls++
			return nil
		},
	}
	store := newTestStore(db, now)
	item := &types.QueueItem{ID: "item-1", Processed: true}

	require.NoError(t, store.BumpRetry(context.Background(), item, EmptyResult()))

	assert.Equal(t, 0, updateCalls)
	assert.Equal(t, 0, item.RetryCount)
}

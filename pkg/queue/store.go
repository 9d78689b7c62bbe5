package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	shared "github.com/quantifiedself/ingest-server/pkg"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

// Store implements the queue contract on top of the document database:
// idempotent enqueue, eligibility listing, terminal mark-processed and the
// retry/backoff state transition.
type Store struct {
	DB      shared.Database
	Backoff BackoffPolicy
	Logger  *slog.Logger

	// Now is injectable for tests.
	Now func() time.Time
}

func NewStore(db shared.Database, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		DB:      db,
		Backoff: DefaultBackoff,
		Logger:  logger,
		Now:     time.Now,
	}
}

// ItemID is the deterministic queue document id. Re-enqueueing the same
// activity for the same user lands on the same document.
func ItemID(serviceName, userID, activityID string) string {
	return types.IDFromParts(serviceName, userID, activityID)
}

// Enqueue creates a pending item, or returns the existing one when the
// (serviceName, userID, activityID) triple was enqueued before. Existing
// items are never reset; retry state belongs to the processor alone. When the
// existence check fails for any reason other than absence the item's state is
// unknown, so Enqueue errors out rather than risk a create over a live item.
func (s *Store) Enqueue(ctx context.Context, serviceName, userID, activityID string) (*types.QueueItem, error) {
	id := ItemID(serviceName, userID, activityID)

	existing, err := s.DB.GetQueueItem(ctx, id)
	if err == nil {
		s.Logger.Info("Queue item already exists, not re-enqueueing",
			"queue_item_id", id, "processed", existing.Processed, "retry_count", existing.RetryCount)
		return existing, nil
	}
	if !errors.Is(err, shared.ErrQueueItemNotFound) {
		return nil, fmt.Errorf("check queue item %s: %w", id, err)
	}

	now := s.Now()
	item := &types.QueueItem{
		ID:              id,
		UserID:          userID,
		ActivityID:      activityID,
		ServiceName:     serviceName,
		RetryCount:      0,
		NextPossibleRun: now,
		Processed:       false,
		CreatedAt:       now,
	}

	if err := s.DB.CreateQueueItem(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue queue item %s: %w", id, err)
	}

	s.Logger.Info("Enqueued queue item", "queue_item_id", id, "user_id", userID, "activity_id", activityID)
	return item, nil
}

// ListEligible returns the unprocessed items whose eligibility gate has
// passed and whose retry count is below the ceiling. The database query
// already encodes this; the filter here keeps the invariant even against a
// stale index.
func (s *Store) ListEligible(ctx context.Context, serviceName string) ([]*types.QueueItem, error) {
	now := s.Now()
	items, err := s.DB.ListEligibleQueueItems(ctx, serviceName, now, s.Backoff.MaxRetryCount)
	if err != nil {
		return nil, err
	}

	eligible := make([]*types.QueueItem, 0, len(items))
	for _, item := range items {
		if item.Processed || item.NextPossibleRun.After(now) || s.Backoff.Exhausted(item.RetryCount) {
			continue
		}
		eligible = append(eligible, item)
	}
	return eligible, nil
}

// MarkProcessed terminally completes an item. Calling it again for an
// already-processed item is a no-op; retry state is never touched.
func (s *Store) MarkProcessed(ctx context.Context, item *types.QueueItem) error {
	if item.Processed {
		s.Logger.Warn("MarkProcessed called on already-processed item", "queue_item_id", item.ID)
		return nil
	}

	now := s.Now()
	if err := s.DB.UpdateQueueItem(ctx, item.ID, map[string]interface{}{
		"processed":    true,
		"processed_at": now,
	}); err != nil {
		return fmt.Errorf("mark processed %s: %w", item.ID, err)
	}

	item.Processed = true
	item.ProcessedAt = now
	return nil
}

// BumpRetry absorbs a failure into the item's retry state: it advances the
// retry count by the policy's increment for the failure, records the failure
// in the item's audit trail and pushes the eligibility gate into the future.
// Items that pass the ceiling stay in the store but drop out of scheduling.
func (s *Store) BumpRetry(ctx context.Context, item *types.QueueItem, f *Failure) error {
	if item.Processed {
		s.Logger.Warn("BumpRetry called on processed item, ignoring", "queue_item_id", item.ID)
		return nil
	}

	now := s.Now()
	newCount := item.RetryCount + s.Backoff.Increment(f)
	nextRun := s.Backoff.NextRun(now, newCount)

	itemErr := &types.QueueItemError{
		Message:      f.Error(),
		AtRetryCount: item.RetryCount,
		At:           now,
	}
	errorTrail := append(append([]*types.QueueItemError{}, item.Errors...), itemErr)

	errs := make([]interface{}, 0, len(errorTrail))
	for _, e := range errorTrail {
		errs = append(errs, map[string]interface{}{
			"message":        e.Message,
			"at_retry_count": e.AtRetryCount,
			"at":             e.At,
		})
	}

	if err := s.DB.UpdateQueueItem(ctx, item.ID, map[string]interface{}{
		"retry_count":       newCount,
		"total_retry_count": item.TotalRetryCount + 1,
		"next_possible_run": nextRun,
		"errors":            errs,
	}); err != nil {
		return fmt.Errorf("bump retry %s: %w", item.ID, err)
	}

	item.RetryCount = newCount
	item.TotalRetryCount++
	item.NextPossibleRun = nextRun
	item.Errors = errorTrail

	if s.Backoff.Exhausted(newCount) {
		s.Logger.Error("Queue item permanently failed, retry ceiling exceeded",
			"queue_item_id", item.ID, "user_id", item.UserID, "retry_count", newCount, "cause", f.Error())
	} else {
		s.Logger.Warn("Queue item retry bumped",
			"queue_item_id", item.ID, "user_id", item.UserID,
			"retry_count", newCount, "next_possible_run", nextRun, "cause", f.Error())
	}

	return nil
}

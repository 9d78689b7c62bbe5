package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	shared "github.com/quantifiedself/ingest-server/pkg"
	infrapubsub "github.com/quantifiedself/ingest-server/pkg/infrastructure/pubsub"
	infrasentry "github.com/quantifiedself/ingest-server/pkg/infrastructure/sentry"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

// Fetcher downloads one raw activity file using a user's stored credential.
type Fetcher interface {
	DownloadActivityFile(ctx context.Context, cred *types.ServiceCredential, activityID string) ([]byte, error)
}

// ImportFunc converts raw activity-file bytes into a DomainEvent.
type ImportFunc func(data []byte) (*types.DomainEvent, error)

// Summary reports what one scheduler tick did.
type Summary struct {
	Eligible  int
	Processed int
	Retried   int
}

// Processor runs the per-item state machine:
//
//	credential -> fetch -> archive -> convert -> write -> processed
//
// Every failure is absorbed into a retry bump; nothing propagates to the
// scheduler, so one bad item can never abort a batch.
type Processor struct {
	DB      shared.Database
	Store   *Store
	Fetcher Fetcher
	Import  ImportFunc
	Blobs   shared.BlobStore
	Pub     shared.Publisher

	// ArtifactBucket receives raw file archives; archival is skipped when
	// empty.
	ArtifactBucket string
	// Workers bounds in-flight items per tick.
	Workers int

	Logger *slog.Logger
}

// ProcessEligible is one scheduler tick: list eligible items and run each to
// completion on a bounded worker pool. It returns once every dispatched item
// has finished or ctx is cancelled; items abandoned mid-flight keep their
// prior retry state and are picked up again next tick.
func (p *Processor) ProcessEligible(ctx context.Context, serviceName string) (Summary, error) {
	items, err := p.Store.ListEligible(ctx, serviceName)
	if err != nil {
		return Summary{}, fmt.Errorf("list eligible items: %w", err)
	}

	summary := Summary{Eligible: len(items)}
	if len(items) == 0 {
		return summary, nil
	}

	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan *types.QueueItem)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				if p.processItem(ctx, item) {
					mu.Lock()
					summary.Processed++
					mu.Unlock()
				} else {
					mu.Lock()
					summary.Retried++
					mu.Unlock()
				}
			}
		}()
	}

dispatch:
	for _, item := range items {
		select {
		case work <- item:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	p.Logger.Info("Queue tick complete",
		"service_name", serviceName,
		"eligible", summary.Eligible,
		"processed", summary.Processed,
		"retried", summary.Retried)

	return summary, ctx.Err()
}

// processItem runs steps 1-7 for one item and reports whether it reached the
// processed state. All failure branches, including panics, resolve to a
// retry bump.
func (p *Processor) processItem(ctx context.Context, item *types.QueueItem) (ok bool) {
	logger := p.Logger.With(
		"queue_item_id", item.ID,
		"user_id", item.UserID,
		"activity_id", item.ActivityID,
		"retry_count", item.RetryCount)

	logger.Info("Processing queue item")

	defer func() {
		if r := recover(); r != nil {
			err, isErr := r.(error)
			if !isErr {
				err = fmt.Errorf("panic: %v", r)
			}
			p.fail(ctx, item, Internal(err), logger)
			ok = false
		}
	}()

	// 1. Credential lookup. Absence keeps normal retry cadence; the token may
	// arrive later.
	cred, err := p.DB.GetServiceCredential(ctx, item.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNoCredential) {
			p.fail(ctx, item, NoCredential(err), logger)
		} else {
			p.fail(ctx, item, Internal(err), logger)
		}
		return false
	}

	// 2. Signed fetch.
	data, err := p.Fetcher.DownloadActivityFile(ctx, cred, item.ActivityID)
	if err != nil {
		p.fail(ctx, item, FetchFailed(err), logger)
		return false
	}

	// 3. A 2xx with no payload is still a failure; do not feed the converter.
	if len(data) == 0 {
		p.fail(ctx, item, EmptyResult(), logger)
		return false
	}

	// Archive the raw file so imports can be replayed. Best effort.
	if p.Blobs != nil && p.ArtifactBucket != "" {
		object := fmt.Sprintf("garmin/%s/%s.fit", item.UserID, item.ActivityID)
		if err := p.Blobs.Write(ctx, p.ArtifactBucket, object, data); err != nil {
			logger.Warn("Failed to archive raw activity file", "object", object, "error", err)
		}
	}

	// 4. Convert.
	event, err := p.Import(data)
	if err != nil {
		p.fail(ctx, item, ConversionFailed(err), logger)
		return false
	}

	// 5. Patch display name from the start time when the file carried none.
	if event.Name == "" {
		event.Name = event.StartTime.UTC().Format(time.RFC3339)
	}

	// 6. Persist under the composite id; re-imports overwrite in place.
	eventID := types.IDFromParts(item.ServiceName, item.ActivityID)
	event.ID = eventID
	meta := &types.EventMetaData{
		ServiceName:      item.ServiceName,
		ServiceWorkoutID: item.ActivityID,
		UserID:           item.UserID,
		ImportedAt:       p.Store.Now(),
	}
	if err := p.DB.SetEvent(ctx, item.UserID, eventID, event, meta); err != nil {
		p.fail(ctx, item, PersistenceFailed(err), logger)
		return false
	}

	// 7. Terminal transition. If this write fails the event is already stored
	// idempotently, so a rerun is harmless.
	if err := p.Store.MarkProcessed(ctx, item); err != nil {
		p.fail(ctx, item, PersistenceFailed(err), logger)
		return false
	}

	logger.Info("Queue item processed", "event_id", eventID)
	p.publish(ctx, shared.TopicEventImported, "com.quantifiedself.event.imported", item, eventID, logger)

	return true
}

// fail routes a classified failure into the retry state machine. It never
// returns an error: the caller is an unattended scheduler.
func (p *Processor) fail(ctx context.Context, item *types.QueueItem, f *Failure, logger *slog.Logger) {
	logger.Error("Queue item processing failed",
		"kind", f.Kind.String(),
		"status_code", f.StatusCode,
		"error", f.Err)

	infrasentry.CaptureException(f, map[string]interface{}{
		"queue_item_id": item.ID,
		"user_id":       item.UserID,
		"activity_id":   item.ActivityID,
		"failure_kind":  f.Kind.String(),
	}, logger)

	if err := p.Store.BumpRetry(ctx, item, f); err != nil {
		// The item keeps its prior state and is retried next tick.
		logger.Error("Failed to persist retry bump", "error", err)
		return
	}

	if p.Store.Backoff.Exhausted(item.RetryCount) {
		p.publish(ctx, shared.TopicEventImportFailed, "com.quantifiedself.event.import_failed", item, "", logger)
	}
}

// publish emits a CloudEvent notification. Best effort; failures are logged,
// never surfaced.
func (p *Processor) publish(ctx context.Context, topic, eventType string, item *types.QueueItem, eventID string, logger *slog.Logger) {
	if p.Pub == nil {
		return
	}

	payload := map[string]interface{}{
		"queue_item_id": item.ID,
		"user_id":       item.UserID,
		"activity_id":   item.ActivityID,
		"service_name":  item.ServiceName,
		"retry_count":   item.RetryCount,
	}
	if eventID != "" {
		payload["event_id"] = eventID
	}

	e, err := infrapubsub.NewCloudEvent("//ingest/garmin-queue-worker", eventType, payload)
	if err != nil {
		logger.Warn("Failed to build notification event", "error", err)
		return
	}
	e.SetID(uuid.NewString())

	if _, err := p.Pub.PublishCloudEvent(ctx, topic, e); err != nil {
		logger.Warn("Failed to publish notification", "topic", topic, "error", err)
	}
}

package database

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shared "github.com/quantifiedself/ingest-server/pkg"
	storage "github.com/quantifiedself/ingest-server/pkg/storage/firestore"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore
// It wraps our typed storage client
type FirestoreAdapter struct {
	storage *storage.Client // internal typed wrapper
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) CreateQueueItem(ctx context.Context, item *types.QueueItem) error {
	return a.storage.GarminQueue().Doc(item.ID).Set(ctx, item)
}

func (a *FirestoreAdapter) GetQueueItem(ctx context.Context, id string) (*types.QueueItem, error) {
	item, err := a.storage.GarminQueue().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("queue item %s: %w", id, shared.ErrQueueItemNotFound)
		}
		return nil, fmt.Errorf("get queue item %s: %w", id, err)
	}
	return item, nil
}

func (a *FirestoreAdapter) ListEligibleQueueItems(ctx context.Context, serviceName string, now time.Time, maxRetryCount int) ([]*types.QueueItem, error) {
	// Firestore permits range filters on a single field, so the retry ceiling
	// is applied in memory after the eligibility-gate query.
	items, err := a.storage.GarminQueue().
		Where("service_name", "==", serviceName).
		Where("processed", "==", false).
		Where("next_possible_run", "<=", now).
		Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list eligible queue items: %w", err)
	}

	eligible := make([]*types.QueueItem, 0, len(items))
	for _, item := range items {
		if item.RetryCount >= maxRetryCount {
			continue
		}
		eligible = append(eligible, item)
	}
	return eligible, nil
}

func (a *FirestoreAdapter) UpdateQueueItem(ctx context.Context, id string, data map[string]interface{}) error {
	return a.storage.GarminQueue().Doc(id).Update(ctx, data)
}

func (a *FirestoreAdapter) GetServiceCredential(ctx context.Context, userID string) (*types.ServiceCredential, error) {
	creds, err := a.storage.GarminTokens().
		Where("userID", "==", userID).
		Limit(1).
		Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, shared.ErrNoCredential
	}
	return creds[0], nil
}

// SetEvent writes the event document and its metadata sub-document in one
// batch, so a failed write never leaves metadata without an event.
func (a *FirestoreAdapter) SetEvent(ctx context.Context, ownerID, eventID string, e *types.DomainEvent, meta *types.EventMetaData) error {
	eventRef := a.storage.UserEvents(ownerID).Doc(eventID)
	metaRef := a.storage.EventMetaData(ownerID, eventID).Doc(meta.ServiceName)

	batch := a.storage.Raw().Batch()
	batch.Set(eventRef.Ref, storage.EventToFirestore(e), firestore.MergeAll)
	batch.Set(metaRef.Ref, storage.MetaDataToFirestore(meta), firestore.MergeAll)

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit event batch: %w", err)
	}
	return nil
}

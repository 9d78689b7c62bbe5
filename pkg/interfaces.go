package shared

import (
	"context"
	"errors"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/quantifiedself/ingest-server/pkg/types"
)

// ErrNoCredential is returned by GetServiceCredential when the user has no
// stored token for the service.
var ErrNoCredential = errors.New("no credential found for user")

// ErrQueueItemNotFound is returned by GetQueueItem when no document exists
// for the id. Callers must treat any other error as "state unknown", not as
// absence.
var ErrQueueItemNotFound = errors.New("queue item not found")

// --- Persistence Interfaces ---

type Database interface {
	// Queue items
	CreateQueueItem(ctx context.Context, item *types.QueueItem) error
	GetQueueItem(ctx context.Context, id string) (*types.QueueItem, error)
	ListEligibleQueueItems(ctx context.Context, serviceName string, now time.Time, maxRetryCount int) ([]*types.QueueItem, error)
	UpdateQueueItem(ctx context.Context, id string, data map[string]interface{}) error

	// Credentials (read-only from the ingestion core's perspective)
	GetServiceCredential(ctx context.Context, userID string) (*types.ServiceCredential, error)

	// Events
	SetEvent(ctx context.Context, ownerID, eventID string, e *types.DomainEvent, meta *types.EventMetaData) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

package mocks

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/quantifiedself/ingest-server/pkg"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

// --- Mock Database ---
type MockDatabase struct {
	CreateQueueItemFunc        func(ctx context.Context, item *types.QueueItem) error
	GetQueueItemFunc           func(ctx context.Context, id string) (*types.QueueItem, error)
	ListEligibleQueueItemsFunc func(ctx context.Context, serviceName string, now time.Time, maxRetryCount int) ([]*types.QueueItem, error)
	UpdateQueueItemFunc        func(ctx context.Context, id string, data map[string]interface{}) error
	GetServiceCredentialFunc   func(ctx context.Context, userID string) (*types.ServiceCredential, error)
	SetEventFunc               func(ctx context.Context, ownerID, eventID string, e *types.DomainEvent, meta *types.EventMetaData) error
}

func (m *MockDatabase) CreateQueueItem(ctx context.Context, item *types.QueueItem) error {
	if m.CreateQueueItemFunc != nil {
		return m.CreateQueueItemFunc(ctx, item)
	}
	return nil
}

func (m *MockDatabase) GetQueueItem(ctx context.Context, id string) (*types.QueueItem, error) {
	if m.GetQueueItemFunc != nil {
		return m.GetQueueItemFunc(ctx, id)
	}
	return nil, shared.ErrQueueItemNotFound
}

func (m *MockDatabase) ListEligibleQueueItems(ctx context.Context, serviceName string, now time.Time, maxRetryCount int) ([]*types.QueueItem, error) {
	if m.ListEligibleQueueItemsFunc != nil {
		return m.ListEligibleQueueItemsFunc(ctx, serviceName, now, maxRetryCount)
	}
	return nil, nil
}

func (m *MockDatabase) UpdateQueueItem(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateQueueItemFunc != nil {
		return m.UpdateQueueItemFunc(ctx, id, data)
	}
	return nil
}

func (m *MockDatabase) GetServiceCredential(ctx context.Context, userID string) (*types.ServiceCredential, error) {
	if m.GetServiceCredentialFunc != nil {
		return m.GetServiceCredentialFunc(ctx, userID)
	}
	return nil, fmt.Errorf("credential not found")
}

func (m *MockDatabase) SetEvent(ctx context.Context, ownerID, eventID string, e *types.DomainEvent, meta *types.EventMetaData) error {
	if m.SetEventFunc != nil {
		return m.SetEventFunc(ctx, ownerID, eventID, e, meta)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}

// --- Mock Storage ---
type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}

func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}

// --- Mock Fetcher ---
type MockFetcher struct {
	DownloadActivityFileFunc func(ctx context.Context, cred *types.ServiceCredential, activityID string) ([]byte, error)
}

func (m *MockFetcher) DownloadActivityFile(ctx context.Context, cred *types.ServiceCredential, activityID string) ([]byte, error) {
	if m.DownloadActivityFileFunc != nil {
		return m.DownloadActivityFileFunc(ctx, cred, activityID)
	}
	return []byte("mock-fit-data"), nil
}

package garminwebhook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantifiedself/ingest-server/pkg/queue"
	"github.com/quantifiedself/ingest-server/pkg/testing/mocks"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

func newTestRouter(db *mocks.MockDatabase) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(&Handler{Store: queue.NewStore(db, logger), Logger: logger})
}

func TestPing(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&mocks.MockDatabase{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestActivityNotification_EnqueuesEachFile(t *testing.T) {
	var created []*types.QueueItem
	db := &mocks.MockDatabase{
		CreateQueueItemFunc: func(ctx context.Context, item *types.QueueItem) error {
			created = append(created, item)
			return nil
		},
	}

	body := `{"activityFiles":[
		{"userId":"user-1","activityId":1001},
		{"userId":"user-2","activityId":"A2"}
	]}`
	rec := httptest.NewRecorder()
	newTestRouter(db).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/activity", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":2,"enqueued":2}`, rec.Body.String())

	require.Len(t, created, 2)
	assert.Equal(t, "GarminHealthAPI_user-1_1001", created[0].ID)
	assert.Equal(t, "GarminHealthAPI_user-2_A2", created[1].ID)
}

func TestActivityNotification_MalformedBodyStillAcknowledged(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&mocks.MockDatabase{}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/activity", strings.NewReader("not json")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":0,"enqueued":0}`, rec.Body.String())
}

func TestActivityNotification_StoreFailureStillAcknowledged(t *testing.T) {
	db := &mocks.MockDatabase{
		CreateQueueItemFunc: func(ctx context.Context, item *types.QueueItem) error {
			return fmt.Errorf("firestore unavailable")
		},
	}

	body := `{"activityFiles":[{"userId":"user-1","activityId":1001}]}`
	rec := httptest.NewRecorder()
	newTestRouter(db).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/activity", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":1,"enqueued":0}`, rec.Body.String())
}

func TestActivityNotification_SkipsFilesWithMissingIdentifiers(t *testing.T) {
	createCalls := 0
	db := &mocks.MockDatabase{
		CreateQueueItemFunc: func(ctx context.Context, item *types.QueueItem) error {
			createCalls++
			return nil
		},
	}

	body := `{"activityFiles":[{"userId":"","activityId":1001},{"userId":"user-1"}]}`
	rec := httptest.NewRecorder()
	newTestRouter(db).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/activity", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, createCalls)
	assert.JSONEq(t, `{"received":2,"enqueued":0}`, rec.Body.String())
}

func TestManualEnqueue(t *testing.T) {
	var created *types.QueueItem
	db := &mocks.MockDatabase{
		CreateQueueItemFunc: func(ctx context.Context, item *types.QueueItem) error {
			created = item
			return nil
		},
	}

	rec := httptest.NewRecorder()
	newTestRouter(db).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/activity/manual?userId=user-1&activityId=A9", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":1,"enqueued":1}`, rec.Body.String())
	require.NotNil(t, created)
	assert.Equal(t, "GarminHealthAPI_user-1_A9", created.ID)
}

func TestManualEnqueue_AcceptsGet(t *testing.T) {
	var created *types.QueueItem
	db := &mocks.MockDatabase{
		CreateQueueItemFunc: func(ctx context.Context, item *types.QueueItem) error {
			created = item
			return nil
		},
	}

	rec := httptest.NewRecorder()
	newTestRouter(db).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/activity/manual?userId=user-1&activityId=A9", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, created)
	assert.Equal(t, "GarminHealthAPI_user-1_A9", created.ID)
}

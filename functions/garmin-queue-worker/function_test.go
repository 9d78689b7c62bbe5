package garminqueueworker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantifiedself/ingest-server/pkg/bootstrap"
	"github.com/quantifiedself/ingest-server/pkg/framework"
	"github.com/quantifiedself/ingest-server/pkg/testing/mocks"
)

func testService() *bootstrap.Service {
	return &bootstrap.Service{
		DB:  &mocks.MockDatabase{},
		Pub: &mocks.MockPublisher{},
		Config: &bootstrap.Config{
			GarminConsumerKey:    "key",
			GarminConsumerSecret: "secret",
			WorkerPoolSize:       4,
		},
	}
}

func testFwCtx(svc *bootstrap.Service) *framework.FrameworkContext {
	return &framework.FrameworkContext{
		Service: svc,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestProcessHandler_EmptyQueue(t *testing.T) {
	svc := testService()

	outputs, err := processHandler(context.Background(), event.New(), testFwCtx(svc))

	require.NoError(t, err)
	result, ok := outputs.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "SUCCESS", result["status"])
	assert.Equal(t, 0, result["eligible"])
}

func TestProcessHandler_MissingCredentialsFails(t *testing.T) {
	svc := testService()
	svc.Config.GarminConsumerKey = ""

	_, err := processHandler(context.Background(), event.New(), testFwCtx(svc))

	assert.Error(t, err)
}

func TestNewProcessor_Wiring(t *testing.T) {
	svc := testService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := NewProcessor(svc, logger)

	assert.Equal(t, svc.DB, p.DB)
	assert.NotNil(t, p.Store)
	assert.NotNil(t, p.Fetcher)
	assert.NotNil(t, p.Import)
	assert.Equal(t, 4, p.Workers)
}

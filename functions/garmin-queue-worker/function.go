package garminqueueworker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/quantifiedself/ingest-server/pkg"
	"github.com/quantifiedself/ingest-server/pkg/bootstrap"
	"github.com/quantifiedself/ingest-server/pkg/domain/fitimporter"
	"github.com/quantifiedself/ingest-server/pkg/framework"
	"github.com/quantifiedself/ingest-server/pkg/garmin"
	infrasentry "github.com/quantifiedself/ingest-server/pkg/infrastructure/sentry"
	"github.com/quantifiedself/ingest-server/pkg/queue"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("ProcessGarminQueue", ProcessGarminQueue)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	if svc != nil {
		return svc, nil
	}
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
		if svcErr != nil {
			slog.Error("Failed to initialize service", "error", svcErr)
		}
	})
	return svc, svcErr
}

// ProcessGarminQueue is the entry point. Cloud Scheduler publishes a tick to
// the trigger topic every 20 minutes.
func ProcessGarminQueue(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	defer infrasentry.Flush(2 * time.Second)
	return framework.WrapCloudEvent("garmin-queue-worker", svc, processHandler)(ctx, e)
}

// processHandler runs one queue tick.
func processHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	cfg := fwCtx.Service.Config

	if cfg.GarminConsumerKey == "" || cfg.GarminConsumerSecret == "" {
		return nil, fmt.Errorf("garmin consumer credentials are not configured")
	}

	processor := NewProcessor(fwCtx.Service, fwCtx.Logger)

	summary, err := processor.ProcessEligible(ctx, shared.ServiceNameGarminHealthAPI)
	if err != nil {
		return nil, fmt.Errorf("queue tick: %w", err)
	}

	return map[string]interface{}{
		"status":    "SUCCESS",
		"eligible":  summary.Eligible,
		"processed": summary.Processed,
		"retried":   summary.Retried,
	}, nil
}

// NewProcessor assembles the queue processor from the service's dependencies.
func NewProcessor(svc *bootstrap.Service, logger *slog.Logger) *queue.Processor {
	cfg := svc.Config
	return &queue.Processor{
		DB:             svc.DB,
		Store:          queue.NewStore(svc.DB, logger),
		Fetcher:        garmin.NewClient(cfg.GarminConsumerKey, cfg.GarminConsumerSecret, logger),
		Import:         fitimporter.Import,
		Blobs:          svc.Store,
		Pub:            svc.Pub,
		ArtifactBucket: cfg.ArtifactBucket,
		Workers:        cfg.WorkerPoolSize,
		Logger:         logger,
	}
}

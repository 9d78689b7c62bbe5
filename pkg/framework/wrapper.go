package framework

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"

	"github.com/quantifiedself/ingest-server/pkg/bootstrap"
	infrasentry "github.com/quantifiedself/ingest-server/pkg/infrastructure/sentry"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

// FrameworkContext carries the dependencies the framework injects into a
// handler.
type FrameworkContext struct {
	Service     *bootstrap.Service
	Logger      *slog.Logger
	ExecutionID string
}

// HandlerFunc is the signature for a cloud function handler.
type HandlerFunc func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error)

// WrapCloudEvent wraps a handler with a per-invocation logger, an execution
// id and error reporting. Handler errors are returned to the functions
// runtime so its retry semantics stay intact.
func WrapCloudEvent(serviceName string, svc *bootstrap.Service, handler HandlerFunc) func(context.Context, event.Event) error {
	return func(ctx context.Context, e event.Event) error {
		execID := uuid.NewString()

		opts := bootstrap.GetSlogHandlerOptions(logLevelFromEnv())
		logger := slog.New(slog.NewJSONHandler(os.Stdout, opts)).
			With("service", serviceName, "execution_id", execID)
		if userID := extractUserID(e); userID != "" {
			logger = logger.With("user_id", userID)
		}

		logger.Info("Function started", "event_type", e.Type())

		fwCtx := &FrameworkContext{
			Service:     svc,
			Logger:      logger,
			ExecutionID: execID,
		}

		outputs, err := handler(ctx, e, fwCtx)
		if err != nil {
			logger.Error("Function failed", "error", err)
			infrasentry.CaptureException(err, map[string]interface{}{
				"service":      serviceName,
				"execution_id": execID,
				"event_type":   e.Type(),
			}, logger)
			return err
		}

		logger.Info("Function completed successfully", "outputs", outputs)
		return nil
	}
}

func logLevelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// extractUserID pulls a user id out of a Pub/Sub-carried payload when one is
// present, so every log line of the invocation is attributable.
func extractUserID(e event.Event) string {
	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil {
		return ""
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Message.Data, &payload); err != nil {
		return ""
	}
	if uid, ok := payload["user_id"].(string); ok {
		return uid
	}
	if uid, ok := payload["userId"].(string); ok {
		return uid
	}
	return ""
}

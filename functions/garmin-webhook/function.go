package garminwebhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	shared "github.com/quantifiedself/ingest-server/pkg"
	"github.com/quantifiedself/ingest-server/pkg/bootstrap"
	infrasentry "github.com/quantifiedself/ingest-server/pkg/infrastructure/sentry"
	"github.com/quantifiedself/ingest-server/pkg/queue"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error

	router     http.Handler
	routerOnce sync.Once
)

func init() {
	functions.HTTP("GarminWebhook", GarminWebhook)
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

// GarminWebhook is the HTTP entry point.
func GarminWebhook(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		// Still 200: Garmin deactivates endpoints that keep failing, and the
		// ping window is 30 seconds. The notification is lost, which the
		// activity backfill path can recover.
		slog.Error("Service init failed, acknowledging anyway", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	routerOnce.Do(func() {
		logger := bootstrap.NewLogger("garmin-webhook")
		store := queue.NewStore(svc.DB, logger)
		router = NewRouter(&Handler{Store: store, Logger: logger})
	})
	router.ServeHTTP(w, r)
}

// Handler answers Garmin Health API push notifications. Every route replies
// 200 once reached; failures are logged and reported, never surfaced to
// Garmin.
type Handler struct {
	Store  *queue.Store
	Logger *slog.Logger
}

// NewRouter mounts the webhook routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ping", h.Ping)
	r.Post("/activity", h.ActivityNotification)
	// Backfill requests also arrive as plain GETs.
	r.HandleFunc("/activity/manual", h.ManualEnqueue)
	return r
}

// activityNotification is the Garmin push payload. Garmin sends activityId
// as a number; json.Number keeps string payloads working too.
type activityNotification struct {
	ActivityFiles []struct {
		UserID     string      `json:"userId"`
		ActivityID json.Number `json:"activityId"`
	} `json:"activityFiles"`
}

type webhookResponse struct {
	Received int `json:"received"`
	Enqueued int `json:"enqueued"`
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ActivityNotification enqueues one queue item per notified activity file.
func (h *Handler) ActivityNotification(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var payload activityNotification
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.Logger.Warn("Unparseable webhook payload, acknowledging anyway", "error", err)
		writeAck(w, webhookResponse{})
		return
	}

	resp := webhookResponse{Received: len(payload.ActivityFiles)}
	for _, file := range payload.ActivityFiles {
		if file.UserID == "" || file.ActivityID.String() == "" {
			h.Logger.Warn("Skipping activity file with missing identifiers",
				"user_id", file.UserID, "activity_id", file.ActivityID.String())
			continue
		}

		if _, err := h.Store.Enqueue(r.Context(), shared.ServiceNameGarminHealthAPI, file.UserID, file.ActivityID.String()); err != nil {
			h.Logger.Error("Failed to enqueue activity file", "user_id", file.UserID,
				"activity_id", file.ActivityID.String(), "error", err)
			infrasentry.CaptureException(err, map[string]interface{}{
				"user_id":     file.UserID,
				"activity_id": file.ActivityID.String(),
			}, h.Logger)
			continue
		}
		resp.Enqueued++
	}

	h.Logger.Info("Webhook notification handled", "received", resp.Received, "enqueued", resp.Enqueued)
	writeAck(w, resp)
}

// ManualEnqueue re-queues a single activity by hand, for backfills and
// support work.
func (h *Handler) ManualEnqueue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID := r.FormValue("userId")
	activityID := r.FormValue("activityId")
	if userID == "" || activityID == "" {
		h.Logger.Warn("Manual enqueue missing identifiers", "user_id", userID, "activity_id", activityID)
		writeAck(w, webhookResponse{})
		return
	}

	resp := webhookResponse{Received: 1}
	if _, err := h.Store.Enqueue(r.Context(), shared.ServiceNameGarminHealthAPI, userID, activityID); err != nil {
		h.Logger.Error("Manual enqueue failed", "user_id", userID, "activity_id", activityID, "error", err)
	} else {
		resp.Enqueued = 1
	}
	writeAck(w, resp)
}

func writeAck(w http.ResponseWriter, resp webhookResponse) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

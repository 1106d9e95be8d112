package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/clientflow/internal/api/shared"
	"github.com/phrazzld/clientflow/internal/platform/logger"
)

// DefaultHeartbeat keeps idle streams alive through proxies.
const DefaultHeartbeat = 30 * time.Second

// SSE event names
const (
	eventTasks         = "tasks"
	eventNotification  = "notification"
	eventSessionClosed = "session_closed"
)

// StreamHandler serves the live view of a session as Server-Sent Events:
// a task snapshot whenever visible tasks change and every new feed entry.
type StreamHandler struct {
	heartbeat time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewStreamHandler creates a StreamHandler. A non-positive heartbeat uses
// DefaultHeartbeat.
func NewStreamHandler(heartbeat time.Duration, logger *slog.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		heartbeat: heartbeat,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "stream_handler")),
	}
}

// Stream handles GET /tasks/stream. It ends when the client disconnects or
// the session closes.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ctx := r.Context()
	sub := s.Subscribe(ctx)
	defer sub.Close()
	notes, stop := s.Watch()
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	log.Debug("stream opened")
	for {
		select {
		case tasks, ok := <-sub.C:
			if !ok {
				h.closed(ctx, w, flusher, log)
				return
			}
			if err := writeEvent(w, eventTasks, TaskListResponse{Tasks: tasks}); err != nil {
				log.Debug("stream write failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()

		case n, ok := <-notes:
			if !ok {
				h.closed(ctx, w, flusher, log)
				return
			}
			if err := writeEvent(w, eventNotification, toNotificationResponse(n, h.now())); err != nil {
				log.Debug("stream write failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()

		case <-s.Done():
			h.closed(ctx, w, flusher, log)
			return

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-ctx.Done():
			log.Debug("stream client disconnected")
			return
		}
	}
}

// closed tells a still-connected client that its session ended.
func (h *StreamHandler) closed(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, log *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	_ = writeEvent(w, eventSessionClosed, struct{}{})
	flusher.Flush()
	log.Debug("stream ended with session")
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

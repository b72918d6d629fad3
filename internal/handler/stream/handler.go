package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	consoleService "github.com/zhouzirui/advisor-console/internal/service/console"
	"github.com/zhouzirui/advisor-console/pkg/utils"
)

// DefaultHeartbeat is the keepalive interval of an idle event stream.
const DefaultHeartbeat = 15 * time.Second

// Handler streams controller events to browsers as Server-Sent Events.
type Handler struct {
	ctrl      *consoleService.Controller
	heartbeat time.Duration
}

// New creates a stream handler. A non-positive heartbeat uses DefaultHeartbeat.
func New(ctrl *consoleService.Controller, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{ctrl: ctrl, heartbeat: heartbeat}
}

// RegisterRoutes mounts GET /events on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
}

// handleEvents sends the current state first, then every change until the
// client goes away.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := h.ctrl.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	log.Printf("[stream] subscriber connected session=%s", h.ctrl.SessionID())

	if err := utils.SendSSEEvent(w, flusher, "state", h.ctrl.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[stream] subscriber disconnected session=%s", h.ctrl.SessionID())
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev.Data); err != nil {
				log.Printf("[stream] write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

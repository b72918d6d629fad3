package console

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/advisor-console/internal/render"
	consoleService "github.com/zhouzirui/advisor-console/internal/service/console"
	"github.com/zhouzirui/advisor-console/pkg/utils"
)

// Handler 通过 HTTP 暴露控制台控制器
type Handler struct {
	ctrl *consoleService.Controller
}

// New 创建控制台处理器
func New(ctrl *consoleService.Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// RegisterRoutes 注册控制台路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Post("/messages", h.handleSendMessage)
	r.Post("/call/start", h.handleStartCall)
	r.Post("/call/end", h.handleEndCall)
	r.Get("/audit", h.handleAudit)
	r.Post("/audit/toggle", h.handleToggleAudit)
	r.Post("/audit/refresh", h.handleRefreshAudit)
}

func wantsText(r *http.Request) bool {
	return r.URL.Query().Get("format") == "text"
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	snapshot := h.ctrl.Snapshot()
	if wantsText(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := render.Console(w, snapshot); err != nil {
			log.Printf("[console] render state failed: %v", err)
		}
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	h.ctrl.SendAsync(payload.Message)
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"sessionId": h.ctrl.SessionID(),
	})
}

// 通话建立会超出请求生命周期，使用后台 context。
func (h *Handler) handleStartCall(w http.ResponseWriter, _ *http.Request) {
	go h.ctrl.StartCall(context.Background())
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "starting"})
}

func (h *Handler) handleEndCall(w http.ResponseWriter, _ *http.Request) {
	go h.ctrl.EndCall(context.Background())
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "ending"})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	h.respondAudit(w, r, http.StatusOK)
}

func (h *Handler) handleToggleAudit(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ToggleAudit(r.Context())
	h.respondAudit(w, r, http.StatusOK)
}

func (h *Handler) handleRefreshAudit(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.RefreshAudit(r.Context()); err != nil {
		utils.RespondError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.respondAudit(w, r, http.StatusOK)
}

func (h *Handler) respondAudit(w http.ResponseWriter, r *http.Request, status int) {
	view := h.ctrl.AuditView()
	if wantsText(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		if err := render.Audit(w, view); err != nil {
			log.Printf("[console] render audit failed: %v", err)
		}
		return
	}
	utils.RespondJSON(w, status, view)
}

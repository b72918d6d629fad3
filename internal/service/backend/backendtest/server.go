// Package backendtest provides an in-memory advisory backend for tests.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/advisor-console/internal/model/audit"
	"github.com/zhouzirui/advisor-console/pkg/utils"
)

// Server records calls and serves canned responses.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	calls    map[string]int
	messages map[string][]string
	hold     chan struct{}
	auditKey string

	// Reply computes the chat reply; nil echoes the message.
	Reply func(sessionID, message string) string

	AuditLog      audit.Log
	LatestProfile audit.LatestProfile
	// FailAudit and FailProfile make the matching endpoint answer 500.
	FailAudit   bool
	FailProfile bool
	FailChat    bool
}

// New starts a fake backend. Close it with t.Cleanup(srv.Close).
func New() *Server {
	s := &Server{
		calls:    make(map[string]int),
		messages: make(map[string][]string),
		AuditLog: audit.Log{Model: "llama-3.1-8b-instant", Server: "test"},
		LatestProfile: audit.LatestProfile{
			Message: "No profiles calculated yet",
		},
	}

	r := chi.NewRouter()
	r.Post("/chat/{sessionID}", s.handleChat)
	r.Get("/audit", s.handleAudit)
	r.Get("/audit/latest-profile", s.handleLatestProfile)
	r.Get("/audit/profiles", s.handleProfiles)
	r.Get("/history/{sessionID}", s.handleHistory)
	r.Get("/sessions", s.handleSessions)
	r.Get("/health", s.handleHealth)
	r.Get("/logs", s.handleLogs)

	s.Server = httptest.NewServer(r)
	return s
}

// Calls returns how often the route pattern was hit.
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

// Messages returns the messages received for sessionID.
func (s *Server) Messages(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages[sessionID]...)
}

// SetFailures toggles endpoint failures while the server is running.
func (s *Server) SetFailures(auditFails, profileFails, chatFails bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailAudit = auditFails
	s.FailProfile = profileFails
	s.FailChat = chatFails
}

// RequireAuditKey makes the profiles and logs routes answer 401 unless the
// x-audit-key header matches key. Empty disables the check.
func (s *Server) RequireAuditKey(key string) {
	s.mu.Lock()
	s.auditKey = key
	s.mu.Unlock()
}

// authorized rejects the request when an audit key is required and missing.
// It must be called with s.mu held.
func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if s.auditKey == "" || r.Header.Get("x-audit-key") == s.auditKey {
		return true
	}
	utils.RespondError(w, http.StatusUnauthorized, "Invalid or missing audit key")
	return false
}

// HoldChat blocks chat requests until the returned release func is called.
func (s *Server) HoldChat() (release func()) {
	hold := make(chan struct{})
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.hold = nil
			s.mu.Unlock()
			close(hold)
		})
	}
}

// SetAuditLog replaces the served audit log.
func (s *Server) SetAuditLog(log audit.Log) {
	s.mu.Lock()
	s.AuditLog = log
	s.mu.Unlock()
}

// SetLatestProfile replaces the served latest profile.
func (s *Server) SetLatestProfile(p audit.LatestProfile) {
	s.mu.Lock()
	s.LatestProfile = p
	s.mu.Unlock()
}

func (s *Server) record(pattern string) {
	s.mu.Lock()
	s.calls[pattern]++
	s.mu.Unlock()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.record("POST /chat/{sessionID}")
	sessionID := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	fail := s.FailChat
	s.messages[sessionID] = append(s.messages[sessionID], payload.Message)
	reply := s.Reply
	s.mu.Unlock()

	if fail {
		utils.RespondError(w, http.StatusBadGateway, "llm unavailable")
		return
	}
	if payload.Message == "" {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"error": "No message provided"})
		return
	}

	text := "echo: " + payload.Message
	if reply != nil {
		text = reply(sessionID, payload.Message)
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"reply": text})
}

func (s *Server) handleAudit(w http.ResponseWriter, _ *http.Request) {
	s.record("GET /audit")

	s.mu.Lock()
	fail := s.FailAudit
	payload := s.AuditLog
	s.mu.Unlock()

	if fail {
		utils.RespondError(w, http.StatusInternalServerError, "audit unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleLatestProfile(w http.ResponseWriter, _ *http.Request) {
	s.record("GET /audit/latest-profile")

	s.mu.Lock()
	fail := s.FailProfile
	payload := s.LatestProfile
	s.mu.Unlock()

	if fail {
		utils.RespondError(w, http.StatusInternalServerError, "profile unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	s.record("GET /audit/profiles")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorized(w, r) {
		return
	}

	var calcs []audit.Entry
	for _, e := range s.AuditLog.Entries {
		if e.Type == "profile_calculation" {
			calcs = append(calcs, e)
		}
	}
	utils.RespondJSON(w, http.StatusOK, audit.ProfileCalculations{Count: len(calcs), Calculations: calcs})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.record("GET /history/{sessionID}")
	sessionID := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]map[string]string, 0, len(s.messages[sessionID]))
	for _, m := range s.messages[sessionID] {
		history = append(history, map[string]string{"source": "user", "transcript": m})
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	s.record("GET /sessions")

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": ids, "count": len(ids)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.record("GET /health")

	s.mu.Lock()
	defer s.mu.Unlock()

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"model":           s.AuditLog.Model,
		"audit_entries":   len(s.AuditLog.Entries),
		"active_sessions": len(s.messages),
	})
}

// handleLogs serves the audit entries as the persistent log, honouring ?last=N.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.record("GET /logs")

	last := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("last")); err == nil && v > 0 {
		last = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorized(w, r) {
		return
	}

	entries := s.AuditLog.Entries
	if len(entries) > last {
		entries = entries[len(entries)-last:]
	}
	raw := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		raw = append(raw, b)
	}
	utils.RespondJSON(w, http.StatusOK, audit.PersistentLog{
		TotalLines: len(s.AuditLog.Entries),
		Returned:   len(raw),
		LogFile:    "audit_log.jsonl",
		Entries:    raw,
	})
}

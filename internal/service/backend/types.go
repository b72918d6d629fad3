package backend

// Health mirrors GET /health.
type Health struct {
	Status         string            `json:"status"`
	Time           string            `json:"time"`
	Model          string            `json:"model"`
	LLMProvider    string            `json:"llm_provider"`
	AuditEntries   int               `json:"audit_entries"`
	ActiveSessions int               `json:"active_sessions"`
	Architecture   map[string]string `json:"architecture"`
}

// HistoryItem is one turn of the backend's per-session history.
type HistoryItem struct {
	Source     string `json:"source"`
	Transcript string `json:"transcript"`
}

// SessionList mirrors GET /sessions.
type SessionList struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

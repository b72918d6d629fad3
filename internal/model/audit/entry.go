package audit

import "encoding/json"

// Log mirrors GET /audit.
type Log struct {
	TotalEntries int     `json:"total_entries"`
	Model        string  `json:"model"`
	Server       string  `json:"server"`
	Entries      []Entry `json:"entries"`
}

// Entry is one backend decision record. Only the fields the console renders are
// typed; the backend owns the shape.
type Entry struct {
	ID              string `json:"id,omitempty"`
	Type            string `json:"type"`
	Timestamp       string `json:"timestamp"`
	Source          string `json:"source,omitempty"`
	Status          string `json:"status,omitempty"`
	LastUserMessage string `json:"last_user_message,omitempty"`
	Response        string `json:"response,omitempty"`
	Profile         string `json:"profile,omitempty"`
	Score           Score  `json:"score,omitempty"`
	Error           string `json:"error,omitempty"`

	// Result is set on profile_calculation entries.
	Result *ProfileResult `json:"result,omitempty"`
}

// Recent returns at most limit entries, newest first. The backend appends
// entries in chronological order.
func (l *Log) Recent(limit int) []Entry {
	if l == nil || limit <= 0 {
		return nil
	}

	n := len(l.Entries)
	if n > limit {
		n = limit
	}

	out := make([]Entry, 0, n)
	for i := len(l.Entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.Entries[i])
	}
	return out
}

// ProfileCalculations mirrors GET /audit/profiles.
type ProfileCalculations struct {
	Count        int     `json:"count"`
	Calculations []Entry `json:"calculations"`
}

// PersistentLog mirrors GET /logs, the append-only JSONL log on the backend.
type PersistentLog struct {
	TotalLines int               `json:"total_lines"`
	Returned   int               `json:"returned"`
	LogFile    string            `json:"log_file"`
	Entries    []json.RawMessage `json:"entries"`
}

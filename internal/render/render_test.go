package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/zhouzirui/advisor-console/internal/model/audit"
	"github.com/zhouzirui/advisor-console/internal/model/chat"
	voicemodel "github.com/zhouzirui/advisor-console/internal/model/voice"
	"github.com/zhouzirui/advisor-console/internal/service/console"
)

func TestConsoleRendersMessagesAndLoading(t *testing.T) {
	var buf bytes.Buffer
	err := Console(&buf, console.Snapshot{
		Status:   voicemodel.StatusConnected,
		Speaking: true,
		Loading:  true,
		Messages: []chat.Message{
			{Role: chat.RoleUser, Text: "hello"},
			{Role: chat.RoleAssistant, Text: "How old are you?"},
		},
	})
	if err != nil {
		t.Fatalf("Console err: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Status: connected | Agent speaking...",
		"You: hello\nAdvisor: How old are you?\n",
		"Advisor is thinking...",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, emptyHint) {
		t.Fatal("empty hint must not show with messages")
	}
}

func TestConsoleEmptyState(t *testing.T) {
	var buf bytes.Buffer
	if err := Console(&buf, console.Snapshot{Status: voicemodel.StatusIdle}); err != nil {
		t.Fatalf("Console err: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, emptyHint) {
		t.Fatalf("expected empty hint:\n%s", out)
	}
	if strings.Contains(out, "Agent speaking") || strings.Contains(out, thinkingLine) {
		t.Fatalf("unexpected flags in idle output:\n%s", out)
	}
}

func TestAuditRendersProfileAndLog(t *testing.T) {
	view := console.AuditView{
		Visible:      true,
		Loaded:       true,
		TotalEntries: 42,
		Model:        "llama3.1:8b",
		Server:       "on-premises",
		Entries: []audit.Entry{
			{Type: "profile_calculation", Timestamp: "2026-01-02T10:00:00", Profile: "Moderate", Score: "45/75"},
			{Type: "chat_response", Timestamp: "2026-01-02T09:59:00", LastUserMessage: "I am 35", Response: "Noted."},
		},
		Profile: &audit.ProfileResult{
			Profile: "Moderate",
			Score:   "45/75",
			Explanation: audit.Explanation{
				BlockScores: map[string]audit.Score{"risk_tolerance": "12/20", "financial_situation": "10/15"},
				RestrictionsApplied: []audit.Restriction{
					{Rule: "Short horizon cap", Reason: "Horizon under 3 years", Effect: "Capped at Conservative"},
				},
				CoherenceChecks: []audit.CoherenceCheck{{Flag: "loss_vs_risk", Detail: "High risk but low loss tolerance"}},
			},
			Allocation:          map[string]float64{"Equities": 40, "Bonds": 50, "Cash": 10},
			RecommendedProducts: []string{"Balanced fund"},
			Disclaimer:          "Not investment advice.",
			AssessedBy:          "llama3.1:8b",
		},
	}

	var buf bytes.Buffer
	if err := Audit(&buf, view); err != nil {
		t.Fatalf("Audit err: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"[Moderate]",
		"Score: 45/75",
		"  financial situation: 10/15\n  risk tolerance: 12/20\n",
		"Short horizon cap",
		"! High risk but low loss tolerance",
		"Bonds",
		"- Balanced fund",
		"Assessed by: llama3.1:8b",
		"Decision Log (42 entries)",
		"Model: llama3.1:8b | Server: on-premises",
		"Profile: Moderate (score 45/75)",
		"User: I am 35",
		"AI: Noted.",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	if strings.Index(out, "profile_calculation") > strings.Index(out, "chat_response") {
		t.Fatal("entries must render in the given order")
	}
}

func TestAuditWithoutProfile(t *testing.T) {
	var buf bytes.Buffer
	err := Audit(&buf, console.AuditView{Loaded: true, ProfileMessage: "No profiles calculated yet"})
	if err != nil {
		t.Fatalf("Audit err: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "No profiles calculated yet") || strings.Contains(out, "Latest Profile Assessment") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "Decision Log (0 entries)") {
		t.Fatalf("expected empty decision log header:\n%s", out)
	}
}

func TestBar(t *testing.T) {
	if got := bar(50); got != "["+strings.Repeat("#", 10)+strings.Repeat(".", 10)+"]" {
		t.Fatalf("unexpected bar: %s", got)
	}
	if got := bar(150); strings.Contains(got, ".") {
		t.Fatalf("expected a full bar, got %s", got)
	}
	if got := bar(-5); strings.Contains(got, "#") {
		t.Fatalf("expected an empty bar, got %s", got)
	}
}

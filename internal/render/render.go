// Package render draws the console and the audit panel as plain text.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/zhouzirui/advisor-console/internal/model/audit"
	voicemodel "github.com/zhouzirui/advisor-console/internal/model/voice"
	"github.com/zhouzirui/advisor-console/internal/service/console"
)

const (
	emptyHint    = "Start a voice call or type below to begin the investment suitability assessment."
	thinkingLine = "Advisor is thinking..."
)

// printer keeps the first write error so callers can chain lines.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) linef(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

// Status renders the call status line.
func Status(status voicemodel.Status, speaking bool) string {
	line := "Status: " + string(status)
	if speaking {
		line += " | Agent speaking..."
	}
	return line
}

// Console writes the header, the message log and the loading line.
func Console(w io.Writer, s console.Snapshot) error {
	p := &printer{w: w}

	p.linef("Explainable AI Financial Advisor")
	p.linef("MiFID II Investment Suitability Assessment")
	p.linef("%s", Status(s.Status, s.Speaking))
	p.linef("")

	if len(s.Messages) == 0 && !s.Loading {
		p.linef("%s", emptyHint)
	}
	for _, m := range s.Messages {
		p.linef("%s: %s", m.Label(), m.Text)
	}
	if s.Loading {
		p.linef("%s", thinkingLine)
	}
	return p.err
}

// Audit writes the profile panel, when a profile exists, followed by the
// decision log.
func Audit(w io.Writer, v console.AuditView) error {
	p := &printer{w: w}

	if v.Profile != nil {
		writeProfile(p, v.Profile)
	} else if v.ProfileMessage != "" {
		p.linef("%s", v.ProfileMessage)
		p.linef("")
	}

	if !v.Loaded {
		p.linef("Audit trail not loaded.")
		return p.err
	}

	p.linef("Decision Log (%d entries)", v.TotalEntries)
	p.linef("Model: %s | Server: %s", v.Model, v.Server)
	for _, e := range v.Entries {
		p.linef("")
		writeEntry(p, e)
	}
	return p.err
}

func writeProfile(p *printer, r *audit.ProfileResult) {
	p.linef("Latest Profile Assessment")
	p.linef("[%s]", r.Profile)
	p.linef("Score: %s", r.Score)

	if len(r.Explanation.BlockScores) > 0 {
		p.linef("")
		p.linef("Block Scores")
		for _, key := range sortedKeys(r.Explanation.BlockScores) {
			p.linef("  %s: %s", strings.ReplaceAll(key, "_", " "), r.Explanation.BlockScores[key])
		}
	}

	if len(r.Explanation.RestrictionsApplied) > 0 {
		p.linef("")
		p.linef("Restrictions Applied")
		for _, rs := range r.Explanation.RestrictionsApplied {
			p.linef("  %s", rs.Rule)
			p.linef("    %s", rs.Reason)
			p.linef("    %s", rs.Effect)
		}
	}

	if len(r.Explanation.CoherenceChecks) > 0 {
		p.linef("")
		p.linef("Coherence Warnings")
		for _, c := range r.Explanation.CoherenceChecks {
			p.linef("  ! %s", c.Detail)
		}
	}

	if len(r.Allocation) > 0 {
		p.linef("")
		p.linef("Recommended Allocation")
		for _, asset := range sortedKeys(r.Allocation) {
			pct := r.Allocation[asset]
			p.linef("  %-24s %s %g%%", asset, bar(pct), pct)
		}
	}

	if len(r.RecommendedProducts) > 0 {
		p.linef("")
		p.linef("Suitable Products")
		for _, prod := range r.RecommendedProducts {
			p.linef("  - %s", prod)
		}
	}

	if r.Disclaimer != "" {
		p.linef("")
		p.linef("%s", r.Disclaimer)
	}
	p.linef("Assessed by: %s", r.AssessedBy)
	p.linef("")
}

func writeEntry(p *printer, e audit.Entry) {
	p.linef("%s  %s", e.Type, e.Timestamp)
	if e.LastUserMessage != "" {
		p.linef("  User: %s", e.LastUserMessage)
	}
	if e.Response != "" {
		p.linef("  AI: %s", e.Response)
	}
	if e.Profile != "" {
		p.linef("  Profile: %s (score %s)", e.Profile, e.Score)
	}
}

// bar draws pct on a 20 cell scale.
func bar(pct float64) string {
	cells := int(pct/5 + 0.5)
	cells = max(0, min(cells, 20))
	return "[" + strings.Repeat("#", cells) + strings.Repeat(".", 20-cells) + "]"
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

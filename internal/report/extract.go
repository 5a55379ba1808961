package report

import (
	"strings"

	"basegraph.app/scribe/internal/brain"
)

const reportMarker = "executive summary"

// FinalReport picks the message that carries the finished report. When the
// editor approved, it is the latest writer or editor message containing an
// executive summary; otherwise the latest such message from any participant.
// The opening user prompt never qualifies. found is false when no message
// qualifies.
func FinalReport(history []brain.Message, roles brain.Roles) (text string, found bool) {
	approved := false
	for _, m := range history {
		if m.Speaker == roles.Editor && brain.HasApprovalPhrase(m.Text) {
			approved = true
			break
		}
	}

	participants := make(map[brain.ParticipantName]bool, 3)
	for _, name := range roles.All() {
		participants[name] = true
	}

	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if !participants[m.Speaker] {
			continue
		}
		if approved && m.Speaker != roles.Writer && m.Speaker != roles.Editor {
			continue
		}
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		if strings.Contains(strings.ToLower(m.Text), reportMarker) {
			return m.Text, true
		}
	}
	return "", false
}

package brain

import "maps"

// Governor tracks how often and how consecutively each participant has been
// selected, plus the log of phase transitions.
type Governor struct {
	counts      map[ParticipantName]int
	consecutive int
	last        ParticipantName
	transitions []PhaseTransition
}

func NewGovernor() *Governor {
	return &Governor{counts: make(map[ParticipantName]int)}
}

// RecordTurn registers a selection. A new speaker resets the streak to 1.
func (g *Governor) RecordTurn(selected ParticipantName) {
	if selected == g.last {
		g.consecutive++
	} else {
		g.consecutive = 1
		g.last = selected
	}
	g.counts[selected]++
}

func (g *Governor) ConsecutiveTurns() int {
	return g.consecutive
}

func (g *Governor) LastSpeaker() ParticipantName {
	return g.last
}

// MessageCount returns how many times p has been selected.
func (g *Governor) MessageCount(p ParticipantName) int {
	return g.counts[p]
}

func (g *Governor) MessageCounts() map[ParticipantName]int {
	return maps.Clone(g.counts)
}

func (g *Governor) RecordTransition(t PhaseTransition) {
	g.transitions = append(g.transitions, t)
}

func (g *Governor) Transitions() []PhaseTransition {
	out := make([]PhaseTransition, len(g.transitions))
	copy(out, g.transitions)
	return out
}

// CountMessagesInPhase counts p's messages since the latest transition into
// phase. Without such a transition the whole history is counted.
func (g *Governor) CountMessagesInPhase(p ParticipantName, history []Message, phase Phase) int {
	start := 0
	for i := len(g.transitions) - 1; i >= 0; i-- {
		if g.transitions[i].To == phase {
			start = g.transitions[i].At
			break
		}
	}
	if start > len(history) {
		return 0
	}

	n := 0
	for _, m := range history[start:] {
		if m.Speaker == p {
			n++
		}
	}
	return n
}

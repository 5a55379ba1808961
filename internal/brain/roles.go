package brain

import (
	"errors"
	"fmt"
)

// ParticipantName identifies a participant by its configured display name.
type ParticipantName string

// UserSpeaker is the speaker recorded for the opening prompt.
const UserSpeaker ParticipantName = "user"

// Roles maps the three scheduled roles to participant names. Dispatch is by
// exact name match.
type Roles struct {
	Researcher ParticipantName
	Writer     ParticipantName
	Editor     ParticipantName
}

func (r Roles) Validate() error {
	names := []ParticipantName{r.Researcher, r.Writer, r.Editor}
	seen := make(map[ParticipantName]bool, len(names))
	for _, n := range names {
		if n == "" {
			return errors.New("researcher, writer and editor names are required")
		}
		if n == UserSpeaker {
			return fmt.Errorf("participant name %q is reserved", n)
		}
		if seen[n] {
			return fmt.Errorf("participant name %q is assigned to more than one role", n)
		}
		seen[n] = true
	}
	return nil
}

// All returns the scheduled participants in role order.
func (r Roles) All() []ParticipantName {
	return []ParticipantName{r.Researcher, r.Writer, r.Editor}
}

// Policy holds the turn budgets that bound the conversation.
type Policy struct {
	MaxConsecutiveTurns int // per-speaker streak before a phase is forced forward
	ReviewTurnCap       int // editor streak allowed in Review before deciding
	MaxIterations       int // appended messages before the gate stops unconditionally
	ResearchLoopbackCap int // researcher messages after which Revision no longer loops back
}

func DefaultPolicy() Policy {
	return Policy{
		MaxConsecutiveTurns: 5,
		ReviewTurnCap:       2,
		MaxIterations:       20,
		ResearchLoopbackCap: 5,
	}
}

// withDefaults fills zero knobs from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxConsecutiveTurns <= 0 {
		p.MaxConsecutiveTurns = d.MaxConsecutiveTurns
	}
	if p.ReviewTurnCap <= 0 {
		p.ReviewTurnCap = d.ReviewTurnCap
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.ResearchLoopbackCap <= 0 {
		p.ResearchLoopbackCap = d.ResearchLoopbackCap
	}
	return p
}

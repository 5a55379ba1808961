package brain

import (
	"context"
	"log/slog"
)

// StateMachine decides who speaks next and advances the phase. One instance
// serves exactly one conversation.
type StateMachine struct {
	roles      Roles
	policy     Policy
	classifier Classifier
	governor   *Governor

	phase             Phase
	researchComplete  bool
	draftComplete     bool
	revisionRequested bool
}

func NewStateMachine(roles Roles, policy Policy, classifier Classifier) (*StateMachine, error) {
	if err := roles.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	return &StateMachine{
		roles:      roles,
		policy:     policy.withDefaults(),
		classifier: classifier,
		governor:   NewGovernor(),
		phase:      PhaseResearch,
	}, nil
}

// SelectNext updates the state from the latest message and returns the next
// speaker. history must not be modified by the caller during the call.
func (sm *StateMachine) SelectNext(ctx context.Context, history []Message) (ParticipantName, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	approvedLatest := sm.observe(history)
	from := sm.phase
	selected := sm.dispatch(history, approvedLatest)

	if sm.phase != from {
		sm.governor.RecordTransition(PhaseTransition{From: from, To: sm.phase, At: len(history)})
		slog.DebugContext(ctx, "phase advanced",
			"from", from,
			"to", sm.phase,
			"at", len(history))
	}
	sm.governor.RecordTurn(selected)

	return selected, nil
}

// observe folds the latest message's signals into the flags. It reports
// whether the latest message is an editor approval.
func (sm *StateMachine) observe(history []Message) bool {
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	sig := sm.classifier.Classify(ClassifyInput{
		Text:               last.Text,
		ResearcherMessages: sm.governor.MessageCount(sm.roles.Researcher),
	})

	switch last.Speaker {
	case sm.roles.Researcher:
		if sig.ResearchComplete {
			sm.researchComplete = true
		}
	case sm.roles.Writer:
		if sig.DraftComplete {
			sm.draftComplete = true
			sm.revisionRequested = false
		}
	case sm.roles.Editor:
		// Approval wins over revision wording in the same message.
		if sig.ApprovalPhrase {
			sm.revisionRequested = false
			sm.draftComplete = true
			return true
		}
		if sig.RevisionRequested {
			sm.revisionRequested = true
			sm.draftComplete = false
		}
	}
	return false
}

func (sm *StateMachine) dispatch(history []Message, approvedLatest bool) ParticipantName {
	consecutive := sm.governor.ConsecutiveTurns()
	maxTurns := sm.policy.MaxConsecutiveTurns

	switch sm.phase {
	case PhaseResearch:
		if !sm.researchComplete && consecutive < maxTurns {
			return sm.roles.Researcher
		}
		sm.phase = PhaseDrafting
		return sm.roles.Writer

	case PhaseDrafting:
		if sm.researchComplete && !sm.draftComplete && consecutive < maxTurns {
			return sm.roles.Writer
		}
		sm.phase = PhaseReview
		return sm.roles.Editor

	case PhaseReview:
		if sm.draftComplete && consecutive < sm.policy.ReviewTurnCap {
			return sm.roles.Editor
		}
		if sm.revisionRequested {
			sm.phase = PhaseRevision
			return sm.roles.Writer
		}
		sm.phase = PhaseFinalReview
		return sm.roles.Editor

	case PhaseRevision:
		if !sm.draftComplete && sm.revisionRequested && consecutive < maxTurns {
			return sm.roles.Writer
		}
		if !sm.draftComplete &&
			sm.governor.MessageCount(sm.roles.Researcher) < sm.policy.ResearchLoopbackCap &&
			sm.classifier.NeedsMoreResearch(textsOf(lastN(history, 3))) {
			return sm.roles.Researcher
		}
		sm.phase = PhaseFinalReview
		return sm.roles.Editor

	default: // PhaseFinalReview
		if approvedLatest {
			return sm.roles.Editor
		}
		if sm.revisionRequested {
			if sm.governor.CountMessagesInPhase(sm.roles.Writer, history, PhaseFinalReview) >= maxTurns {
				sm.revisionRequested = false
				return sm.roles.Editor
			}
			return sm.roles.Writer
		}
		// The editor closes out whether or not its own streak is exhausted.
		return sm.roles.Editor
	}
}

func (sm *StateMachine) Phase() Phase {
	return sm.phase
}

func (sm *StateMachine) Transitions() []PhaseTransition {
	return sm.governor.Transitions()
}

func (sm *StateMachine) State() ConversationState {
	return ConversationState{
		Phase:             sm.phase,
		ConsecutiveTurns:  sm.governor.ConsecutiveTurns(),
		LastSpeaker:       sm.governor.LastSpeaker(),
		ResearchComplete:  sm.researchComplete,
		DraftComplete:     sm.draftComplete,
		RevisionRequested: sm.revisionRequested,
		MessageCounts:     sm.governor.MessageCounts(),
	}
}

package brain

// Message is one appended turn. Messages are never mutated after append.
type Message struct {
	Speaker  ParticipantName
	Text     string
	Sequence int
	// Handle identifies the invocation that produced the message, for
	// collecting the citations it gathered. Empty when not applicable.
	Handle string
}

// Phase is the coarse collaboration stage.
type Phase string

const (
	PhaseResearch    Phase = "research"
	PhaseDrafting    Phase = "drafting"
	PhaseReview      Phase = "review"
	PhaseRevision    Phase = "revision"
	PhaseFinalReview Phase = "final_review"
)

func (p Phase) String() string {
	return string(p)
}

// PhaseTransition records a phase change made while selecting a speaker.
// At is the history length at selection time, so the first message spoken in
// the new phase has Sequence == At.
type PhaseTransition struct {
	From Phase
	To   Phase
	At   int
}

// ConversationState is a snapshot of the scheduler's mutable state.
type ConversationState struct {
	Phase             Phase
	ConsecutiveTurns  int
	LastSpeaker       ParticipantName
	ResearchComplete  bool
	DraftComplete     bool
	RevisionRequested bool
	MessageCounts     map[ParticipantName]int
}

func textsOf(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func lastN(msgs []Message, n int) []Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

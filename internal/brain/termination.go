package brain

// StopReason says why a conversation ended.
type StopReason string

const (
	StopReasonNone          StopReason = ""
	StopReasonApproved      StopReason = "approved"
	StopReasonMaxIterations StopReason = "max_iterations"
)

type Decision struct {
	Stop   bool
	Reason StopReason
}

// TerminationGate decides after every appended message whether to stop.
// Only the authorized participant can end the conversation by approval; the
// iteration cap ends it regardless.
type TerminationGate struct {
	authorized    ParticipantName
	maxIterations int
	iterations    int
}

func NewTerminationGate(authorized ParticipantName, maxIterations int) *TerminationGate {
	if maxIterations <= 0 {
		maxIterations = DefaultPolicy().MaxIterations
	}
	return &TerminationGate{authorized: authorized, maxIterations: maxIterations}
}

// Evaluate must be called exactly once per appended message.
func (g *TerminationGate) Evaluate(history []Message) Decision {
	g.iterations++
	if g.iterations >= g.maxIterations {
		return Decision{Stop: true, Reason: StopReasonMaxIterations}
	}
	if len(history) == 0 {
		return Decision{}
	}

	last := history[len(history)-1]
	if last.Speaker != g.authorized {
		return Decision{}
	}
	if DetectApproval(last.Text) {
		return Decision{Stop: true, Reason: StopReasonApproved}
	}
	return Decision{}
}

func (g *TerminationGate) Iterations() int {
	return g.iterations
}

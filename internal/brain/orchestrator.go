package brain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/scribe/common/logger"
)

// Reply is a participant's answer to one invocation.
type Reply struct {
	Text string
	// Handle identifies the invocation for post-hoc citation collection.
	Handle string
}

// Participant produces a reply from the conversation so far. The history
// slice is a copy and may be retained.
type Participant interface {
	Invoke(ctx context.Context, history []Message) (Reply, error)
}

type ParticipantFunc func(ctx context.Context, history []Message) (Reply, error)

func (f ParticipantFunc) Invoke(ctx context.Context, history []Message) (Reply, error) {
	return f(ctx, history)
}

// MessageEvent is delivered to observers after each append.
type MessageEvent struct {
	RunID   string
	Message Message
	Phase   Phase
}

// Observer is notified of every appended message. Observer errors are logged
// and never stop the conversation.
type Observer interface {
	OnMessage(ctx context.Context, ev MessageEvent) error
}

type ObserverFunc func(ctx context.Context, ev MessageEvent) error

func (f ObserverFunc) OnMessage(ctx context.Context, ev MessageEvent) error {
	return f(ctx, ev)
}

type OrchestratorConfig struct {
	Roles      Roles
	Policy     Policy
	Classifier Classifier // defaults to KeywordClassifier
}

// Result is the outcome of one conversation run.
type Result struct {
	RunID       string
	History     []Message
	Phase       Phase
	StopReason  StopReason
	Transitions []PhaseTransition
	Duration    time.Duration
}

// Orchestrator drives select, invoke, append and gate until the gate stops
// the conversation. It is safe to call Run concurrently; each run gets its
// own state machine and gate.
type Orchestrator struct {
	cfg          OrchestratorConfig
	participants map[ParticipantName]Participant
	observers    []Observer
}

func NewOrchestrator(cfg OrchestratorConfig, participants map[ParticipantName]Participant, observers ...Observer) (*Orchestrator, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	if err := cfg.Roles.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roles: %w", err)
	}
	for _, name := range cfg.Roles.All() {
		if participants[name] == nil {
			return nil, &SelectionError{Participant: name}
		}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = KeywordClassifier{}
	}
	cfg.Policy = cfg.Policy.withDefaults()

	return &Orchestrator{
		cfg:          cfg,
		participants: participants,
		observers:    observers,
	}, nil
}

// Run seeds the history with prompt and drives the conversation to a stop.
// Extra observers apply to this run only. On error the partial result is
// returned alongside it.
func (o *Orchestrator) Run(ctx context.Context, runID string, prompt string, observers ...Observer) (*Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &runID,
		Component: "scribe.brain.orchestrator",
	})
	sc := logger.StartSpan(ctx, "brain.conversation")
	defer sc.End()
	ctx = sc.Context()
	sc.Span().SetAttributes(attribute.String("run_id", runID))

	sm, err := NewStateMachine(o.cfg.Roles, o.cfg.Policy, o.cfg.Classifier)
	if err != nil {
		return nil, err
	}
	gate := NewTerminationGate(o.cfg.Roles.Editor, o.cfg.Policy.MaxIterations)
	observers = append(slices.Clone(o.observers), observers...)

	start := time.Now()
	history := []Message{{Speaker: UserSpeaker, Text: prompt, Sequence: 0}}
	result := &Result{RunID: runID}
	finish := func(reason StopReason) *Result {
		result.History = slices.Clone(history)
		result.Phase = sm.Phase()
		result.StopReason = reason
		result.Transitions = sm.Transitions()
		result.Duration = time.Since(start)
		return result
	}

	slog.InfoContext(ctx, "conversation started",
		"max_iterations", o.cfg.Policy.MaxIterations,
		"max_consecutive_turns", o.cfg.Policy.MaxConsecutiveTurns)

	for turn := 0; ; turn++ {
		if err := ctx.Err(); err != nil {
			sc.RecordError(err)
			return finish(StopReasonNone), fmt.Errorf("conversation interrupted: %w", err)
		}

		msg, err := o.takeTurn(ctx, sm, history, turn)
		if err != nil {
			sc.RecordError(err)
			return finish(StopReasonNone), err
		}
		history = append(history, msg)

		phase := sm.Phase()
		ev := MessageEvent{RunID: runID, Message: msg, Phase: phase}
		for _, obs := range observers {
			if err := obs.OnMessage(ctx, ev); err != nil {
				slog.WarnContext(ctx, "message observer failed",
					"error", err,
					"sequence", msg.Sequence)
			}
		}

		decision := gate.Evaluate(slices.Clone(history))
		if decision.Stop {
			slog.InfoContext(ctx, "conversation finished",
				"stop_reason", decision.Reason,
				"phase", phase,
				"messages", len(history),
				"duration_ms", time.Since(start).Milliseconds())
			return finish(decision.Reason), nil
		}
	}
}

func (o *Orchestrator) takeTurn(ctx context.Context, sm *StateMachine, history []Message, turn int) (Message, error) {
	selected, err := sm.SelectNext(ctx, slices.Clone(history))
	if err != nil {
		return Message{}, fmt.Errorf("selecting next speaker: %w", err)
	}

	phase := string(sm.Phase())
	speaker := string(selected)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Phase:       &phase,
		Participant: &speaker,
		Turn:        &turn,
	})

	p, ok := o.participants[selected]
	if !ok || p == nil {
		slog.ErrorContext(ctx, "selected participant not configured")
		return Message{}, &SelectionError{Participant: selected}
	}

	sc := logger.StartSpan(ctx, "brain.turn")
	defer sc.End()
	ctx = sc.Context()
	sc.Span().SetAttributes(
		attribute.String("participant", speaker),
		attribute.String("phase", phase),
		attribute.Int("turn", turn),
	)

	start := time.Now()
	reply, err := p.Invoke(ctx, slices.Clone(history))
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "participant invocation failed", "error", err)
		return Message{}, &InvocationError{Participant: selected, Turn: turn, Err: err}
	}

	slog.InfoContext(ctx, "participant replied",
		"chars", len(reply.Text),
		"duration_ms", time.Since(start).Milliseconds(),
		"preview", logger.Truncate(reply.Text, 120))

	return Message{
		Speaker:  selected,
		Text:     reply.Text,
		Sequence: len(history),
		Handle:   reply.Handle,
	}, nil
}

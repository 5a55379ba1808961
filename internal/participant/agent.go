// Package participant implements the LLM-backed conversation members and the
// post-run cleaner.
package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/scribe/common/id"
	"basegraph.app/scribe/common/llm"
	"basegraph.app/scribe/common/logger"
	"basegraph.app/scribe/internal/brain"
)

const (
	defaultTimeout       = 3 * time.Minute
	defaultMaxToolRounds = 4
	defaultRetryBackoff  = time.Second
	maxAttempts          = 3
)

// Tool is something an agent can call during its turn.
type Tool interface {
	Definition() llm.Tool
	Execute(ctx context.Context, handle, arguments string) (string, error)
}

// forgetter is implemented by tools that keep state per invocation handle.
type forgetter interface {
	Forget(handle string)
}

type AgentConfig struct {
	Name         brain.ParticipantName
	Instructions string
	Client       llm.AgentClient
	Tools        []Tool
	MaxTokens    int
	Temperature  *float64
	// Timeout bounds each model call attempt.
	Timeout       time.Duration
	MaxToolRounds int
	RetryBackoff  time.Duration
}

// Agent is a participant backed by a chat model. It sees the whole
// conversation on every turn and may call its tools a bounded number of
// rounds before it has to answer.
type Agent struct {
	name          brain.ParticipantName
	instructions  string
	client        llm.AgentClient
	tools         map[string]Tool
	definitions   []llm.Tool
	maxTokens     int
	temperature   *float64
	timeout       time.Duration
	maxToolRounds int
	retryBackoff  time.Duration
}

func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Name == "" {
		return nil, errors.New("agent name is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("agent %s: llm client is required", cfg.Name)
	}

	a := &Agent{
		name:          cfg.Name,
		instructions:  cfg.Instructions,
		client:        cfg.Client,
		tools:         make(map[string]Tool, len(cfg.Tools)),
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		timeout:       cfg.Timeout,
		maxToolRounds: cfg.MaxToolRounds,
		retryBackoff:  cfg.RetryBackoff,
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if a.maxToolRounds <= 0 {
		a.maxToolRounds = defaultMaxToolRounds
	}
	if a.retryBackoff <= 0 {
		a.retryBackoff = defaultRetryBackoff
	}
	for _, t := range cfg.Tools {
		def := t.Definition()
		a.tools[def.Name] = t
		a.definitions = append(a.definitions, def)
	}
	return a, nil
}

func (a *Agent) Name() brain.ParticipantName {
	return a.name
}

// Invoke answers the conversation so far. The returned handle identifies
// this invocation for citation collection.
func (a *Agent) Invoke(ctx context.Context, history []brain.Message) (brain.Reply, error) {
	handle := id.NewHandle()
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "scribe.participant"})
	sc := logger.StartSpan(ctx, "participant.invoke")
	defer sc.End()
	ctx = sc.Context()
	sc.Span().SetAttributes(
		attribute.String("participant", string(a.name)),
		attribute.String("model", a.client.Model()),
		attribute.String("handle", handle),
	)

	messages := a.buildMessages(history)
	start := time.Now()
	toolCalls := 0

	for round := 0; ; round++ {
		var tools []llm.Tool
		if round < a.maxToolRounds {
			tools = a.definitions
		} else if len(a.definitions) > 0 {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: synthesisNudge})
		}

		resp, err := a.chat(ctx, llm.AgentRequest{
			Messages:    messages,
			Tools:       tools,
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
		})
		if err != nil {
			sc.RecordError(err)
			a.release(handle)
			return brain.Reply{}, fmt.Errorf("%s round %d: %w", a.name, round, err)
		}

		if len(resp.ToolCalls) == 0 || tools == nil {
			if strings.TrimSpace(resp.Content) == "" {
				slog.WarnContext(ctx, "participant returned empty reply",
					"finish_reason", resp.FinishReason)
			}
			slog.DebugContext(ctx, "participant invocation completed",
				"rounds", round+1,
				"tool_calls", toolCalls,
				"duration_ms", time.Since(start).Milliseconds())
			return brain.Reply{Text: resp.Content, Handle: handle}, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			toolCalls++
			out, err := a.runTool(ctx, handle, tc)
			if err != nil {
				sc.RecordError(err)
				a.release(handle)
				return brain.Reply{}, err
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    out,
				ToolCallID: tc.ID,
			})
		}
	}
}

// release drops tool state for a handle whose reply will never be delivered.
func (a *Agent) release(handle string) {
	for _, t := range a.tools {
		if f, ok := t.(forgetter); ok {
			f.Forget(handle)
		}
	}
}

// runTool executes one call. Tool failures go back to the model as text;
// only cancellation aborts the turn.
func (a *Agent) runTool(ctx context.Context, handle string, tc llm.ToolCall) (string, error) {
	tool, ok := a.tools[tc.Name]
	if !ok {
		slog.WarnContext(ctx, "model called unknown tool", "tool", tc.Name)
		return fmt.Sprintf("Error: unknown tool %q", tc.Name), nil
	}

	out, err := tool.Execute(ctx, handle, tc.Arguments)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s tool %s: %w", a.name, tc.Name, ctxErr)
		}
		slog.WarnContext(ctx, "tool execution failed", "tool", tc.Name, "error", err)
		return fmt.Sprintf("Error: %s failed: %v", tc.Name, err), nil
	}
	return out, nil
}

// chat calls the model with a per-call timeout, retrying transient failures
// with exponential backoff.
func (a *Agent) chat(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var resp *llm.AgentResponse
		resp, err = a.chatOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !llm.IsRetryable(ctx, err) || attempt == maxAttempts-1 {
			break
		}

		wait := a.retryBackoff << attempt
		slog.WarnContext(ctx, "participant chat retry",
			"attempt", attempt+1,
			"backoff_ms", wait.Milliseconds(),
			"error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

func (a *Agent) chatOnce(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.client.ChatWithTools(ctx, req)
}

// buildMessages maps the transcript onto chat roles from this agent's point
// of view: its own turns are assistant messages, everyone else speaks as a
// named user.
func (a *Agent) buildMessages(history []brain.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	if a.instructions != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.instructions})
	}

	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		switch m.Speaker {
		case a.name:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: m.Text})
		case brain.UserSpeaker:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: m.Text})
		default:
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Name:    llm.SanitizeName(string(m.Speaker)),
				Content: m.Text,
			})
		}
	}

	if len(messages) == 0 || messages[len(messages)-1].Role != llm.RoleUser {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: continueNudge})
	}
	return messages
}

package participant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/scribe/common/llm"
	"basegraph.app/scribe/common/logger"
)

const defaultCleanerName = "FinalReportCleaner"

// Cleaner tidies the final report after the conversation ends. It never
// fails the run: on any error the input comes back unchanged.
type Cleaner struct {
	agent *Agent
}

func NewCleaner(name string, client llm.AgentClient, maxTokens int, timeout time.Duration) (*Cleaner, error) {
	if name == "" {
		name = defaultCleanerName
	}
	agent, err := NewAgent(AgentConfig{
		Name:         brainName(name),
		Instructions: cleanerInstructions,
		Client:       client,
		MaxTokens:    maxTokens,
		Temperature:  llm.Temp(0),
		Timeout:      timeout,
	})
	if err != nil {
		return nil, err
	}
	return &Cleaner{agent: agent}, nil
}

func (c *Cleaner) Clean(ctx context.Context, report string) string {
	if strings.TrimSpace(report) == "" {
		return report
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "scribe.participant.cleaner"})

	resp, err := c.agent.chat(ctx, llm.AgentRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: c.agent.instructions},
			{Role: llm.RoleUser, Content: fmt.Sprintf(cleanerPrompt, report)},
		},
		MaxTokens:   c.agent.maxTokens,
		Temperature: c.agent.temperature,
	})
	if err != nil {
		slog.WarnContext(ctx, "report cleaning failed, using original content", "error", err)
		return report
	}
	if strings.TrimSpace(resp.Content) == "" {
		slog.WarnContext(ctx, "report cleaner returned nothing, using original content")
		return report
	}
	return resp.Content
}

package participant_test

import (
	"context"
	"sync"

	"basegraph.app/scribe/common/llm"
)

type mockAgentClient struct {
	mu       sync.Mutex
	requests []llm.AgentRequest
	chatFn   func(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error)
}

func (m *mockAgentClient) ChatWithTools(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.chatFn != nil {
		return m.chatFn(ctx, req)
	}
	return &llm.AgentResponse{Content: "ok", FinishReason: "stop"}, nil
}

func (m *mockAgentClient) Model() string { return "mock-model" }

func (m *mockAgentClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockAgentClient) request(i int) llm.AgentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

// scripted returns the responses in order, repeating the last one.
func scripted(responses ...*llm.AgentResponse) func(context.Context, llm.AgentRequest) (*llm.AgentResponse, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		r := responses[i]
		if i < len(responses)-1 {
			i++
		}
		return r, nil
	}
}

type mockTool struct {
	name      string
	mu        sync.Mutex
	handles   []string
	args      []string
	forgotten []string
	execFn    func(ctx context.Context, handle, arguments string) (string, error)
}

func (t *mockTool) Forget(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forgotten = append(t.forgotten, handle)
}

func (t *mockTool) Definition() llm.Tool {
	return llm.Tool{Name: t.name, Description: "test tool", Parameters: map[string]any{"type": "object"}}
}

func (t *mockTool) Execute(ctx context.Context, handle, arguments string) (string, error) {
	t.mu.Lock()
	t.handles = append(t.handles, handle)
	t.args = append(t.args, arguments)
	t.mu.Unlock()
	if t.execFn != nil {
		return t.execFn(ctx, handle, arguments)
	}
	return "results for " + arguments, nil
}

package service_test

import (
	"context"
	"errors"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/scribe/common/id"
	"basegraph.app/scribe/common/llm"
	"basegraph.app/scribe/core/config"
	"basegraph.app/scribe/internal/brain"
	"basegraph.app/scribe/internal/retriever"
	"basegraph.app/scribe/internal/service"
)

// roleClient answers as whichever role its model name says it plays. The
// researcher searches once before reporting.
type roleClient struct {
	model string
}

func (c *roleClient) ChatWithTools(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	switch c.model {
	case "research":
		if last.Role == llm.RoleTool {
			return &llm.AgentResponse{Content: "Revenue was $65.6B. RESEARCH COMPLETE"}, nil
		}
		if len(req.Tools) > 0 {
			return &llm.AgentResponse{ToolCalls: []llm.ToolCall{{
				ID:        "call-1",
				Name:      retriever.SearchToolName,
				Arguments: `{"queries":["Microsoft quarterly revenue"]}`,
			}}}, nil
		}
		return &llm.AgentResponse{Content: "RESEARCH COMPLETE"}, nil
	case "write":
		return &llm.AgentResponse{Content: draft}, nil
	case "edit":
		return &llm.AgentResponse{Content: "REPORT APPROVED"}, nil
	}
	return nil, errors.New("unknown model " + c.model)
}

func (c *roleClient) Model() string { return c.model }

type stubSearcher struct {
	queries []string
}

func (s *stubSearcher) Search(ctx context.Context, query string, limit int) ([]retriever.Result, error) {
	s.queries = append(s.queries, query)
	return []retriever.Result{{
		Title:   "Microsoft earnings release",
		URL:     "https://example.com/msft-earnings",
		Snippet: "Revenue was $65.6 billion.",
	}}, nil
}

var _ = Describe("NewReportServiceFromConfig", func() {
	var cfg config.Config

	BeforeEach(func() {
		Expect(id.Init(1)).To(Succeed())
		llmCfg := func(model string) config.LLMConfig {
			return config.LLMConfig{Provider: "openai", APIKey: "test", Model: model}
		}
		cfg = config.Config{
			Chat: config.ChatConfig{
				ResearcherName:      string(researcher),
				WriterName:          string(writer),
				EditorName:          string(editor),
				MaxConsecutiveTurns: 5,
				MaxIterations:       20,
				ReviewTurnCap:       2,
			},
			ResearchLLM: llmCfg("research"),
			WriterLLM:   llmCfg("write"),
			EditorLLM:   llmCfg("edit"),
			Report: config.ReportConfig{
				OutputDir:         GinkgoT().TempDir(),
				QueryLinkTemplate: "https://search.example.com/?q=%s",
			},
		}
	})

	newClient := func(c config.LLMConfig) (llm.AgentClient, error) {
		return &roleClient{model: c.Model}, nil
	}

	It("wires search citations through to the written report", func() {
		searcher := &stubSearcher{}
		svc, err := service.NewReportServiceFromConfig(cfg, service.Backends{
			NewClient: newClient,
			Searcher:  searcher,
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		result, err := svc.Generate(context.Background(), "Microsoft")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Conversation.StopReason).To(Equal(brain.StopReasonApproved))
		Expect(searcher.queries).To(Equal([]string{"Microsoft quarterly revenue"}))

		data, err := os.ReadFile(result.Files.MarkdownPath)
		Expect(err).NotTo(HaveOccurred())
		content := string(data)
		Expect(content).To(ContainSubstring("- [Microsoft earnings release](https://example.com/msft-earnings)"))
		Expect(content).To(ContainSubstring("(https://search.example.com/?q=Microsoft%20quarterly%20revenue)"))
		Expect(strings.Count(content, "## References")).To(Equal(1))
	})

	It("runs without a searcher", func() {
		svc, err := service.NewReportServiceFromConfig(cfg, service.Backends{NewClient: newClient}, nil)
		Expect(err).NotTo(HaveOccurred())

		result, err := svc.Generate(context.Background(), "Microsoft")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Found).To(BeTrue())
		Expect(result.References.Empty()).To(BeTrue())
	})

	It("rejects duplicate role names", func() {
		cfg.Chat.EditorName = cfg.Chat.WriterName
		_, err := service.NewReportServiceFromConfig(cfg, service.Backends{NewClient: newClient}, nil)
		Expect(err).To(HaveOccurred())
	})
})

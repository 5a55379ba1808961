package participant

import (
	"fmt"

	"basegraph.app/scribe/common/llm"
	"basegraph.app/scribe/core/config"
	"basegraph.app/scribe/internal/brain"
)

// Team is the configured set of conversation members.
type Team struct {
	Roles        brain.Roles
	Participants map[brain.ParticipantName]brain.Participant
	Cleaner      *Cleaner
}

// ClientFactory builds a model client for one role. NewTeam uses
// llm.NewAgentClient unless told otherwise.
type ClientFactory func(cfg config.LLMConfig) (llm.AgentClient, error)

func DefaultClientFactory(cfg config.LLMConfig) (llm.AgentClient, error) {
	return llm.NewAgentClient(llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
	})
}

// NewTeam wires researcher, writer and editor from cfg. researchTools are
// given to the researcher only. The cleaner falls back to the writer's model
// when it has no configuration of its own.
func NewTeam(cfg config.Config, newClient ClientFactory, researchTools ...Tool) (*Team, error) {
	if newClient == nil {
		newClient = DefaultClientFactory
	}

	roles := brain.Roles{
		Researcher: brainName(cfg.Chat.ResearcherName),
		Writer:     brainName(cfg.Chat.WriterName),
		Editor:     brainName(cfg.Chat.EditorName),
	}
	if err := roles.Validate(); err != nil {
		return nil, err
	}

	specs := []struct {
		name         brain.ParticipantName
		instructions string
		llm          config.LLMConfig
		tools        []Tool
	}{
		{roles.Researcher, researcherInstructions, cfg.ResearchLLM, researchTools},
		{roles.Writer, writerInstructions, cfg.WriterLLM, nil},
		{roles.Editor, editorInstructions, cfg.EditorLLM, nil},
	}

	team := &Team{
		Roles:        roles,
		Participants: make(map[brain.ParticipantName]brain.Participant, len(specs)),
	}
	for _, s := range specs {
		client, err := newClient(s.llm)
		if err != nil {
			return nil, fmt.Errorf("creating %s client: %w", s.name, err)
		}
		agent, err := NewAgent(AgentConfig{
			Name:          s.name,
			Instructions:  s.instructions,
			Client:        client,
			Tools:         s.tools,
			MaxTokens:     s.llm.MaxTokens,
			Timeout:       cfg.Chat.ParticipantTimeout,
			MaxToolRounds: cfg.Chat.MaxToolRounds,
		})
		if err != nil {
			return nil, err
		}
		team.Participants[s.name] = agent
	}

	cleanerLLM := cfg.CleanerLLM
	if !cleanerLLM.Enabled() {
		cleanerLLM = cfg.WriterLLM
	}
	client, err := newClient(cleanerLLM)
	if err != nil {
		return nil, fmt.Errorf("creating cleaner client: %w", err)
	}
	team.Cleaner, err = NewCleaner(cfg.Chat.CleanerName, client, cleanerLLM.MaxTokens, cfg.Chat.ParticipantTimeout)
	if err != nil {
		return nil, err
	}
	return team, nil
}

func brainName(s string) brain.ParticipantName {
	return brain.ParticipantName(s)
}

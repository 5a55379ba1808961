package service

import (
	"fmt"
	"log/slog"

	"basegraph.app/scribe/core/config"
	"basegraph.app/scribe/internal/brain"
	"basegraph.app/scribe/internal/participant"
	"basegraph.app/scribe/internal/queue"
	"basegraph.app/scribe/internal/report"
	"basegraph.app/scribe/internal/retriever"
	"basegraph.app/scribe/internal/store"
)

// Backends are the optional pieces of infrastructure an entry point has
// connected before building the service.
type Backends struct {
	Runs      store.ReportRunStore
	Publisher queue.Publisher
	// NewClient overrides how participant model clients are built.
	NewClient participant.ClientFactory
	// Searcher overrides the Typesense searcher built from cfg.Search.
	Searcher retriever.Searcher
}

// NewReportServiceFromConfig assembles the team, search tool and report
// writer described by cfg.
func NewReportServiceFromConfig(cfg config.Config, backends Backends, logger *slog.Logger) (ReportService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	searcher := backends.Searcher
	if searcher == nil && cfg.Search.Enabled() {
		var err error
		searcher, err = retriever.NewTypesenseSearcher(retriever.TypesenseConfig{
			URL:        cfg.Search.URL,
			APIKey:     cfg.Search.APIKey,
			Collection: cfg.Search.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("creating searcher: %w", err)
		}
	}

	ledger := retriever.NewLedger()
	var tools []participant.Tool
	if searcher != nil {
		tools = append(tools, retriever.NewSearchTool(searcher, ledger, retriever.SearchToolConfig{
			ResultsPerQuery: cfg.Search.ResultsPerQuery,
			MaxParallel:     cfg.Search.MaxParallel,
		}))
	} else {
		logger.Warn("search not configured, researcher will work without web_search")
	}

	team, err := participant.NewTeam(cfg, backends.NewClient, tools...)
	if err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}

	var opts []report.WriterOption
	if cfg.Report.PDF {
		opts = append(opts, report.WithRenderer(report.NewChromeRenderer(0)))
	}
	writer, err := report.NewWriter(cfg.Report.OutputDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating report writer: %w", err)
	}

	return NewReportService(ReportServiceConfig{
		Team: team,
		Policy: brain.Policy{
			MaxConsecutiveTurns: cfg.Chat.MaxConsecutiveTurns,
			ReviewTurnCap:       cfg.Chat.ReviewTurnCap,
			MaxIterations:       cfg.Chat.MaxIterations,
		},
		Citations:         ledger,
		Runs:              backends.Runs,
		Publisher:         backends.Publisher,
		Writer:            writer,
		QueryLinkTemplate: cfg.Report.QueryLinkTemplate,
	}, logger)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"basegraph.app/scribe/common/id"
	"basegraph.app/scribe/common/logger"
	"basegraph.app/scribe/internal/brain"
	"basegraph.app/scribe/internal/model"
	"basegraph.app/scribe/internal/participant"
	"basegraph.app/scribe/internal/queue"
	"basegraph.app/scribe/internal/report"
	"basegraph.app/scribe/internal/retriever"
	"basegraph.app/scribe/internal/store"
)

var (
	ErrEmptyCompany = errors.New("company is required")
	ErrNoArchive    = errors.New("run archive is not configured")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ReportResult is everything a finished run produced.
type ReportResult struct {
	RunID        int64
	Company      string
	Conversation *brain.Result
	// Found is false when no message looked like a final report. That is an
	// outcome, not an error.
	Found      bool
	Report     string
	References *report.References
	Files      report.Files
}

type ReportService interface {
	// Generate runs one conversation for company to completion and writes the
	// report. Extra observers see every appended message.
	Generate(ctx context.Context, company string, observers ...brain.Observer) (*ReportResult, error)
	// Start archives a new run and generates it in the background.
	Start(ctx context.Context, company string) (*model.ReportRun, error)
	Get(ctx context.Context, runID int64) (*model.ReportRun, error)
	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int32) ([]model.ReportRun, error)
	// Wait blocks until background runs finish or ctx is done.
	Wait(ctx context.Context) error
}

// Citations is where participants' search results are looked up after
// each message.
type Citations interface {
	retriever.Collector
	Forget(handle string)
}

type ReportServiceConfig struct {
	Team      *participant.Team
	Policy    brain.Policy
	Citations Citations
	// Runs, Publisher and Writer are optional.
	Runs              store.ReportRunStore
	Publisher         queue.Publisher
	Writer            *report.Writer
	QueryLinkTemplate string
}

type reportService struct {
	orchestrator *brain.Orchestrator
	team         *participant.Team
	citations    Citations
	runs         store.ReportRunStore
	publisher    queue.Publisher
	writer       *report.Writer
	linkTemplate string
	logger       *slog.Logger
	background   sync.WaitGroup
}

func NewReportService(cfg ReportServiceConfig, logger *slog.Logger) (ReportService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Team == nil {
		return nil, errors.New("participant team is required")
	}

	orch, err := brain.NewOrchestrator(brain.OrchestratorConfig{
		Roles:  cfg.Team.Roles,
		Policy: cfg.Policy,
	}, cfg.Team.Participants)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return &reportService{
		orchestrator: orch,
		team:         cfg.Team,
		citations:    cfg.Citations,
		runs:         cfg.Runs,
		publisher:    cfg.Publisher,
		writer:       cfg.Writer,
		linkTemplate: cfg.QueryLinkTemplate,
		logger:       logger,
	}, nil
}

func (s *reportService) Generate(ctx context.Context, company string, observers ...brain.Observer) (*ReportResult, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, ErrEmptyCompany
	}

	runID := id.New()
	if s.runs != nil {
		if _, err := s.runs.Create(ctx, runID, company); err != nil {
			return nil, fmt.Errorf("archiving run: %w", err)
		}
	}
	return s.generate(ctx, runID, company, observers...)
}

func (s *reportService) Start(ctx context.Context, company string) (*model.ReportRun, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, ErrEmptyCompany
	}
	if s.runs == nil {
		return nil, ErrNoArchive
	}

	runID := id.New()
	run, err := s.runs.Create(ctx, runID, company)
	if err != nil {
		return nil, fmt.Errorf("archiving run: %w", err)
	}

	traceID := traceIDFrom(ctx)
	bg := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		sc := logger.StartSpanFromTraceID(bg, traceID, "service.report_run")
		defer sc.End()
		if _, err := s.generate(sc.Context(), runID, company); err != nil {
			sc.RecordError(err)
		}
	}()
	return run, nil
}

func (s *reportService) Get(ctx context.Context, runID int64) (*model.ReportRun, error) {
	if s.runs == nil {
		return nil, ErrNoArchive
	}
	return s.runs.Get(ctx, runID)
}

func (s *reportService) List(ctx context.Context, limit int32) ([]model.ReportRun, error) {
	if s.runs == nil {
		return nil, ErrNoArchive
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return s.runs.ListRecent(ctx, limit)
}

func (s *reportService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *reportService) generate(ctx context.Context, runID int64, company string, observers ...brain.Observer) (*ReportResult, error) {
	runIDStr := strconv.FormatInt(runID, 10)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &runIDStr,
		Company:   &company,
		Component: "scribe.service.report",
	})

	result := &ReportResult{
		RunID:      runID,
		Company:    company,
		References: report.NewReferences(),
	}
	prompt := participant.InitialPrompt(company)
	s.publish(ctx, queue.TranscriptEvent{
		RunID:    runIDStr,
		Kind:     queue.EventKindMessage,
		Speaker:  string(brain.UserSpeaker),
		Sequence: 0,
		Text:     prompt,
	})

	runObservers := append([]brain.Observer{
		brain.ObserverFunc(s.collectReferences(result.References)),
		brain.ObserverFunc(s.publishMessage),
	}, observers...)

	s.logger.InfoContext(ctx, "report run started")
	start := time.Now()

	conv, err := s.orchestrator.Run(ctx, runIDStr, prompt, runObservers...)
	result.Conversation = conv
	if err != nil {
		s.fail(ctx, result, err)
		return result, err
	}

	text, found := report.FinalReport(conv.History, s.team.Roles)
	result.Found = found
	if !found {
		s.logger.WarnContext(ctx, "conversation ended without a final report",
			"stop_reason", conv.StopReason,
			"messages", len(conv.History))
		s.complete(ctx, result, model.RunStatusNoReport)
		return result, nil
	}

	if s.team.Cleaner != nil {
		text = s.team.Cleaner.Clean(ctx, text)
	}
	result.Report = report.Tidy(text)

	if s.writer != nil {
		files, err := s.writer.Write(ctx, company, result.Report, result.References.Markdown(s.linkTemplate))
		if err != nil {
			err = fmt.Errorf("writing report: %w", err)
			s.fail(ctx, result, err)
			return result, err
		}
		result.Files = files
	}

	s.complete(ctx, result, model.RunStatusCompleted)
	s.logger.InfoContext(ctx, "report run completed",
		"stop_reason", conv.StopReason,
		"phase", conv.Phase,
		"messages", len(conv.History),
		"citations", len(result.References.Citations()),
		"markdown_path", result.Files.MarkdownPath,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// collectReferences moves each message's citations from the ledger into refs.
func (s *reportService) collectReferences(refs *report.References) func(context.Context, brain.MessageEvent) error {
	return func(ctx context.Context, ev brain.MessageEvent) error {
		if s.citations == nil || ev.Message.Handle == "" {
			return nil
		}
		defer s.citations.Forget(ev.Message.Handle)
		collected, err := s.citations.Collect(ctx, ev.Message.Handle)
		if err != nil {
			return fmt.Errorf("collecting citations: %w", err)
		}
		refs.Add(collected)
		return nil
	}
}

func (s *reportService) publishMessage(ctx context.Context, ev brain.MessageEvent) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, queue.TranscriptEvent{
		RunID:    ev.RunID,
		Kind:     queue.EventKindMessage,
		Speaker:  string(ev.Message.Speaker),
		Phase:    string(ev.Phase),
		Sequence: ev.Message.Sequence,
		Text:     ev.Message.Text,
		TraceID:  traceIDFrom(ctx),
	})
}

func (s *reportService) publish(ctx context.Context, ev queue.TranscriptEvent) {
	if s.publisher == nil {
		return
	}
	ev.TraceID = traceIDFrom(ctx)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish transcript event", "kind", ev.Kind, "error", err)
	}
}

func (s *reportService) complete(ctx context.Context, result *ReportResult, status model.RunStatus) {
	ctx = context.WithoutCancel(ctx)
	conv := result.Conversation
	outcome := model.RunOutcome{
		Status:       status,
		Phase:        string(conv.Phase),
		StopReason:   string(conv.StopReason),
		MessageCount: int32(len(conv.History)),
	}
	if result.Report != "" {
		outcome.Report = &result.Report
	}
	if result.Files.MarkdownPath != "" {
		outcome.MarkdownPath = &result.Files.MarkdownPath
	}

	if s.runs != nil {
		if err := s.runs.Complete(ctx, result.RunID, outcome); err != nil {
			s.logger.ErrorContext(ctx, "failed to archive run outcome", "error", err)
		}
	}
	s.publish(ctx, queue.TranscriptEvent{
		RunID:      strconv.FormatInt(result.RunID, 10),
		Kind:       queue.EventKindDone,
		Phase:      outcome.Phase,
		Sequence:   len(conv.History),
		Status:     string(status),
		StopReason: outcome.StopReason,
	})
}

func (s *reportService) fail(ctx context.Context, result *ReportResult, runErr error) {
	ctx = context.WithoutCancel(ctx)
	count := 0
	phase := ""
	if result.Conversation != nil {
		count = len(result.Conversation.History)
		phase = string(result.Conversation.Phase)
	}
	s.logger.ErrorContext(ctx, "report run failed", "error", runErr, "messages", count)

	if s.runs != nil {
		if err := s.runs.Fail(ctx, result.RunID, runErr.Error(), int32(count)); err != nil {
			s.logger.ErrorContext(ctx, "failed to archive run failure", "error", err)
		}
	}
	s.publish(ctx, queue.TranscriptEvent{
		RunID:    strconv.FormatInt(result.RunID, 10),
		Kind:     queue.EventKindDone,
		Phase:    phase,
		Sequence: count,
		Status:   string(model.RunStatusFailed),
	})
}

func traceIDFrom(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

package service_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/scribe/common/id"
	"basegraph.app/scribe/internal/brain"
	"basegraph.app/scribe/internal/model"
	"basegraph.app/scribe/internal/participant"
	"basegraph.app/scribe/internal/queue"
	"basegraph.app/scribe/internal/report"
	"basegraph.app/scribe/internal/retriever"
	"basegraph.app/scribe/internal/service"
)

const (
	researcher brain.ParticipantName = "FinancialResearcher"
	writer     brain.ParticipantName = "FinancialReportWriter"
	editor     brain.ParticipantName = "FinancialReportEditor"
)

const draft = `## Executive Summary
Revenue grew 12% to $65.6B.

## Financial Performance
Operating margin reached 45%.

## Outlook and Guidance
Management guides to double-digit growth.

DRAFT COMPLETE FOR YOUR REVIEW`

var _ = Describe("ReportService", func() {
	var (
		ctx          context.Context
		runs         *mockRunStore
		publisher    *mockPublisher
		citations    *fakeCitations
		writerDir    string
		participants map[brain.ParticipantName]brain.Participant
		cleaner      *participant.Cleaner
	)

	roles := brain.Roles{Researcher: researcher, Writer: writer, Editor: editor}

	newService := func(withWriter bool) service.ReportService {
		cfg := service.ReportServiceConfig{
			Team: &participant.Team{
				Roles:        roles,
				Participants: participants,
				Cleaner:      cleaner,
			},
			Policy:    brain.DefaultPolicy(),
			Citations: citations,
			Runs:      runs,
			Publisher: publisher,
		}
		if withWriter {
			w, err := report.NewWriter(writerDir)
			Expect(err).NotTo(HaveOccurred())
			cfg.Writer = w
		}
		svc, err := service.NewReportService(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		return svc
	}

	BeforeEach(func() {
		ctx = context.Background()
		Expect(id.Init(1)).To(Succeed())

		runs = newMockRunStore()
		publisher = &mockPublisher{}
		citations = &fakeCitations{byHandle: map[string]retriever.Collected{
			"researcher-1": {
				Citations: []model.Citation{{Title: "Q3 FY25 earnings", URL: "https://example.com/q3"}},
				Queries:   []string{"Microsoft Q3 FY25 revenue"},
			},
		}}
		writerDir = GinkgoT().TempDir()
		participants = map[brain.ParticipantName]brain.Participant{
			researcher: &scripted{name: "researcher", lines: []string{"Revenue $65.6B. RESEARCH COMPLETE"}},
			writer:     &scripted{name: "writer", lines: []string{draft}},
			editor:     &scripted{name: "editor", lines: []string{"Looks good.\n\nREPORT APPROVED"}},
		}
		cleaner = nil
	})

	Describe("NewReportService", func() {
		It("requires a team", func() {
			_, err := service.NewReportService(service.ReportServiceConfig{}, nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a team missing a role", func() {
			delete(participants, editor)
			_, err := service.NewReportService(service.ReportServiceConfig{
				Team: &participant.Team{Roles: roles, Participants: participants},
			}, nil)
			var selErr *brain.SelectionError
			Expect(errors.As(err, &selErr)).To(BeTrue())
		})
	})

	Describe("Generate", func() {
		It("rejects an empty company", func() {
			_, err := newService(false).Generate(ctx, "   ")
			Expect(err).To(MatchError(service.ErrEmptyCompany))
		})

		It("runs the conversation and writes the approved report with references", func() {
			var seen []brain.ParticipantName
			observer := brain.ObserverFunc(func(ctx context.Context, ev brain.MessageEvent) error {
				seen = append(seen, ev.Message.Speaker)
				return nil
			})

			result, err := newService(true).Generate(ctx, "Microsoft", observer)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Conversation.StopReason).To(Equal(brain.StopReasonApproved))
			Expect(seen).To(Equal([]brain.ParticipantName{researcher, writer, editor}))
			Expect(result.Found).To(BeTrue())
			Expect(result.Report).To(HavePrefix("## Executive Summary"))
			Expect(result.Report).To(ContainSubstring("DRAFT COMPLETE FOR YOUR REVIEW"))

			Expect(result.Files.MarkdownPath).NotTo(BeEmpty())
			data, err := os.ReadFile(result.Files.MarkdownPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(HavePrefix("# Microsoft Financial Report Summary"))
			Expect(string(data)).To(ContainSubstring("- [Q3 FY25 earnings](https://example.com/q3)"))
			Expect(string(data)).To(ContainSubstring("### Search Queries"))

			Expect(citations.forgotten).To(ContainElement("researcher-1"))

			Expect(runs.status(result.RunID)).To(Equal(model.RunStatusCompleted))
			Expect(runs.completed).To(HaveLen(1))
			Expect(runs.completed[0].StopReason).To(Equal("approved"))
			Expect(runs.completed[0].MessageCount).To(Equal(int32(4)))
			Expect(*runs.completed[0].MarkdownPath).To(Equal(result.Files.MarkdownPath))
		})

		It("publishes the prompt, every message and a done event", func() {
			result, err := newService(false).Generate(ctx, "Microsoft")
			Expect(err).NotTo(HaveOccurred())

			events := publisher.snapshot()
			Expect(events).To(HaveLen(5))
			runID := strconv.FormatInt(result.RunID, 10)
			for _, ev := range events {
				Expect(ev.RunID).To(Equal(runID))
			}
			Expect(events[0].Speaker).To(Equal("user"))
			Expect(events[0].Sequence).To(Equal(0))
			Expect(events[1].Speaker).To(Equal(string(researcher)))
			Expect(events[1].Sequence).To(Equal(1))
			Expect(events[3].Phase).To(Equal(string(brain.PhaseReview)))
			Expect(events[4].Kind).To(Equal(queue.EventKindDone))
			Expect(events[4].Status).To(Equal(string(model.RunStatusCompleted)))
			Expect(events[4].StopReason).To(Equal("approved"))
		})

		It("cleans the report and strips approval lines", func() {
			var err error
			cleaner, err = participant.NewCleaner("", &cleanerClient{
				content: "```markdown\n## Executive Summary\nClean.\nREPORT APPROVED\n```",
			}, 0, time.Second)
			Expect(err).NotTo(HaveOccurred())

			result, err := newService(false).Generate(ctx, "Microsoft")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Report).To(Equal("## Executive Summary\nClean."))
			Expect(*runs.completed[0].Report).To(Equal(result.Report))
		})

		It("keeps the original report when cleaning fails", func() {
			var err error
			cleaner, err = participant.NewCleaner("", &cleanerClient{err: context.Canceled}, 0, time.Second)
			Expect(err).NotTo(HaveOccurred())

			result, err := newService(false).Generate(ctx, "Microsoft")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Report).To(HavePrefix("## Executive Summary"))
		})

		It("records a run without a report as no_report", func() {
			participants[writer] = &scripted{name: "writer", lines: []string{"Still drafting."}}
			participants[editor] = &scripted{name: "editor", lines: []string{"Waiting."}}

			result, err := newService(true).Generate(ctx, "Microsoft")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Found).To(BeFalse())
			Expect(result.Report).To(BeEmpty())
			Expect(result.Conversation.StopReason).To(Equal(brain.StopReasonMaxIterations))
			Expect(result.Files.MarkdownPath).To(BeEmpty())
			Expect(runs.status(result.RunID)).To(Equal(model.RunStatusNoReport))
		})

		It("releases citations even when collecting them fails", func() {
			citations.collectErr = errors.New("ledger closed")

			result, err := newService(false).Generate(ctx, "Microsoft")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.References.Empty()).To(BeTrue())
			Expect(citations.forgotten).To(ContainElements("researcher-1", "writer-1", "editor-1"))
		})

		It("fails the run when a participant fails", func() {
			participants[writer] = &scripted{name: "writer", err: errors.New("model unavailable")}

			result, err := newService(false).Generate(ctx, "Microsoft")
			var invErr *brain.InvocationError
			Expect(errors.As(err, &invErr)).To(BeTrue())
			Expect(invErr.Participant).To(Equal(writer))

			Expect(runs.status(result.RunID)).To(Equal(model.RunStatusFailed))
			Expect(runs.failed[0]).To(ContainSubstring("model unavailable"))

			events := publisher.snapshot()
			last := events[len(events)-1]
			Expect(last.Kind).To(Equal(queue.EventKindDone))
			Expect(last.Status).To(Equal(string(model.RunStatusFailed)))
		})

		It("does not start when the run cannot be archived", func() {
			runs.createErr = errors.New("db down")
			_, err := newService(false).Generate(ctx, "Microsoft")
			Expect(err).To(MatchError(ContainSubstring("db down")))
			Expect(publisher.snapshot()).To(BeEmpty())
		})
	})

	Describe("Start", func() {
		It("returns the archived run and finishes in the background", func() {
			svc := newService(false)

			run, err := svc.Start(ctx, "Microsoft")
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Company).To(Equal("Microsoft"))

			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(svc.Wait(waitCtx)).To(Succeed())

			got, err := svc.Get(ctx, run.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.RunStatusCompleted))
		})

		It("outlives the request context", func() {
			block := make(chan struct{})
			participants[researcher] = &scripted{name: "researcher", lines: []string{"RESEARCH COMPLETE"}, block: block}
			svc := newService(false)

			reqCtx, cancelReq := context.WithCancel(ctx)
			run, err := svc.Start(reqCtx, "Microsoft")
			Expect(err).NotTo(HaveOccurred())
			cancelReq()
			close(block)

			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(svc.Wait(waitCtx)).To(Succeed())
			Expect(runs.status(run.ID)).To(Equal(model.RunStatusCompleted))
		})

		It("requires the archive", func() {
			svc, err := service.NewReportService(service.ReportServiceConfig{
				Team: &participant.Team{Roles: roles, Participants: participants},
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Start(ctx, "Microsoft")
			Expect(err).To(MatchError(service.ErrNoArchive))
		})
	})

	Describe("List", func() {
		It("clamps the limit", func() {
			svc := newService(false)
			_, err := svc.Generate(ctx, "Microsoft")
			Expect(err).NotTo(HaveOccurred())

			listed, err := svc.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(1))
			Expect(runs.listLimit).To(Equal(int32(20)))

			_, err = svc.List(ctx, 500)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs.listLimit).To(Equal(int32(20)))

			_, err = svc.List(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs.listLimit).To(Equal(int32(5)))
		})

		It("requires the archive", func() {
			svc, err := service.NewReportService(service.ReportServiceConfig{
				Team: &participant.Team{Roles: roles, Participants: participants},
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.List(ctx, 10)
			Expect(err).To(MatchError(service.ErrNoArchive))
		})
	})
})

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/scribe/internal/http/handler"
	"basegraph.app/scribe/internal/model"
	"basegraph.app/scribe/internal/queue"
	"basegraph.app/scribe/internal/service"
	"basegraph.app/scribe/internal/store"
)

var _ = Describe("ReportHandler", func() {
	var (
		router *gin.Engine
		svc    *mockReportService
		reader *mockReader
	)

	setup := func(r queue.Reader) {
		router = gin.New()
		h := handler.NewReportHandler(svc, r, 10*time.Millisecond)
		router.POST("/api/v1/reports", h.Create)
		router.GET("/api/v1/reports", h.List)
		router.GET("/api/v1/reports/:id", h.Get)
		router.GET("/api/v1/reports/:id/stream", h.Stream)
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		svc = &mockReportService{}
		reader = &mockReader{}
		setup(reader)
	})

	Describe("Create", func() {
		post := func(body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		It("returns 202 with the run and its stream URL", func() {
			svc.startFn = func(_ context.Context, company string) (*model.ReportRun, error) {
				return &model.ReportRun{ID: 42, Company: company, Status: model.RunStatusRunning}, nil
			}

			w := post(`{"company":"Microsoft"}`)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("42"))
			Expect(resp["company"]).To(Equal("Microsoft"))
			Expect(resp["status"]).To(Equal("running"))
			Expect(resp["stream_url"]).To(Equal("/api/v1/reports/42/stream"))
		})

		It("returns 400 without a company", func() {
			w := post(`{}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 when the service rejects the company", func() {
			svc.startFn = func(context.Context, string) (*model.ReportRun, error) {
				return nil, service.ErrEmptyCompany
			}
			w := post(`{"company":"   "}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 503 without an archive", func() {
			svc.startFn = func(context.Context, string) (*model.ReportRun, error) {
				return nil, service.ErrNoArchive
			}
			w := post(`{"company":"Microsoft"}`)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("returns 500 on unexpected errors", func() {
			svc.startFn = func(context.Context, string) (*model.ReportRun, error) {
				return nil, errors.New("db down")
			}
			w := post(`{"company":"Microsoft"}`)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).NotTo(ContainSubstring("db down"))
		})
	})

	Describe("Get", func() {
		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w
		}

		It("returns the archived run", func() {
			report := "## Executive Summary"
			svc.getFn = func(_ context.Context, runID int64) (*model.ReportRun, error) {
				return &model.ReportRun{
					ID:         runID,
					Company:    "Microsoft",
					Status:     model.RunStatusCompleted,
					StopReason: "approved",
					Report:     &report,
				}, nil
			}

			w := get("/api/v1/reports/7")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["stop_reason"]).To(Equal("approved"))
			Expect(resp["report"]).To(Equal(report))
			Expect(resp["stream_url"]).To(Equal("/api/v1/reports/7/stream"))
		})

		It("returns 404 for unknown runs", func() {
			svc.getFn = func(context.Context, int64) (*model.ReportRun, error) {
				return nil, store.ErrNotFound
			}
			Expect(get("/api/v1/reports/7").Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for malformed ids", func() {
			Expect(get("/api/v1/reports/abc").Code).To(Equal(http.StatusBadRequest))
			Expect(get("/api/v1/reports/-1").Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("List", func() {
		It("returns recent runs with stream URLs", func() {
			var gotLimit int32
			svc.listFn = func(_ context.Context, limit int32) ([]model.ReportRun, error) {
				gotLimit = limit
				return []model.ReportRun{
					{ID: 2, Company: "Contoso", Status: model.RunStatusRunning},
					{ID: 1, Company: "Microsoft", Status: model.RunStatusCompleted},
				}, nil
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports?limit=5", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotLimit).To(Equal(int32(5)))
			var resp struct {
				Runs []map[string]any `json:"runs"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Runs).To(HaveLen(2))
			Expect(resp.Runs[0]["id"]).To(Equal("2"))
			Expect(resp.Runs[1]["stream_url"]).To(Equal("/api/v1/reports/1/stream"))
		})

		It("returns 400 for a malformed limit", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports?limit=ten", nil))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 503 without an archive", func() {
			svc.listFn = func(context.Context, int32) ([]model.ReportRun, error) {
				return nil, service.ErrNoArchive
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("Stream", func() {
		stream := func(path string, header http.Header) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			for k, v := range header {
				req.Header[k] = v
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req.WithContext(ctx))
			return w
		}

		It("replays events and stops at done", func() {
			reader.batches = [][]queue.TranscriptEvent{
				{
					{ID: "1-0", RunID: "9", Kind: queue.EventKindMessage, Speaker: "user", Sequence: 0, Text: "Write a report"},
					{ID: "2-0"},
				},
				{
					{ID: "3-0", RunID: "9", Kind: queue.EventKindMessage, Speaker: "FinancialResearcher", Sequence: 1, Text: "line one\nline two"},
					{ID: "4-0", RunID: "9", Kind: queue.EventKindDone, Status: "completed", StopReason: "approved"},
				},
				{
					{ID: "5-0", RunID: "9", Kind: queue.EventKindMessage, Text: "never sent"},
				},
			}

			w := stream("/api/v1/reports/9/stream", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/event-stream"))
			body := w.Body.String()
			Expect(body).To(HavePrefix("event: ping\ndata: ready\n\n"))
			Expect(body).To(ContainSubstring("id: 1-0\nevent: message\n"))
			Expect(body).NotTo(ContainSubstring("id: 2-0"))
			Expect(body).To(ContainSubstring(`line one\nline two`))
			Expect(body).To(ContainSubstring("id: 4-0\nevent: done\n"))
			Expect(body).NotTo(ContainSubstring("never sent"))

			Expect(reader.lastIDs).To(Equal([]string{"0", "2-0"}))
		})

		It("resumes from Last-Event-ID", func() {
			reader.batches = [][]queue.TranscriptEvent{{{ID: "8-0", Kind: queue.EventKindDone}}}

			stream("/api/v1/reports/9/stream", http.Header{"Last-Event-Id": {"7-0"}})

			Expect(reader.lastIDs).To(Equal([]string{"7-0"}))
		})

		It("pings while waiting and reports read errors", func() {
			// first read times out, second fails, third delivers done
			reader.errs = []error{nil, errors.New("redis gone")}
			reader.batches = [][]queue.TranscriptEvent{
				{},
				{{ID: "1-0", Kind: queue.EventKindDone}},
			}

			w := stream("/api/v1/reports/9/stream", nil)

			body := w.Body.String()
			Expect(strings.Count(body, "event: ping")).To(Equal(2))
			Expect(body).To(ContainSubstring("event: error\ndata: {\"error\":\"redis gone\"}"))
			Expect(body).To(ContainSubstring("event: done"))
			Expect(reader.lastIDs).To(HaveLen(3))
		})

		It("returns 404 for unknown runs", func() {
			svc.getFn = func(context.Context, int64) (*model.ReportRun, error) {
				return nil, store.ErrNotFound
			}
			Expect(stream("/api/v1/reports/9/stream", nil).Code).To(Equal(http.StatusNotFound))
		})

		It("returns 503 without a transcript reader", func() {
			setup(nil)
			Expect(stream("/api/v1/reports/9/stream", nil).Code).To(Equal(http.StatusServiceUnavailable))
		})
	})
})

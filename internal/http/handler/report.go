package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/scribe/internal/http/dto"
	"basegraph.app/scribe/internal/queue"
	"basegraph.app/scribe/internal/service"
	"basegraph.app/scribe/internal/store"
)

const (
	defaultStreamBlock = 25 * time.Second
	streamErrorBackoff = time.Second
)

type ReportHandler struct {
	service service.ReportService
	reader  queue.Reader
	block   time.Duration
}

// NewReportHandler serves report runs. reader may be nil, in which case
// streaming is unavailable.
func NewReportHandler(svc service.ReportService, reader queue.Reader, block time.Duration) *ReportHandler {
	if block <= 0 {
		block = defaultStreamBlock
	}
	return &ReportHandler{service: svc, reader: reader, block: block}
}

func (h *ReportHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.service.Start(ctx, req.Company)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCompany):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNoArchive):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run archive not configured"})
		default:
			slog.ErrorContext(ctx, "failed to start report run", "error", err, "company", req.Company)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start report run"})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.ToReportRunResponse(run, streamURL(c, run.ID)))
}

func (h *ReportHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	run, err := h.service.Get(ctx, runID)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToReportRunResponse(run, streamURL(c, run.ID)))
}

func (h *ReportHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	runs, err := h.service.List(ctx, int32(limit))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	resp := dto.ListReportRunsResponse{Runs: make([]*dto.ReportRunResponse, 0, len(runs))}
	for i := range runs {
		resp.Runs = append(resp.Runs, dto.ToReportRunResponse(&runs[i], fmt.Sprintf("%s/%d/stream", c.FullPath(), runs[i].ID)))
	}
	c.JSON(http.StatusOK, resp)
}

// Stream replays a run's transcript as server-sent events and follows it
// until the done event. Clients resume with last_id or Last-Event-ID.
func (h *ReportHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	if h.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transcript streaming not configured"})
		return
	}

	runID, ok := parseRunID(c)
	if !ok {
		return
	}
	if _, err := h.service.Get(ctx, runID); err != nil && !errors.Is(err, service.ErrNoArchive) {
		h.writeLookupError(c, err)
		return
	}

	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = c.GetHeader("Last-Event-ID")
	}
	if lastID == "" {
		lastID = "0"
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	sseWrite(c.Writer, "", "ping", "ready")
	flusher.Flush()

	id := strconv.FormatInt(runID, 10)
	for {
		if ctx.Err() != nil {
			return
		}

		events, err := h.reader.Read(ctx, id, lastID, h.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.WarnContext(ctx, "transcript read failed", "error", err, "run_id", id)
			sseWrite(c.Writer, "", "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			select {
			case <-time.After(streamErrorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		if len(events) == 0 {
			sseWrite(c.Writer, "", "ping", time.Now().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
			continue
		}

		for _, ev := range events {
			lastID = ev.ID
			if ev.Kind == "" {
				continue
			}
			sseWrite(c.Writer, ev.ID, string(ev.Kind), ev)
			flusher.Flush()
			if ev.Kind == queue.EventKindDone {
				return
			}
		}
	}
}

func (h *ReportHandler) writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "report run not found"})
	case errors.Is(err, service.ErrNoArchive):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run archive not configured"})
	default:
		slog.ErrorContext(c.Request.Context(), "failed to get report run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get report run"})
	}
}

func parseRunID(c *gin.Context) (int64, bool) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || runID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return 0, false
	}
	return runID, true
}

func streamURL(c *gin.Context, runID int64) string {
	base := strings.TrimSuffix(c.FullPath(), "/:id")
	base = strings.TrimSuffix(base, "/:id/stream")
	return fmt.Sprintf("%s/%d/stream", base, runID)
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, id, event string, data any) {
	payload := marshalPayload(data)
	if id != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", id)
	}
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}

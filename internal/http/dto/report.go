package dto

import (
	"time"

	"basegraph.app/scribe/internal/model"
)

type CreateReportRequest struct {
	Company string `json:"company" binding:"required,min=1,max=200"`
}

type ReportRunResponse struct {
	ID           int64      `json:"id,string"`
	Company      string     `json:"company"`
	Status       string     `json:"status"`
	Phase        string     `json:"phase,omitempty"`
	StopReason   string     `json:"stop_reason,omitempty"`
	MessageCount int32      `json:"message_count"`
	Report       *string    `json:"report,omitempty"`
	MarkdownPath *string    `json:"markdown_path,omitempty"`
	Error        *string    `json:"error,omitempty"`
	StreamURL    string     `json:"stream_url"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type ListReportRunsResponse struct {
	Runs []*ReportRunResponse `json:"runs"`
}

func ToReportRunResponse(run *model.ReportRun, streamURL string) *ReportRunResponse {
	return &ReportRunResponse{
		ID:           run.ID,
		Company:      run.Company,
		Status:       string(run.Status),
		Phase:        run.Phase,
		StopReason:   run.StopReason,
		MessageCount: run.MessageCount,
		Report:       run.Report,
		MarkdownPath: run.MarkdownPath,
		Error:        run.Error,
		StreamURL:    streamURL,
		CreatedAt:    run.CreatedAt,
		CompletedAt:  run.CompletedAt,
	}
}

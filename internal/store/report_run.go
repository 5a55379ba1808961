package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/scribe/internal/model"
)

const (
	sqlCreateReportRunsTable = `
		CREATE TABLE IF NOT EXISTS report_runs (
			id            BIGINT PRIMARY KEY,
			company       TEXT NOT NULL,
			status        TEXT NOT NULL,
			phase         TEXT NOT NULL DEFAULT '',
			stop_reason   TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			report        TEXT,
			markdown_path TEXT,
			error         TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at  TIMESTAMPTZ
		)`

	sqlInsertReportRun = `
		INSERT INTO report_runs (id, company, status)
		VALUES ($1, $2, $3)
		RETURNING id, company, status, phase, stop_reason, message_count, report, markdown_path, error, created_at, completed_at`

	sqlCompleteReportRun = `
		UPDATE report_runs
		SET status = $2, phase = $3, stop_reason = $4, message_count = $5, report = $6, markdown_path = $7, completed_at = now()
		WHERE id = $1`

	sqlFailReportRun = `
		UPDATE report_runs
		SET status = $2, error = $3, message_count = $4, completed_at = now()
		WHERE id = $1`

	sqlSelectReportRun = `
		SELECT id, company, status, phase, stop_reason, message_count, report, markdown_path, error, created_at, completed_at
		FROM report_runs
		WHERE id = $1`

	sqlListReportRuns = `
		SELECT id, company, status, phase, stop_reason, message_count, report, markdown_path, error, created_at, completed_at
		FROM report_runs
		ORDER BY created_at DESC
		LIMIT $1`
)

type reportRunStore struct {
	db DBTX
}

func NewReportRunStore(db DBTX) ReportRunStore {
	return &reportRunStore{db: db}
}

func (s *reportRunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, sqlCreateReportRunsTable); err != nil {
		return fmt.Errorf("creating report_runs table: %w", err)
	}
	return nil
}

func (s *reportRunStore) Create(ctx context.Context, id int64, company string) (*model.ReportRun, error) {
	row := s.db.QueryRow(ctx, sqlInsertReportRun, id, company, string(model.RunStatusRunning))
	run, err := scanReportRun(row)
	if err != nil {
		return nil, fmt.Errorf("inserting report run: %w", err)
	}
	return run, nil
}

func (s *reportRunStore) Complete(ctx context.Context, id int64, outcome model.RunOutcome) error {
	tag, err := s.db.Exec(ctx, sqlCompleteReportRun,
		id,
		string(outcome.Status),
		outcome.Phase,
		outcome.StopReason,
		outcome.MessageCount,
		outcome.Report,
		outcome.MarkdownPath,
	)
	if err != nil {
		return fmt.Errorf("completing report run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *reportRunStore) Fail(ctx context.Context, id int64, errMsg string, messageCount int32) error {
	tag, err := s.db.Exec(ctx, sqlFailReportRun, id, string(model.RunStatusFailed), errMsg, messageCount)
	if err != nil {
		return fmt.Errorf("failing report run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *reportRunStore) Get(ctx context.Context, id int64) (*model.ReportRun, error) {
	run, err := scanReportRun(s.db.QueryRow(ctx, sqlSelectReportRun, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting report run: %w", err)
	}
	return run, nil
}

func (s *reportRunStore) ListRecent(ctx context.Context, limit int32) ([]model.ReportRun, error) {
	rows, err := s.db.Query(ctx, sqlListReportRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("listing report runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.ReportRun, 0, limit)
	for rows.Next() {
		run, err := scanReportRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating report runs: %w", err)
	}
	return runs, nil
}

func scanReportRun(row pgx.Row) (*model.ReportRun, error) {
	var (
		run    model.ReportRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Company,
		&status,
		&run.Phase,
		&run.StopReason,
		&run.MessageCount,
		&run.Report,
		&run.MarkdownPath,
		&run.Error,
		&run.CreatedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	return &run, nil
}

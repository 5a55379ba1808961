package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"basegraph.app/scribe/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// DBTX is the subset of pgx shared by pools, connections and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReportRunStore archives report runs. It holds outcomes only; a run cannot
// be resumed from it.
type ReportRunStore interface {
	EnsureSchema(ctx context.Context) error
	Create(ctx context.Context, id int64, company string) (*model.ReportRun, error)
	Complete(ctx context.Context, id int64, outcome model.RunOutcome) error
	Fail(ctx context.Context, id int64, errMsg string, messageCount int32) error
	Get(ctx context.Context, id int64) (*model.ReportRun, error)
	ListRecent(ctx context.Context, limit int32) ([]model.ReportRun, error)
}

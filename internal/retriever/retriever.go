// Package retriever gives the researcher a web_search tool and keeps track of
// what each invocation looked up so citations can be collected afterwards.
package retriever

import (
	"context"

	"basegraph.app/scribe/internal/model"
)

// Result is one search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher runs a single query against a search backend.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Collected is what one invocation gathered, deduplicated.
type Collected struct {
	Citations []model.Citation
	Queries   []string
}

// Collector returns the citations and queries recorded under a handle.
type Collector interface {
	Collect(ctx context.Context, handle string) (Collected, error)
}

package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"basegraph.app/scribe/common/llm"
	"basegraph.app/scribe/common/logger"
)

const (
	SearchToolName = "web_search"

	maxQueriesPerCall = 5
	maxSnippetLength  = 400
)

// SearchArgs are the web_search tool parameters.
type SearchArgs struct {
	Queries []string `json:"queries" jsonschema:"description=One to five focused search queries. Each runs independently.,minItems=1,maxItems=5"`
}

type SearchToolConfig struct {
	ResultsPerQuery int
	MaxParallel     int
}

// SearchTool fans a web_search call out over its queries and records every
// query and hit in the ledger under the calling invocation's handle.
type SearchTool struct {
	searcher Searcher
	ledger   *Ledger
	cfg      SearchToolConfig
}

func NewSearchTool(searcher Searcher, ledger *Ledger, cfg SearchToolConfig) *SearchTool {
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = 5
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &SearchTool{searcher: searcher, ledger: ledger, cfg: cfg}
}

func (t *SearchTool) Definition() llm.Tool {
	return llm.Tool{
		Name:        SearchToolName,
		Description: "Search recent financial news, filings and market data. Returns titles, URLs and snippets for each query.",
		Parameters:  llm.GenerateSchema[SearchArgs](),
	}
}

// Forget drops what was recorded under handle.
func (t *SearchTool) Forget(handle string) {
	t.ledger.Forget(handle)
}

// Execute runs the queries in arguments and renders the results for the
// model. A failing query is reported inline; only cancellation or a failure
// of every query is returned as an error.
func (t *SearchTool) Execute(ctx context.Context, handle, arguments string) (string, error) {
	args, err := llm.ParseToolArguments[SearchArgs](arguments)
	if err != nil {
		return "", err
	}

	queries := make([]string, 0, len(args.Queries))
	for _, q := range args.Queries {
		if q = NormalizeQuery(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return "", errors.New("web_search needs at least one non-empty query")
	}
	if len(queries) > maxQueriesPerCall {
		queries = queries[:maxQueriesPerCall]
	}

	sc := logger.StartSpan(ctx, "retriever.search")
	defer sc.End()
	ctx = sc.Context()

	results := make([][]Result, len(queries))
	failures := make([]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.MaxParallel)
	for i, q := range queries {
		g.Go(func() error {
			res, err := t.searcher.Search(gctx, q, t.cfg.ResultsPerQuery)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = err
				return nil
			}
			results[i] = res
			t.ledger.Record(handle, q, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sc.RecordError(err)
		return "", fmt.Errorf("web_search: %w", err)
	}

	failed := 0
	for i, ferr := range failures {
		if ferr != nil {
			failed++
			slog.WarnContext(ctx, "search query failed", "query", queries[i], "error", ferr)
		}
	}
	if failed == len(queries) {
		err := fmt.Errorf("web_search: all %d queries failed: %w", failed, errors.Join(failures...))
		sc.RecordError(err)
		return "", err
	}

	return formatResults(queries, results, failures), nil
}

func formatResults(queries []string, results [][]Result, failures []error) string {
	var b strings.Builder
	for i, q := range queries {
		fmt.Fprintf(&b, "Results for %q:\n", q)
		switch {
		case failures[i] != nil:
			fmt.Fprintf(&b, "  search failed: %v\n", failures[i])
		case len(results[i]) == 0:
			b.WriteString("  no results\n")
		default:
			for j, r := range results[i] {
				fmt.Fprintf(&b, "%d. %s - %s\n", j+1, r.Title, r.URL)
				if r.Snippet != "" {
					fmt.Fprintf(&b, "   %s\n", logger.Truncate(strings.TrimSpace(r.Snippet), maxSnippetLength))
				}
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

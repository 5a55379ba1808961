package retriever

import (
	"context"
	"sync"

	"basegraph.app/scribe/internal/model"
)

// Ledger records searches per invocation handle. It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Collected
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*Collected)}
}

// Record adds a query and its results under handle.
func (l *Ledger) Record(handle, query string, results []Result) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.entries[handle]
	if !ok {
		c = &Collected{}
		l.entries[handle] = c
	}
	c.Queries = append(c.Queries, query)
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		c.Citations = append(c.Citations, model.Citation{Title: r.Title, URL: r.URL})
	}
}

// Collect returns the deduplicated citations and queries for handle. An
// unknown handle yields an empty result.
func (l *Ledger) Collect(ctx context.Context, handle string) (Collected, error) {
	if err := ctx.Err(); err != nil {
		return Collected{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.entries[handle]
	if !ok {
		return Collected{}, nil
	}
	return Collected{
		Citations: DedupeCitations(c.Citations),
		Queries:   DedupeQueries(c.Queries),
	}, nil
}

// Forget drops everything recorded under handle.
func (l *Ledger) Forget(handle string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, handle)
}

// DedupeCitations keeps the first citation per URL, in order.
func DedupeCitations(in []model.Citation) []model.Citation {
	seen := make(map[string]bool, len(in))
	out := make([]model.Citation, 0, len(in))
	for _, c := range in {
		key := urlKey(c.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// DedupeQueries normalizes queries and keeps the first of each, in order.
func DedupeQueries(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		norm := NormalizeQuery(q)
		key := queryKey(norm)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, norm)
	}
	return out
}

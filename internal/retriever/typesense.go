package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"
)

// TypesenseConfig selects the collection holding indexed financial documents.
// Documents are expected to carry title, url and content fields.
type TypesenseConfig struct {
	URL        string
	APIKey     string
	Collection string
	QueryBy    string // defaults to "title,content"
}

type typesenseSearcher struct {
	client     *typesense.Client
	collection string
	queryBy    string
}

func NewTypesenseSearcher(cfg TypesenseConfig) (Searcher, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("typesense url and api key are required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("typesense collection is required")
	}
	queryBy := cfg.QueryBy
	if queryBy == "" {
		queryBy = "title,content"
	}

	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(10*time.Second),
	)

	return &typesenseSearcher{
		client:     client,
		collection: cfg.Collection,
		queryBy:    queryBy,
	}, nil
}

func (s *typesenseSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}

	start := time.Now()
	res, err := s.client.Collection(s.collection).Documents().Search(ctx, &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String(s.queryBy),
		PerPage: pointer.Int(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("typesense search: %w", err)
	}

	var results []Result
	if res.Hits != nil {
		for _, hit := range *res.Hits {
			if hit.Document == nil {
				continue
			}
			doc := *hit.Document
			results = append(results, Result{
				Title:   stringField(doc, "title"),
				URL:     stringField(doc, "url"),
				Snippet: stringField(doc, "content"),
			})
		}
	}

	slog.DebugContext(ctx, "typesense search completed",
		"collection", s.collection,
		"hits", len(results),
		"duration_ms", time.Since(start).Milliseconds())

	return results, nil
}

func stringField(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

// Package report turns a finished conversation into the files handed to the
// reader: the approved report text, a references section and the rendered
// markdown or PDF.
package report

import (
	"fmt"
	"net/url"
	"strings"

	"basegraph.app/scribe/internal/model"
	"basegraph.app/scribe/internal/retriever"
)

// DefaultQueryLinkTemplate links each search query to a public search page.
const DefaultQueryLinkTemplate = "https://www.bing.com/search?q=%s"

// References accumulates the sources consulted during a run. Websites are
// deduplicated by URL and queries by their normalized text, first seen wins.
type References struct {
	citations []model.Citation
	queries   []string
}

func NewReferences() *References {
	return &References{}
}

// Add merges what one invocation gathered.
func (r *References) Add(c retriever.Collected) {
	for _, cit := range c.Citations {
		r.AddCitation(cit.Title, cit.URL)
	}
	for _, q := range c.Queries {
		r.AddQuery(q)
	}
}

func (r *References) AddCitation(title, rawURL string) {
	if strings.TrimSpace(rawURL) == "" {
		return
	}
	if strings.TrimSpace(title) == "" {
		title = rawURL
	}
	r.citations = retriever.DedupeCitations(append(r.citations, model.Citation{Title: title, URL: rawURL}))
}

func (r *References) AddQuery(query string) {
	if retriever.NormalizeQuery(query) == "" {
		return
	}
	r.queries = retriever.DedupeQueries(append(r.queries, query))
}

func (r *References) Citations() []model.Citation {
	return append([]model.Citation(nil), r.citations...)
}

func (r *References) Queries() []string {
	return append([]string(nil), r.queries...)
}

func (r *References) Empty() bool {
	return len(r.citations) == 0 && len(r.queries) == 0
}

// Markdown renders the references section. linkTemplate is a fmt pattern with
// one %s for the escaped query; empty uses DefaultQueryLinkTemplate. Nothing
// recorded yields "".
func (r *References) Markdown(linkTemplate string) string {
	if r.Empty() {
		return ""
	}
	if linkTemplate == "" {
		linkTemplate = DefaultQueryLinkTemplate
	}

	var sb strings.Builder
	sb.WriteString("## References\n\n")

	if len(r.citations) > 0 {
		sb.WriteString("### Referenced Websites\n")
		for _, c := range r.citations {
			fmt.Fprintf(&sb, "- [%s](%s)\n", escapeLinkText(c.Title), c.URL)
		}
		sb.WriteString("\n")
	}

	if len(r.queries) > 0 {
		sb.WriteString("### Search Queries\n\n")
		for _, q := range r.queries {
			clean := strings.TrimSpace(strings.ReplaceAll(q, `"`, ""))
			link := fmt.Sprintf(linkTemplate, escapeQuery(clean))
			fmt.Fprintf(&sb, "- [%s](%s)\n", escapeLinkText(clean), link)
		}
	}

	return sb.String()
}

// escapeQuery percent-encodes spaces as %20 rather than '+'.
func escapeQuery(q string) string {
	return strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}

var linkTextEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

func escapeLinkText(s string) string {
	return linkTextEscaper.Replace(s)
}

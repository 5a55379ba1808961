package retriever

import (
	"net/url"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeQuery returns the literal search text. Search-API URLs are reduced
// to their q parameter; surrounding quotes and repeated whitespace go away.
func NormalizeQuery(raw string) string {
	q := strings.TrimSpace(raw)

	if strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://") {
		if u, err := url.Parse(q); err == nil {
			if v := u.Query().Get("q"); v != "" {
				q = v
			}
		}
	}

	q = strings.Trim(q, `"'“”`)
	q = whitespaceRun.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// queryKey is the dedupe key for a normalized query.
func queryKey(q string) string {
	return strings.ToLower(NormalizeQuery(q))
}

// urlKey is the dedupe key for a citation URL.
func urlKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

package report

import (
	"regexp"
	"strings"
)

var (
	openingFence = regexp.MustCompile("^```(?:markdown|md)?[ \t]*\r?\n")
	closingFence = regexp.MustCompile("\r?\n```[ \t]*$")
)

// StripCodeFence removes a code fence wrapped around the whole document.
// Fences inside the document are left alone.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !openingFence.MatchString(trimmed) || !closingFence.MatchString(trimmed) {
		return s
	}
	trimmed = openingFence.ReplaceAllString(trimmed, "")
	trimmed = closingFence.ReplaceAllString(trimmed, "")
	return strings.TrimSpace(trimmed)
}

// RemoveApprovalLines drops lines that consist of nothing but the approval
// phrase, in any case.
func RemoveApprovalLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "REPORT APPROVED") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Tidy applies the post-cleaning passes in order.
func Tidy(s string) string {
	return RemoveApprovalLines(StripCodeFence(s))
}

package brain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	approvalPhrase  = "report approved"
	bareDraftMarker = "draft complete for your review"

	// implicitResearchMessages and implicitResearchLength trigger research
	// completion for a researcher that never says so explicitly.
	implicitResearchMessages = 3
	implicitResearchLength   = 1000
)

var (
	researchCompletePhrases = []string{"research complete", "findings complete", "here are the financial results"}
	draftMarkers            = []string{"draft complete", "for your review"}
	requiredSections        = []string{"executive summary", "financial performance", "outlook and guidance"}
	approvalNegations       = []string{"cannot", "unable to", "not approve", "cannot issue", "cannot provide"}
	revisionKeywords        = []string{"revise", "not approved", "requires revision", "needs changes", "update", "modify", "change", "fix", "improve"}
	researchNeedPhrases     = []string{"need more data", "additional information", "missing details", "research"}

	// negatedApproval matches the approval phrase directly qualified by a
	// negating word, e.g. `not yet REPORT APPROVED` or `no "REPORT APPROVED"`.
	negatedApproval = regexp.MustCompile(`\b(?:not(?:\s+yet)?|no)\s*["'“”‘’]?\s*report approved`)
)

// Signals are the booleans extracted from a single message.
type Signals struct {
	ResearchComplete  bool
	DraftComplete     bool
	RevisionRequested bool
	// ApprovalPhrase is set when the approval phrase appears unqualified.
	// Approved additionally requires that no refusal wording is present.
	ApprovalPhrase bool
	Approved       bool
}

// ClassifyInput is what a Classifier sees for the latest message.
type ClassifyInput struct {
	Text               string
	ResearcherMessages int
}

// Classifier turns participant text into phase signals. The state machine
// depends only on this interface.
type Classifier interface {
	Classify(in ClassifyInput) Signals
	NeedsMoreResearch(recent []string) bool
}

// KeywordClassifier is the phrase-matching Classifier.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(in ClassifyInput) Signals {
	return Signals{
		ResearchComplete:  DetectResearchComplete(in.Text, in.ResearcherMessages),
		DraftComplete:     DetectDraftComplete(in.Text),
		RevisionRequested: DetectRevisionRequest(in.Text),
		ApprovalPhrase:    HasApprovalPhrase(in.Text),
		Approved:          DetectApproval(in.Text),
	}
}

func (KeywordClassifier) NeedsMoreResearch(recent []string) bool {
	return DetectAdditionalResearchNeed(recent)
}

// DetectResearchComplete reports an explicit completion phrase, or a long
// message from a researcher that has already spoken at least three times.
func DetectResearchComplete(text string, researcherMessages int) bool {
	if containsAny(strings.ToLower(text), researchCompletePhrases) {
		return true
	}
	return researcherMessages >= implicitResearchMessages &&
		utf8.RuneCountInString(text) > implicitResearchLength
}

// DetectDraftComplete requires a review marker and all three report sections.
// A message that is only the marker does not count.
func DetectDraftComplete(text string) bool {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == bareDraftMarker {
		return false
	}
	if !containsAny(lower, draftMarkers) {
		return false
	}
	return containsAll(lower, requiredSections)
}

// HasApprovalPhrase reports whether "report approved" appears in a form that
// is not directly negated. It compares plain occurrences with negated ones,
// so "not yet REPORT APPROVED" alone does not count.
func HasApprovalPhrase(text string) bool {
	lower := strings.ToLower(text)
	total := strings.Count(lower, approvalPhrase)
	if total == 0 {
		return false
	}
	negated := len(negatedApproval.FindAllStringIndex(lower, -1))
	return total > negated
}

// DetectApproval is HasApprovalPhrase guarded against refusals such as
// "cannot issue REPORT APPROVED".
func DetectApproval(text string) bool {
	if !HasApprovalPhrase(text) {
		return false
	}
	return !containsAny(strings.ToLower(text), approvalNegations)
}

// DetectRevisionRequest matches a broad keyword list. Ordinary words such as
// "change" or "update" trigger it. An approval short-circuits it unless the
// text also says "not approved".
func DetectRevisionRequest(text string) bool {
	lower := strings.ToLower(text)
	if HasApprovalPhrase(text) && !strings.Contains(lower, "not approved") {
		return false
	}
	return containsAny(lower, revisionKeywords)
}

// DetectAdditionalResearchNeed checks the last three texts for wording that
// asks for more information.
func DetectAdditionalResearchNeed(recent []string) bool {
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for _, text := range recent {
		if containsAny(strings.ToLower(text), researchNeedPhrases) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

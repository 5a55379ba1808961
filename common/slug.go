package common

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmptyStem = errors.New("file stem cannot be empty")
	nonStemChars = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// FileStem turns a display name such as a company into a file-name-safe stem.
// Case is kept; runs of other characters collapse to a single underscore.
func FileStem(input, fallback string) (string, error) {
	stem := fileStem(input)
	if stem == "" {
		stem = fileStem(fallback)
	}
	if stem == "" {
		return "", ErrEmptyStem
	}
	return stem, nil
}

func fileStem(s string) string {
	stem := nonStemChars.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(stem, "_")
}

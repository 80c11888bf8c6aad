// Package tasks turns a normalized transcript into task titles.
package tasks

import (
	"regexp"
	"strings"
)

var (
	splitter     = regexp.MustCompile(`(?i)\s*(?:,|;|&|\band\b|\bthen\b|\bor\b)\s*`)
	andSplitter  = regexp.MustCompile(`(?i)\s*\band\b\s*`)
	hasDelimiter = regexp.MustCompile(`(?i)(?:,|;|&|\band\b|\bthen\b|\bor\b)`)
)

// Segment splits a transcript into candidate task titles on , ; & and the
// standalone words "and", "then" and "or". Parts are trimmed and empty parts
// are dropped.
func Segment(text string) []string {
	parts := splitParts(splitter, text)
	if len(parts) == 1 {
		if alt := splitParts(andSplitter, text); len(alt) >= 2 {
			return alt
		}
	}
	return parts
}

// HasExplicitSplitter reports whether text contains any task delimiter.
// It is a property of the source text, independent of how many parts
// Segment produced.
func HasExplicitSplitter(text string) bool {
	return hasDelimiter.MatchString(text)
}

func splitParts(re *regexp.Regexp, text string) []string {
	raw := re.Split(text, -1)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

package transcript

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var spaceBeforePunct = regexp.MustCompile(`\s+([,.;?!])`)

// phraseWindows are the repeated-phrase lengths checked, longest first.
var phraseWindows = [...]int{3, 2}

// Normalize cleans a transcript: whitespace is collapsed, case-insensitive
// adjacent duplicate words and immediately repeated 2- and 3-word phrases are
// removed, and spaces before , . ; ? ! are dropped.
//
// Normalize is idempotent: the cleanup passes run until the text stops changing.
func Normalize(text string) string {
	fold := cases.Fold()
	out := strings.Join(strings.Fields(text), " ")
	for {
		next := normalizeOnce(out, fold)
		if next == out {
			return out
		}
		out = next
	}
}

func normalizeOnce(text string, fold cases.Caser) string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return ""
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = fold.String(t)
	}

	tokens, keys = dropAdjacentDuplicates(tokens, keys)
	tokens, keys = collapsePhrases(tokens, keys)
	tokens, _ = dropAdjacentDuplicates(tokens, keys)

	return spaceBeforePunct.ReplaceAllString(strings.Join(tokens, " "), "$1")
}

// dropAdjacentDuplicates removes a token when it folds equal to the last kept token.
func dropAdjacentDuplicates(tokens, keys []string) ([]string, []string) {
	outT := make([]string, 0, len(tokens))
	outK := make([]string, 0, len(keys))
	for i, k := range keys {
		if n := len(outK); n > 0 && outK[n-1] == k {
			continue
		}
		outT = append(outT, tokens[i])
		outK = append(outK, k)
	}
	return outT, outK
}

// collapsePhrases drops the second copy of a phrase that is immediately repeated.
func collapsePhrases(tokens, keys []string) ([]string, []string) {
	outT := make([]string, 0, len(tokens))
	outK := make([]string, 0, len(keys))
	for i := 0; i < len(tokens); {
		matched := false
		for _, n := range phraseWindows {
			if i+2*n > len(tokens) || !equalKeys(keys[i:i+n], keys[i+n:i+2*n]) {
				continue
			}
			outT = append(outT, tokens[i:i+n]...)
			outK = append(outK, keys[i:i+n]...)
			i += 2 * n
			matched = true
			break
		}
		if !matched {
			outT = append(outT, tokens[i])
			outK = append(outK, keys[i])
			i++
		}
	}
	return outT, outK
}

func equalKeys(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package tasks

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

const (
	// SimilarityThreshold is the shared-word ratio at which two titles are
	// treated as variants of each other.
	SimilarityThreshold = 0.6

	minTitleLength = 2
)

// Dedupe removes duplicate and near-duplicate titles.
//
// Without an explicit splitter in the source text, several candidates are
// taken to be recognizer echo of one utterance and collapse to the longest.
// Otherwise similar titles collapse pairwise to the longer one, titles under
// two characters are dropped and the first-kept order is preserved.
func Dedupe(candidates []string, hadExplicitSplitter bool) []string {
	if len(candidates) > 1 && !hadExplicitSplitter {
		return collapse(candidates)
	}

	fold := cases.Fold()
	type kept struct {
		title string
		key   string
		words []string
	}
	var out []kept

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if charLen(c) < minTitleLength {
			continue
		}
		cur := kept{title: c, key: fold.String(c)}
		cur.words = strings.Fields(cur.key)

		first := -1
		var group []kept
		rest := make([]kept, 0, len(out)+1)
		for _, k := range out {
			if k.key == cur.key || similar(k.words, cur.words) {
				if first < 0 {
					first = len(rest)
				}
				group = append(group, k)
				continue
			}
			rest = append(rest, k)
		}
		if first < 0 {
			out = append(out, cur)
			continue
		}
		group = append(group, cur)
		winner := group[0]
		for _, g := range group[1:] {
			if charLen(g.title) > charLen(winner.title) {
				winner = g
			}
		}
		rest = append(rest, kept{})
		copy(rest[first+1:], rest[first:])
		rest[first] = winner
		out = rest
	}

	titles := make([]string, 0, len(out))
	for _, k := range out {
		titles = append(titles, k.title)
	}
	if len(titles) > 1 && !hadExplicitSplitter {
		return collapse(titles)
	}
	return titles
}

// Similar reports whether two titles share enough words to be variants of
// the same task.
func Similar(a, b string) bool {
	fold := cases.Fold()
	return similar(strings.Fields(fold.String(a)), strings.Fields(fold.String(b)))
}

// similar compares folded word lists: the share of the shorter list's words
// found in the longer one must reach SimilarityThreshold.
func similar(a, b []string) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(longer))
	for _, w := range longer {
		set[w] = struct{}{}
	}
	shared := 0
	for _, w := range shorter {
		if _, ok := set[w]; ok {
			shared++
		}
	}
	return float64(shared)/float64(len(shorter)) >= SimilarityThreshold
}

// collapse reduces titles to the single longest one; ties keep the first.
func collapse(titles []string) []string {
	best := strings.TrimSpace(titles[0])
	for _, t := range titles[1:] {
		if t = strings.TrimSpace(t); charLen(t) > charLen(best) {
			best = t
		}
	}
	if charLen(best) < minTitleLength {
		return nil
	}
	return []string{best}
}

func charLen(s string) int { return utf8.RuneCountInString(s) }

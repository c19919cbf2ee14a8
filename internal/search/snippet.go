package search

import (
	"html"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"cyberbook/internal/adapter/analyzer"
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
	ellipsis  = "…"
)

// snippeter cuts a highlighted excerpt around the first query term found
// in a document. Matching is diacritic and case insensitive and anchored at
// word starts; a match is highlighted to the end of its word, so a stem
// marks the whole inflected word.
type snippeter struct {
	before int
	after  int
}

func (s snippeter) make(content string, terms []string) string {
	runes := []rune(content)
	folded := make([]rune, len(runes))
	for i, r := range runes {
		folded[i] = analyzer.FoldRune(r)
	}
	needles := prepareNeedles(terms)

	pos := -1
	for i := range folded {
		if _, ok := matchAt(folded, i, needles); ok {
			pos = i
			break
		}
	}

	if pos < 0 {
		end := min(len(runes), s.before+s.after)
		out := html.EscapeString(string(runes[:end]))
		if end < len(runes) {
			out += ellipsis
		}
		return out
	}

	start := max(0, pos-s.before)
	end := min(len(runes), pos+s.after)

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	for i := start; i < end; {
		if n, ok := matchAt(folded, i, needles); ok {
			j := min(i+n, end)
			for j < end && isWordRune(runes[j]) {
				j++
			}
			b.WriteString(markOpen)
			b.WriteString(html.EscapeString(string(runes[i:j])))
			b.WriteString(markClose)
			i = j
			continue
		}
		b.WriteString(html.EscapeString(string(runes[i])))
		i++
	}
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

// prepareNeedles dedupes terms and orders them longest first.
func prepareNeedles(terms []string) [][]rune {
	seen := make(map[string]bool, len(terms))
	needles := make([][]rune, 0, len(terms))
	for _, t := range terms {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		needles = append(needles, []rune(t))
	}
	sort.SliceStable(needles, func(i, j int) bool { return len(needles[i]) > len(needles[j]) })
	return needles
}

// matchAt reports whether a needle starts a word at folded[i].
func matchAt(folded []rune, i int, needles [][]rune) (int, bool) {
	if i > 0 && isWordRune(folded[i-1]) {
		return 0, false
	}
	for _, n := range needles {
		if i+len(n) > len(folded) {
			continue
		}
		match := true
		for k, r := range n {
			if folded[i+k] != r {
				match = false
				break
			}
		}
		if match {
			return len(n), true
		}
	}
	return 0, false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// truncateRunes keeps at most n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

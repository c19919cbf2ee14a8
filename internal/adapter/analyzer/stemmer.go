package analyzer

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// minStemLength is the shortest stem a suffix may be stripped down to.
const minStemLength = 3

type suffixRule struct {
	suffix      string
	replacement string
}

// Suffixes operate on folded words, so Portuguese endings appear without accents.
var suffixRules = []suffixRule{
	// Portuguese
	{"amentos", ""}, {"imentos", ""}, {"amento", ""}, {"imento", ""},
	{"mente", ""}, {"idades", ""}, {"idade", ""}, {"ismos", ""}, {"ismo", ""},
	{"istas", ""}, {"ista", ""}, {"acoes", ""}, {"acao", ""},
	{"coes", ""}, {"cao", ""}, {"avel", ""}, {"ivel", ""},
	{"osos", ""}, {"osas", ""}, {"oso", ""}, {"osa", ""},
	{"oes", ""}, {"ais", "al"}, {"eis", "el"},
	// English
	{"ational", "ate"}, {"ations", ""}, {"ation", ""}, {"ities", ""}, {"ity", ""},
	{"ingly", ""}, {"ings", ""}, {"ing", ""}, {"edly", ""}, {"ed", ""},
	{"ness", ""}, {"ments", ""}, {"ment", ""}, {"ions", ""}, {"ion", ""},
	{"ies", "i"}, {"ied", "i"}, {"ers", ""}, {"er", ""}, {"ly", ""},
	// shared plural and vowel endings
	{"es", ""}, {"as", ""}, {"os", ""}, {"s", ""},
	{"a", ""}, {"o", ""}, {"e", ""}, {"y", "i"},
}

// LightStemmer strips one inflectional suffix from Portuguese and English words.
// It is deliberately shallow: it conflates plurals and common derivations
// without attempting full morphological analysis.
type LightStemmer struct {
	rules []suffixRule
}

// NewLightStemmer creates a stemmer with rules ordered longest suffix first.
func NewLightStemmer() *LightStemmer {
	rules := make([]suffixRule, len(suffixRules))
	copy(rules, suffixRules)
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].suffix) > len(rules[j].suffix)
	})
	return &LightStemmer{rules: rules}
}

// Stem returns the stem of a folded, lowercase word.
func (s *LightStemmer) Stem(word string) string {
	if utf8.RuneCountInString(word) <= minStemLength || isNumeric(word) {
		return word
	}

	for _, rule := range s.rules {
		if !strings.HasSuffix(word, rule.suffix) {
			continue
		}
		if rule.suffix == "s" && protectedPlural(word) {
			continue
		}
		stem := word[:len(word)-len(rule.suffix)]
		if utf8.RuneCountInString(stem) < minStemLength {
			continue
		}
		return stem + rule.replacement
	}
	return word
}

// protectedPlural reports words whose trailing s is not a plural marker.
func protectedPlural(word string) bool {
	return strings.HasSuffix(word, "ss") ||
		strings.HasSuffix(word, "us") ||
		strings.HasSuffix(word, "is")
}

func isNumeric(word string) bool {
	for i := 0; i < len(word); i++ {
		if word[i] < '0' || word[i] > '9' {
			return false
		}
	}
	return true
}

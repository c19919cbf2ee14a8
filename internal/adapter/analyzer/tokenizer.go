package analyzer

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/bbalet/stopwords"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"cyberbook/internal/domain"
)

// Languages whose stopword lists are applied. The book is bilingual.
var defaultLanguages = []string{"pt", "en"}

// Tokenizer splits text into folded, stopword-free, optionally stemmed terms.
type Tokenizer struct {
	stemmer   *LightStemmer
	useStem   bool
	languages []string
	stopCache sync.Map // word -> bool
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(useStemming bool) *Tokenizer {
	var stemmer *LightStemmer
	if useStemming {
		stemmer = NewLightStemmer()
	}
	return &Tokenizer{
		stemmer:   stemmer,
		useStem:   useStemming,
		languages: defaultLanguages,
	}
}

// Tokenize splits text into stemmed tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	terms := t.Analyze(text)
	tokens := make([]string, len(terms))
	for i, term := range terms {
		tokens[i] = term.Stem
	}
	return tokens
}

// Analyze splits text into terms carrying both the folded word and its stem.
func (t *Tokenizer) Analyze(text string) []domain.Term {
	words := splitWords(text)
	terms := make([]domain.Term, 0, len(words))

	for _, word := range words {
		lower := strings.ToLower(word)
		if utf8.RuneCountInString(lower) < 2 {
			continue
		}
		folded := Fold(lower)
		if t.isStopword(lower) || (folded != lower && t.isStopword(folded)) {
			continue
		}
		stem := folded
		if t.useStem && t.stemmer != nil {
			stem = t.stemmer.Stem(folded)
		}
		terms = append(terms, domain.Term{Surface: folded, Stem: stem})
	}

	return terms
}

// Fold lowercases s and strips diacritics.
func (t *Tokenizer) Fold(s string) string {
	return Fold(s)
}

// isStopword checks word against every configured language list.
func (t *Tokenizer) isStopword(word string) bool {
	if v, ok := t.stopCache.Load(word); ok {
		return v.(bool)
	}
	stop := false
	if hasLetter(word) {
		for _, lang := range t.languages {
			// CleanString blanks out stopwords and keeps everything else.
			if strings.TrimSpace(stopwords.CleanString(word, lang, false)) == "" {
				stop = true
				break
			}
		}
	}
	t.stopCache.Store(word, stop)
	return stop
}

// Fold lowercases s and removes combining marks, so "Injeção" and "injecao" compare equal.
func Fold(s string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// FoldRune folds a single rune the way Fold folds strings. It never changes
// the rune count, which keeps folded text aligned with the original.
func FoldRune(r rune) rune {
	if r < utf8.RuneSelf {
		return unicode.ToLower(r)
	}
	for _, c := range norm.NFD.String(string(r)) {
		if !unicode.Is(unicode.Mn, c) {
			return unicode.ToLower(c)
		}
	}
	return unicode.ToLower(r)
}

// splitWords splits text into words using unicode letter and digit classes.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

package port

import "cyberbook/internal/domain"

// Analyzer turns text into index terms. Indexing and querying must share one Analyzer.
type Analyzer interface {
	// Tokenize returns the stemmed tokens of text in order of appearance.
	Tokenize(text string) []string

	// Analyze returns surface and stem for every kept word of text.
	Analyze(text string) []domain.Term

	// Fold lowercases s and strips diacritics without stemming.
	Fold(s string) string
}

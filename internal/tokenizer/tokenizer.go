// Package tokenizer turns a raw search query into the normalized terms used
// as keys of the index posting tables. It lower-cases input, splits on
// whitespace and punctuation, drops short words and stop-words, and can
// optionally apply the Porter stemmer used when the index was built.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// DefaultMinLength is the shortest term kept by the default tokenizer.
const DefaultMinLength = 3

// stopWords is the English stop-word list the documentation indexer skips
// when building its term table.
var stopWords = map[string]struct{}{
	"a": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "if": {}, "in": {}, "into": {},
	"is": {}, "it": {}, "near": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "or": {}, "such": {}, "that": {}, "the": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "will": {}, "with": {},
}

// Tokenizer normalizes text into search terms. It is immutable and safe for
// concurrent use.
type Tokenizer struct {
	minLength int
	stopWords map[string]struct{}
	stem      bool
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithMinLength drops terms shorter than n runes.
func WithMinLength(n int) Option {
	return func(t *Tokenizer) {
		if n > 0 {
			t.minLength = n
		}
	}
}

// WithStopWords replaces the built-in stop-word list.
func WithStopWords(words []string) Option {
	return func(t *Tokenizer) {
		t.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			t.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// WithStemming enables Porter stemming of every term. Stemmed output is not
// guaranteed to be a fixed point of a second tokenization.
func WithStemming(enabled bool) Option {
	return func(t *Tokenizer) { t.stem = enabled }
}

// New returns a Tokenizer with the given options applied over the defaults.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		minLength: DefaultMinLength,
		stopWords: stopWords,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var defaultTokenizer = New()

// Tokenize normalizes text with the default tokenizer.
func Tokenize(text string) []string {
	return defaultTokenizer.Tokenize(text)
}

// IsStopWord reports whether word is in the built-in stop-word list.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// Tokenize splits text into normalized terms in order of first appearance,
// without duplicates. It returns an empty, non-nil slice when nothing
// searchable remains.
func (t *Tokenizer) Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	terms := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		term, ok := t.normalize(word)
		if !ok {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

func (t *Tokenizer) normalize(word string) (string, bool) {
	if utf8.RuneCountInString(word) < t.minLength {
		return "", false
	}
	if _, stop := t.stopWords[word]; stop {
		return "", false
	}
	if !t.stem {
		return word, true
	}
	stemmed := porterstemmer.StemString(word)
	if utf8.RuneCountInString(stemmed) < t.minLength {
		// keep the surface form rather than lose the word entirely
		return word, true
	}
	return stemmed, true
}

// isSeparator treats everything but letters, digits and underscores as a
// word boundary so identifiers such as build_usd survive as one term.
func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

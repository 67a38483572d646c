package parser

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
)

// QueryPlan is the parsed form of a raw query string.
type QueryPlan struct {
	RawQuery     string
	Terms        []string
	ExcludeTerms []string
	// ObjectQuery is the literal text matched against API object names; it is
	// the raw query minus any exclusion words, and empty when that text has
	// no letter or digit.
	ObjectQuery string
}

// notKeyword excludes the word after it. Only the upper-case form counts;
// a lower-case "not" is an ordinary word.
const notKeyword = "NOT"

// Empty reports whether the plan has nothing to search for.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0 && p.ObjectQuery == ""
}

// Parse splits query into required and excluded terms. A word prefixed with
// "-", or following the keyword NOT, is excluded. Everything else is
// required; the search is always a conjunction of the required terms.
func Parse(query string, tok *tokenizer.Tokenizer) *QueryPlan {
	if tok == nil {
		tok = tokenizer.New()
	}
	plan := &QueryPlan{
		RawQuery:     query,
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	words := strings.Fields(query)
	included := make([]string, 0, len(words))
	excluded := make([]string, 0)
	excludeNext := false
	for _, word := range words {
		switch {
		case word == notKeyword:
			excludeNext = true
			continue
		case excludeNext:
			excluded = append(excluded, word)
			excludeNext = false
			continue
		case len(word) > 1 && word[0] == '-':
			excluded = append(excluded, word[1:])
			continue
		}
		included = append(included, word)
	}
	plan.Terms = tok.Tokenize(strings.Join(included, " "))
	plan.ExcludeTerms = tok.Tokenize(strings.Join(excluded, " "))
	plan.ExcludeTerms = without(plan.ExcludeTerms, plan.Terms)
	if objectQuery := strings.Join(included, " "); strings.ContainsFunc(objectQuery, isWordRune) {
		plan.ObjectQuery = objectQuery
	}
	return plan
}

// Canonical folds query to the form Parse treats identically: whitespace
// runs become one space and every word except the NOT keyword is
// lower-cased. Queries with equal canonical forms return the same results.
func Canonical(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		if w != notKeyword {
			words[i] = strings.ToLower(w)
		}
	}
	return strings.Join(words, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// without drops from terms anything also present in required.
func without(terms, required []string) []string {
	if len(terms) == 0 || len(required) == 0 {
		return terms
	}
	req := make(map[string]struct{}, len(required))
	for _, r := range required {
		req[r] = struct{}{}
	}
	out := terms[:0]
	for _, t := range terms {
		if _, ok := req[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

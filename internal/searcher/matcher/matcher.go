// Package matcher selects the documents and API objects that satisfy a
// query. Term matching is a strict conjunction over body and title postings;
// object matching is a case-insensitive substring test on symbol names.
package matcher

import (
	"sort"
	"strings"
	"unicode"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
)

// MatchTerms returns the documents containing every term in their body or
// title. A term without postings empties the result, as does an empty term
// list.
func MatchTerms(idx *index.Index, terms []string) *roaring.Bitmap {
	if idx == nil || len(terms) == 0 {
		return roaring.New()
	}
	sets := make([]*roaring.Bitmap, 0, len(terms))
	for _, term := range terms {
		bm := idx.Postings(term)
		if bm.IsEmpty() {
			return roaring.New()
		}
		sets = append(sets, bm)
	}
	// intersect smallest first so the working set only shrinks
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].GetCardinality() < sets[j].GetCardinality()
	})
	result := sets[0]
	for _, bm := range sets[1:] {
		result.And(bm)
		if result.IsEmpty() {
			break
		}
	}
	return result
}

// Exclude removes from set every document containing any of terms in body
// or title, and returns set.
func Exclude(idx *index.Index, set *roaring.Bitmap, terms []string) *roaring.Bitmap {
	if idx == nil {
		return set
	}
	for _, term := range terms {
		if set.IsEmpty() {
			break
		}
		set.AndNot(idx.Postings(term))
	}
	return set
}

// Restrict intersects set with filter in place. A nil filter leaves set
// untouched.
func Restrict(set, filter *roaring.Bitmap) *roaring.Bitmap {
	if filter == nil {
		return set
	}
	set.And(filter)
	return set
}

// ObjectMatch is an object whose name contains the query.
type ObjectMatch struct {
	Object index.ObjectRecord `json:"object"`
	// Exact is set when the query equals the object's leaf name, label or
	// qualified name, ignoring case.
	Exact bool `json:"exact"`
}

// MatchObjects returns the objects whose label or qualified name contains
// query, ignoring case. Exact matches come first, then higher priority, then
// qualified name. A query without a letter or digit matches nothing.
func MatchObjects(idx *index.Index, query string) []ObjectMatch {
	q := strings.ToLower(strings.TrimSpace(query))
	matches := make([]ObjectMatch, 0)
	if idx == nil || !strings.ContainsFunc(q, isWordRune) {
		return matches
	}
	idx.ScanObjects(func(rec *index.ObjectRecord, name, label string) bool {
		if !strings.Contains(name, q) && !strings.Contains(label, q) {
			return true
		}
		exact := q == name || q == label || q == strings.ToLower(rec.Leaf)
		matches = append(matches, ObjectMatch{Object: *rec, Exact: exact})
		return true
	})
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Exact != b.Exact {
			return a.Exact
		}
		if a.Object.Priority != b.Object.Priority {
			return a.Object.Priority > b.Object.Priority
		}
		if a.Object.Name != b.Object.Name {
			return a.Object.Name < b.Object.Name
		}
		return a.Object.DocID < b.Object.DocID
	})
	return matches
}

// RestrictObjects keeps only the matches whose owning document is in filter.
func RestrictObjects(matches []ObjectMatch, filter *roaring.Bitmap) []ObjectMatch {
	if filter == nil {
		return matches
	}
	out := matches[:0]
	for _, m := range matches {
		if filter.Contains(uint32(m.Object.DocID)) {
			out = append(out, m)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

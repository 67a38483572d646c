package ranker

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/matcher"
)

const (
	KindObject   = "object"
	KindDocument = "document"
)

// Weights are the scoring constants. The defaults are a presentation policy
// rather than values recovered from any index artifact.
type Weights struct {
	Title         int            `json:"title"`
	Body          int            `json:"body"`
	ObjectBase    int            `json:"objectBase"`
	ObjectExact   int            `json:"objectExact"`
	ObjectPartial int            `json:"objectPartial"`
	TypeBoost     map[string]int `json:"typeBoost,omitempty"`
}

func DefaultWeights() Weights {
	return Weights{
		Title:         10,
		Body:          1,
		ObjectBase:    100,
		ObjectExact:   11,
		ObjectPartial: 6,
	}
}

type SearchResult struct {
	Kind          string              `json:"kind"`
	DocumentID    int                 `json:"documentId"`
	Document      string              `json:"document"`
	Title         string              `json:"title"`
	Anchor        string              `json:"anchor,omitempty"`
	Score         int                 `json:"score"`
	MatchedObject *index.ObjectRecord `json:"matchedObject,omitempty"`
}

// Score builds one result per object match and per matched document, in no
// particular order. It reads idx but never modifies it.
func Score(idx *index.Index, terms []string, docs *roaring.Bitmap, objects []matcher.ObjectMatch, w Weights) []SearchResult {
	size := len(objects)
	if docs != nil {
		size += int(docs.GetCardinality())
	}
	results := make([]SearchResult, 0, size)
	for i := range objects {
		m := objects[i]
		obj := m.Object
		doc, _ := idx.Document(obj.DocID)
		score := w.ObjectBase + obj.Priority + w.TypeBoost[obj.Type]
		if m.Exact {
			score += w.ObjectExact
		} else {
			score += w.ObjectPartial
		}
		results = append(results, SearchResult{
			Kind:          KindObject,
			DocumentID:    obj.DocID,
			Document:      doc.Name,
			Title:         obj.Name,
			Anchor:        obj.Anchor,
			Score:         score,
			MatchedObject: &obj,
		})
	}
	if docs == nil {
		return results
	}
	it := docs.Iterator()
	for it.HasNext() {
		id := int(it.Next())
		doc, ok := idx.Document(id)
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Kind:       KindDocument,
			DocumentID: id,
			Document:   doc.Name,
			Title:      doc.Title,
			Score:      documentScore(idx, terms, id, w),
		})
	}
	return results
}

// documentScore credits each term once: the title weight when the term is in
// the document's title postings, otherwise the body weight when it is in the
// body postings.
func documentScore(idx *index.Index, terms []string, doc int, w Weights) int {
	score := 0
	for _, term := range terms {
		switch {
		case idx.InTitle(term, doc):
			score += w.Title
		case idx.InBody(term, doc):
			score += w.Body
		}
	}
	return score
}

// Rank scores the matches and returns them in result order.
func Rank(idx *index.Index, terms []string, docs *roaring.Bitmap, objects []matcher.ObjectMatch, w Weights) []SearchResult {
	results := Score(idx, terms, docs, objects, w)
	sort.Slice(results, func(i, j int) bool {
		return Less(results[i], results[j])
	})
	return results
}

// Less is the result order: objects before documents, then higher score,
// then name ascending. Objects are named by their qualified name and
// documents by their document name.
func Less(a, b SearchResult) bool {
	if a.Kind != b.Kind {
		return a.Kind == KindObject
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	an, bn := sortName(a), sortName(b)
	if an != bn {
		return an < bn
	}
	return a.DocumentID < b.DocumentID
}

func sortName(r SearchResult) string {
	if r.MatchedObject != nil {
		return r.MatchedObject.Name
	}
	return r.Document
}

// TopK truncates ranked results to limit. A limit of zero or less keeps
// everything.
func TopK(results []SearchResult, limit int) []SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

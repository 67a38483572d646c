package merger

import (
	"container/heap"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
)

// TopK selects the best limit results in ranker order using a bounded heap,
// so a broad query does not sort every matching document. A limit of zero or
// less returns all results fully sorted.
func TopK(results []ranker.SearchResult, limit int) []ranker.SearchResult {
	if limit <= 0 || limit >= len(results) {
		out := make([]ranker.SearchResult, len(results))
		copy(out, results)
		sort.Slice(out, func(i, j int) bool { return ranker.Less(out[i], out[j]) })
		return out
	}
	h := &resultHeap{}
	heap.Init(h)
	for _, r := range results {
		heap.Push(h, r)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	out := make([]ranker.SearchResult, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ranker.SearchResult)
	}
	return out
}

// Merge combines several ranked lists, as produced for separate document
// filters, into one list of at most limit results.
func Merge(lists [][]ranker.SearchResult, limit int) []ranker.SearchResult {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	all := make([]ranker.SearchResult, 0, total)
	seen := make(map[resultKey]struct{}, total)
	for _, l := range lists {
		for _, r := range l {
			k := keyOf(r)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			all = append(all, r)
		}
	}
	return TopK(all, limit)
}

type resultKey struct {
	kind string
	doc  int
	name string
}

func keyOf(r ranker.SearchResult) resultKey {
	k := resultKey{kind: r.Kind, doc: r.DocumentID}
	if r.MatchedObject != nil {
		k.name = r.MatchedObject.Name
	}
	return k
}

// resultHeap is a min-heap on ranker order: the root is the worst result kept.
type resultHeap []ranker.SearchResult

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool { return ranker.Less(h[j], h[i]) }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.SearchResult))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

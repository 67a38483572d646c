package index

import "sync/atomic"

// Holder publishes the current Index. Readers take one snapshot per query
// with Load; writers replace the whole index with Swap, so a query never
// observes a partially loaded index.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder returns a Holder publishing idx, which may be nil.
func NewHolder(idx *Index) *Holder {
	h := &Holder{}
	if idx != nil {
		h.current.Store(idx)
	}
	return h
}

// Load returns the current index, or nil before the first successful load.
func (h *Holder) Load() *Index {
	return h.current.Load()
}

// Swap publishes idx and returns the index it replaced.
func (h *Holder) Swap(idx *Index) *Index {
	return h.current.Swap(idx)
}

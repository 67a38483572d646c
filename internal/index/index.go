// Package index holds the immutable, in-memory form of a documentation search
// index: documents, body and title posting lists, and the API object table.
//
// An Index is built once by Load and never mutated afterwards, so any number
// of goroutines may query it concurrently without locking. Replacing the
// index at runtime is done by swapping a pointer in a Holder.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Index is a frozen search index.
type Index struct {
	docs       []Document
	byName     map[string]int
	terms      map[string]*roaring.Bitmap
	titleTerms map[string]*roaring.Bitmap
	objects    []ObjectRecord
	objKeys    []objectKey
	byLeaf     map[string][]int
	version    string
	loadedAt   time.Time
	mismatches int
}

// objectKey caches the lower-cased forms matched by substring queries.
type objectKey struct {
	name  string
	label string
}

type loadOptions struct {
	strictTitles bool
	version      string
}

// Option customizes Load.
type Option func(*loadOptions)

// WithStrictTitles rejects indexes whose title postings name a document whose
// title does not contain the term. Sphinx builds index section headings as
// title terms, so real artifacts usually fail this check; it is off by
// default and violations are only counted in Stats.
func WithStrictTitles() Option {
	return func(o *loadOptions) { o.strictTitles = true }
}

// WithVersion overrides the content-derived version string.
func WithVersion(v string) Option {
	return func(o *loadOptions) { o.version = v }
}

// Load validates raw and builds an Index from it. On any structural problem
// it returns an error wrapping errors.ErrMalformedIndex and a nil Index.
func Load(raw *RawIndex, opts ...Option) (*Index, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	if raw == nil {
		return nil, apperrors.Malformedf("no index data")
	}
	if raw.DocNames == nil {
		return nil, apperrors.Malformedf("document name table is missing")
	}
	if raw.Terms == nil {
		return nil, apperrors.Malformedf("term table is missing")
	}
	if raw.Objects == nil {
		return nil, apperrors.Malformedf("object table is missing")
	}
	n := len(raw.DocNames)
	if raw.Titles != nil && len(raw.Titles) != n {
		return nil, apperrors.Malformedf("%d titles for %d documents", len(raw.Titles), n)
	}
	if len(raw.Filenames) != 0 && len(raw.Filenames) != n {
		return nil, apperrors.Malformedf("%d filenames for %d documents", len(raw.Filenames), n)
	}

	idx := &Index{
		docs:       make([]Document, n),
		byName:     make(map[string]int, n),
		terms:      make(map[string]*roaring.Bitmap, len(raw.Terms)),
		titleTerms: make(map[string]*roaring.Bitmap, len(raw.TitleTerms)),
		byLeaf:     make(map[string][]int),
		loadedAt:   time.Now(),
	}
	for id, name := range raw.DocNames {
		if name == "" {
			return nil, apperrors.Malformedf("document %d has an empty name", id)
		}
		if prev, dup := idx.byName[name]; dup {
			return nil, apperrors.Malformedf("document name %q used by ids %d and %d", name, prev, id)
		}
		idx.byName[name] = id
		doc := Document{ID: id, Name: name, Title: name}
		if raw.Titles != nil {
			doc.Title = raw.Titles[id]
		}
		if len(raw.Filenames) == n {
			doc.Filename = raw.Filenames[id]
		}
		idx.docs[id] = doc
	}

	if err := buildPostings(idx.terms, raw.Terms, n, "term"); err != nil {
		return nil, err
	}
	if err := buildPostings(idx.titleTerms, raw.TitleTerms, n, "title term"); err != nil {
		return nil, err
	}

	idx.mismatches = idx.countTitleMismatches()
	if o.strictTitles && idx.mismatches > 0 {
		return nil, apperrors.Malformedf("%d title postings do not occur in their document titles", idx.mismatches)
	}

	if err := idx.buildObjects(raw); err != nil {
		return nil, err
	}

	idx.version = o.version
	if idx.version == "" {
		idx.version = contentVersion(raw)
	}
	return idx, nil
}

func buildPostings(dst map[string]*roaring.Bitmap, src map[string]Postings, n int, kind string) error {
	for term, ids := range src {
		key := NormalizeTerm(term)
		if key == "" {
			continue
		}
		bm, ok := dst[key]
		if !ok {
			bm = roaring.New()
			dst[key] = bm
		}
		for _, id := range ids {
			if id < 0 || id >= n {
				return apperrors.Malformedf("%s %q references document %d, valid range is [0,%d)", kind, term, id, n)
			}
			bm.Add(uint32(id))
		}
	}
	for _, bm := range dst {
		bm.RunOptimize()
	}
	return nil
}

func (idx *Index) countTitleMismatches() int {
	titles := make([]string, len(idx.docs))
	for i, d := range idx.docs {
		titles[i] = NormalizeTerm(d.Title)
	}
	mismatches := 0
	for term, bm := range idx.titleTerms {
		it := bm.Iterator()
		for it.HasNext() {
			if !strings.Contains(titles[it.Next()], term) {
				mismatches++
			}
		}
	}
	return mismatches
}

func (idx *Index) buildObjects(raw *RawIndex) error {
	idx.objects = make([]ObjectRecord, 0, len(raw.Objects))
	for i, ro := range raw.Objects {
		if strings.TrimSpace(ro.Name) == "" {
			return apperrors.Malformedf("object %d has an empty name", i)
		}
		docID, err := idx.resolve(ro.Doc)
		if err != nil {
			return apperrors.Malformedf("object %q: %v", ro.Name, err)
		}
		typeLabel := ro.Type
		if len(raw.ObjTypes) > 0 {
			label, ok := raw.ObjTypes[ro.Type]
			if !ok {
				return apperrors.Malformedf("object %q has undeclared type %q", ro.Name, ro.Type)
			}
			typeLabel = label
		}
		domain, typ := splitTypeTag(ro.Type)
		leaf := leafName(ro.Name)
		rec := ObjectRecord{
			Name:      ro.Name,
			Leaf:      leaf,
			Label:     ro.Label,
			DocID:     docID,
			Type:      typ,
			TypeLabel: typeLabel,
			Domain:    domain,
			Anchor:    ro.Anchor,
		}
		if rec.Label == "" {
			rec.Label = leaf
		}
		if ro.Priority != nil {
			rec.Priority = *ro.Priority
		}
		idx.objects = append(idx.objects, rec)
	}
	sort.SliceStable(idx.objects, func(i, j int) bool {
		return objectLess(idx.objects[i], idx.objects[j])
	})
	idx.objKeys = make([]objectKey, len(idx.objects))
	for i, obj := range idx.objects {
		key := strings.ToLower(obj.Leaf)
		idx.byLeaf[key] = append(idx.byLeaf[key], i)
		idx.objKeys[i] = objectKey{
			name:  strings.ToLower(obj.Name),
			label: strings.ToLower(obj.Label),
		}
	}
	return nil
}

// objectLess orders by descending priority, then qualified name ascending.
func objectLess(a, b ObjectRecord) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.DocID < b.DocID
}

func (idx *Index) resolve(ref DocRef) (int, error) {
	if ref.ByName {
		id, ok := idx.byName[ref.Name]
		if !ok {
			return 0, fmt.Errorf("%w: unknown document %q", apperrors.ErrDocumentNotFound, ref.Name)
		}
		return id, nil
	}
	if ref.ID < 0 || ref.ID >= len(idx.docs) {
		return 0, fmt.Errorf("%w: document id %d out of range [0,%d)", apperrors.ErrDocumentNotFound, ref.ID, len(idx.docs))
	}
	return ref.ID, nil
}

func contentVersion(raw *RawIndex) string {
	data, err := json.Marshal(raw)
	if err != nil {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// DocumentCount returns the number of documents.
func (idx *Index) DocumentCount() int { return len(idx.docs) }

// Document returns the document with the given id.
func (idx *Index) Document(id int) (Document, bool) {
	if id < 0 || id >= len(idx.docs) {
		return Document{}, false
	}
	return idx.docs[id], true
}

// DocumentByName looks a document up by its unique name.
func (idx *Index) DocumentByName(name string) (Document, bool) {
	id, ok := idx.byName[name]
	if !ok {
		return Document{}, false
	}
	return idx.docs[id], true
}

// TitleOf returns the title of document id, or "" when id is out of range.
func (idx *Index) TitleOf(id int) string {
	if id < 0 || id >= len(idx.docs) {
		return ""
	}
	return idx.docs[id].Title
}

// TermPostings returns the documents whose body contains term. The result is
// a copy and never nil.
func (idx *Index) TermPostings(term string) *roaring.Bitmap {
	return lookup(idx.terms, term)
}

// TitlePostings returns the documents whose title contains term. The result
// is a copy and never nil.
func (idx *Index) TitlePostings(term string) *roaring.Bitmap {
	return lookup(idx.titleTerms, term)
}

// Postings returns the union of body and title postings for term.
func (idx *Index) Postings(term string) *roaring.Bitmap {
	key := NormalizeTerm(term)
	body, title := idx.terms[key], idx.titleTerms[key]
	switch {
	case body == nil && title == nil:
		return roaring.New()
	case body == nil:
		return title.Clone()
	case title == nil:
		return body.Clone()
	default:
		return roaring.Or(body, title)
	}
}

// InTitle reports whether term occurs in the title postings of doc.
func (idx *Index) InTitle(term string, doc int) bool {
	bm, ok := idx.titleTerms[NormalizeTerm(term)]
	return ok && doc >= 0 && bm.Contains(uint32(doc))
}

// InBody reports whether term occurs in the body postings of doc.
func (idx *Index) InBody(term string, doc int) bool {
	bm, ok := idx.terms[NormalizeTerm(term)]
	return ok && doc >= 0 && bm.Contains(uint32(doc))
}

func lookup(m map[string]*roaring.Bitmap, term string) *roaring.Bitmap {
	bm, ok := m[NormalizeTerm(term)]
	if !ok {
		return roaring.New()
	}
	return bm.Clone()
}

// ObjectsByLeafName returns the objects whose last dotted component equals
// name (case-insensitive), highest priority first and then by qualified
// name.
func (idx *Index) ObjectsByLeafName(name string) []ObjectRecord {
	positions := idx.byLeaf[strings.ToLower(name)]
	out := make([]ObjectRecord, len(positions))
	for i, p := range positions {
		out[i] = idx.objects[p]
	}
	return out
}

// Objects returns every object in leaf-lookup order.
func (idx *Index) Objects() []ObjectRecord {
	out := make([]ObjectRecord, len(idx.objects))
	copy(out, idx.objects)
	return out
}

// ScanObjects calls fn for every object, in Objects order, together with its
// lower-cased qualified name and label. Scanning stops when fn returns false.
// fn must not modify rec.
func (idx *Index) ScanObjects(fn func(rec *ObjectRecord, lowerName, lowerLabel string) bool) {
	for i := range idx.objects {
		if !fn(&idx.objects[i], idx.objKeys[i].name, idx.objKeys[i].label) {
			return
		}
	}
}

// ObjectCount returns the number of searchable objects.
func (idx *Index) ObjectCount() int { return len(idx.objects) }

// TermCount returns the number of distinct body terms.
func (idx *Index) TermCount() int { return len(idx.terms) }

// Version identifies the index content; two loads of identical data share a
// version.
func (idx *Index) Version() string { return idx.version }

// LoadedAt reports when the index was built.
func (idx *Index) LoadedAt() time.Time { return idx.loadedAt }

// Stats summarizes the index.
func (idx *Index) Stats() Stats {
	byType := make(map[string]int)
	for _, obj := range idx.objects {
		byType[obj.Type]++
	}
	return Stats{
		Version:         idx.version,
		Documents:       len(idx.docs),
		Terms:           len(idx.terms),
		TitleTerms:      len(idx.titleTerms),
		Objects:         len(idx.objects),
		ObjectsByType:   byType,
		TitleMismatches: idx.mismatches,
	}
}

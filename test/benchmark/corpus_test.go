// Package benchmark contains Go benchmarks for index loading, the query
// pipeline and tokenization, measuring throughput and allocation behaviour.
package benchmark

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
)

var vocabulary = []string{
	"stage", "prim", "layer", "camera", "render", "hydra", "schema", "attribute",
	"relationship", "variant", "payload", "reference", "instance", "material",
	"shader", "light", "mesh", "xform", "composition", "sublayer", "session",
	"notice", "plugin", "registry", "token", "path", "value", "time", "sample",
	"collection", "purpose", "visibility", "extent", "bound", "transform",
}

// syntheticRaw builds a deterministic index of numDocs documents, each with
// a handful of body terms, one title term and numDocs/4 API objects.
func syntheticRaw(numDocs int) *index.RawIndex {
	rng := rand.New(rand.NewSource(int64(numDocs)))
	raw := &index.RawIndex{
		DocNames:   make([]string, numDocs),
		Titles:     make([]string, numDocs),
		Terms:      make(map[string]index.Postings),
		TitleTerms: make(map[string]index.Postings),
		Objects:    make([]index.RawObject, 0, numDocs/4),
	}
	for d := 0; d < numDocs; d++ {
		title := vocabulary[rng.Intn(len(vocabulary))]
		raw.DocNames[d] = fmt.Sprintf("api/doc%d", d)
		raw.Titles[d] = "The " + title + " guide"
		raw.TitleTerms[title] = append(raw.TitleTerms[title], d)
		seen := map[string]bool{title: true}
		for t := 0; t < 8; t++ {
			term := vocabulary[rng.Intn(len(vocabulary))]
			if seen[term] {
				continue
			}
			seen[term] = true
			raw.Terms[term] = append(raw.Terms[term], d)
		}
	}
	for o := 0; o < numDocs/4; o++ {
		leaf := vocabulary[rng.Intn(len(vocabulary))]
		prio := []int{15, 5, -5}[o%3]
		raw.Objects = append(raw.Objects, index.RawObject{
			Name:     fmt.Sprintf("Usd.%s%d", leaf, o),
			Doc:      index.DocID(rng.Intn(numDocs)),
			Type:     "py:class",
			Priority: &prio,
		})
	}
	return raw
}

func syntheticIndex(b *testing.B, numDocs int) *index.Index {
	b.Helper()
	idx, err := index.Load(syntheticRaw(numDocs))
	if err != nil {
		b.Fatal(err)
	}
	return idx
}

func syntheticJSON(b *testing.B, numDocs int) []byte {
	b.Helper()
	data, err := json.Marshal(syntheticRaw(numDocs))
	if err != nil {
		b.Fatal(err)
	}
	return data
}

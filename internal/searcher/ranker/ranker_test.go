package ranker

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/matcher"
)

func loadIndex(t *testing.T, raw *index.RawIndex) *index.Index {
	t.Helper()
	idx, err := index.Load(raw)
	require.NoError(t, err)
	return idx
}

func scenarioIndex(t *testing.T) *index.Index {
	return loadIndex(t, &index.RawIndex{
		DocNames: []string{"intro", "api"},
		Titles:   []string{"Render", "API"},
		Terms: map[string]index.Postings{
			"camera": {1},
		},
		TitleTerms: map[string]index.Postings{
			"render": {0},
		},
		Objects: []index.RawObject{},
	})
}

// The 10/1 title/body split is the default policy, not a constant recovered
// from index data. These tests pin the policy so a change is deliberate.
func TestDefaultWeightsPolicy(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, 10, w.Title)
	assert.Equal(t, 1, w.Body)
	assert.Greater(t, w.ObjectExact, w.ObjectPartial)
}

func TestRank_Scenario(t *testing.T) {
	idx := scenarioIndex(t)
	w := DefaultWeights()

	got := Rank(idx, []string{"camera"}, matcher.MatchTerms(idx, []string{"camera"}), nil, w)
	require.Len(t, got, 1)
	assert.Equal(t, "api", got[0].Document)
	assert.Equal(t, KindDocument, got[0].Kind)
	assert.Equal(t, 1, got[0].Score)

	got = Rank(idx, []string{"render"}, matcher.MatchTerms(idx, []string{"render"}), nil, w)
	require.Len(t, got, 1)
	assert.Equal(t, "intro", got[0].Document)
	assert.Equal(t, "Render", got[0].Title)
	assert.Equal(t, 10, got[0].Score)

	got = Rank(idx, []string{"render", "camera"}, matcher.MatchTerms(idx, []string{"render", "camera"}), nil, w)
	assert.Empty(t, got)
}

func TestRank_TitleOutweighsBodyAndTiesByName(t *testing.T) {
	idx := loadIndex(t, &index.RawIndex{
		DocNames: []string{"zeta", "alpha", "mid"},
		Terms: map[string]index.Postings{
			"stage": {0, 1, 2},
			"layer": {0, 1, 2},
		},
		TitleTerms: map[string]index.Postings{
			"stage": {2},
		},
		Objects: []index.RawObject{},
	})
	terms := []string{"stage", "layer"}
	got := Rank(idx, terms, matcher.MatchTerms(idx, terms), nil, DefaultWeights())

	require.Len(t, got, 3)
	assert.Equal(t, "mid", got[0].Document)
	assert.Equal(t, 11, got[0].Score, "title credit replaces body credit for the same term")
	assert.Equal(t, "alpha", got[1].Document)
	assert.Equal(t, "zeta", got[2].Document)
	assert.Equal(t, got[1].Score, got[2].Score)
}

func TestRank_ObjectsFirst(t *testing.T) {
	prio := 5
	idx := loadIndex(t, &index.RawIndex{
		DocNames: []string{"intro", "api"},
		Terms:    map[string]index.Postings{"camera": {0, 1}},
		TitleTerms: map[string]index.Postings{
			"camera": {0},
		},
		Objects: []index.RawObject{
			{Name: "Gf.Camera", Doc: index.DocName("api"), Type: "class", Anchor: "Gf.Camera"},
			{Name: "Gf.CameraUtil", Doc: index.DocName("api"), Type: "class", Priority: &prio},
			{Name: "Gf.Camera.GetFocalLength", Doc: index.DocName("api"), Type: "method"},
		},
	})
	w := DefaultWeights()
	w.TypeBoost = map[string]int{"method": 50}

	objs := matcher.MatchObjects(idx, "camera")
	got := Rank(idx, []string{"camera"}, matcher.MatchTerms(idx, []string{"camera"}), objs, w)
	require.Len(t, got, 5)

	assert.Equal(t, KindObject, got[0].Kind)
	assert.Equal(t, "Gf.Camera.GetFocalLength", got[0].Title)
	assert.Equal(t, 100+6+50, got[0].Score)
	assert.Equal(t, "Gf.Camera", got[1].Title)
	assert.Equal(t, 100+11, got[1].Score)
	assert.Equal(t, "Gf.Camera", got[1].Anchor)
	require.NotNil(t, got[1].MatchedObject)
	assert.Equal(t, "api", got[1].Document)
	assert.Equal(t, "Gf.CameraUtil", got[2].Title)
	assert.Equal(t, 100+5+6, got[2].Score)

	assert.Equal(t, KindDocument, got[3].Kind)
	assert.Equal(t, "intro", got[3].Document)
	assert.Equal(t, 10, got[3].Score)
	assert.Equal(t, "api", got[4].Document)
	assert.Nil(t, got[4].MatchedObject)
}

func TestRank_Deterministic(t *testing.T) {
	names := []string{"e", "d", "c", "b", "a", "f", "g", "h"}
	postings := make(index.Postings, len(names))
	for i := range names {
		postings[i] = i
	}
	idx := loadIndex(t, &index.RawIndex{
		DocNames: names,
		Terms:    map[string]index.Postings{"usd": postings},
		Objects:  []index.RawObject{},
	})
	first := Rank(idx, []string{"usd"}, matcher.MatchTerms(idx, []string{"usd"}), nil, DefaultWeights())
	for i := 0; i < 20; i++ {
		again := Rank(idx, []string{"usd"}, matcher.MatchTerms(idx, []string{"usd"}), nil, DefaultWeights())
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "a", first[0].Document)
	assert.Equal(t, "h", first[len(first)-1].Document)
}

func TestRank_EmptyInputs(t *testing.T) {
	idx := scenarioIndex(t)
	assert.Empty(t, Rank(idx, nil, nil, nil, DefaultWeights()))
	assert.Empty(t, Rank(idx, []string{"camera"}, roaring.New(), nil, DefaultWeights()))
}

func TestTopK(t *testing.T) {
	results := []SearchResult{{Document: "a"}, {Document: "b"}, {Document: "c"}}
	assert.Len(t, TopK(results, 2), 2)
	assert.Len(t, TopK(results, 0), 3)
	assert.Len(t, TopK(results, -1), 3)
	assert.Len(t, TopK(results, 10), 3)
}

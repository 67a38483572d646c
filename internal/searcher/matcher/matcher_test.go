package matcher

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
)

func scenarioIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Load(&index.RawIndex{
		DocNames: []string{"intro", "api"},
		Titles:   []string{"Render", "API"},
		Terms: map[string]index.Postings{
			"camera": {1},
			"stage":  {0, 1},
		},
		TitleTerms: map[string]index.Postings{
			"render": {0},
		},
		Objects: []index.RawObject{
			{Name: "Gf.Camera", Doc: index.DocName("api"), Type: "class"},
		},
	})
	require.NoError(t, err)
	return idx
}

// randomIndex builds a deterministic pseudo-random corpus for property checks.
func randomIndex(t *testing.T, seed int64) (*index.Index, []string) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	const docs = 40
	vocab := make([]string, 25)
	for i := range vocab {
		vocab[i] = fmt.Sprintf("term%02d", i)
	}
	raw := &index.RawIndex{
		Terms:      map[string]index.Postings{},
		TitleTerms: map[string]index.Postings{},
		Objects:    []index.RawObject{},
	}
	for d := 0; d < docs; d++ {
		raw.DocNames = append(raw.DocNames, fmt.Sprintf("doc%02d", d))
	}
	for _, term := range vocab {
		for d := 0; d < docs; d++ {
			switch rng.Intn(6) {
			case 0:
				raw.Terms[term] = append(raw.Terms[term], d)
			case 1:
				raw.TitleTerms[term] = append(raw.TitleTerms[term], d)
			}
		}
	}
	idx, err := index.Load(raw)
	require.NoError(t, err)
	return idx, vocab
}

func TestMatchTerms_Scenario(t *testing.T) {
	idx := scenarioIndex(t)

	assert.True(t, MatchTerms(idx, []string{"render", "camera"}).IsEmpty())
	assert.Equal(t, []uint32{1}, MatchTerms(idx, []string{"camera"}).ToArray())
	assert.Equal(t, []uint32{0}, MatchTerms(idx, []string{"render"}).ToArray())
	assert.Equal(t, []uint32{0}, MatchTerms(idx, []string{"stage", "render"}).ToArray())
}

func TestMatchTerms_EmptyInputs(t *testing.T) {
	idx := scenarioIndex(t)
	assert.True(t, MatchTerms(idx, nil).IsEmpty())
	assert.True(t, MatchTerms(nil, []string{"camera"}).IsEmpty())
}

func TestMatchTerms_UnknownTermEmptiesResult(t *testing.T) {
	idx := scenarioIndex(t)
	assert.True(t, MatchTerms(idx, []string{"stage", "missing"}).IsEmpty())
	assert.True(t, MatchTerms(idx, []string{"missing", "stage"}).IsEmpty())
}

func TestMatchTerms_SingleTermIsBodyUnionTitle(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		idx, vocab := randomIndex(t, seed)
		for _, term := range vocab {
			want := roaring.Or(idx.TermPostings(term), idx.TitlePostings(term))
			got := MatchTerms(idx, []string{term})
			assert.True(t, want.Equals(got), "seed %d term %s", seed, term)
		}
	}
}

func TestMatchTerms_ConjunctionNarrows(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		idx, vocab := randomIndex(t, seed)
		for i := 0; i+1 < len(vocab); i++ {
			a, b := vocab[i], vocab[i+1]
			both := MatchTerms(idx, []string{a, b})
			onlyA := MatchTerms(idx, []string{a})
			onlyB := MatchTerms(idx, []string{b})

			assert.True(t, roaring.AndNot(both, onlyA).IsEmpty(), "seed %d %s+%s not subset of %s", seed, a, b, a)
			assert.True(t, roaring.AndNot(both, onlyB).IsEmpty(), "seed %d %s+%s not subset of %s", seed, a, b, b)
			assert.True(t, roaring.And(onlyA, onlyB).Equals(both))
		}
	}
}

func TestMatchTerms_DoesNotMutateIndex(t *testing.T) {
	idx := scenarioIndex(t)
	_ = MatchTerms(idx, []string{"stage", "render"})
	assert.Equal(t, []uint32{0, 1}, idx.TermPostings("stage").ToArray())
}

func TestExcludeAndRestrict(t *testing.T) {
	idx := scenarioIndex(t)

	set := MatchTerms(idx, []string{"stage"})
	Exclude(idx, set, []string{"camera"})
	assert.Equal(t, []uint32{0}, set.ToArray())

	set = MatchTerms(idx, []string{"stage"})
	Exclude(idx, set, []string{"render"})
	assert.Equal(t, []uint32{1}, set.ToArray(), "title terms exclude too")

	set = MatchTerms(idx, []string{"stage"})
	Restrict(set, roaring.BitmapOf(1))
	assert.Equal(t, []uint32{1}, set.ToArray())

	set = MatchTerms(idx, []string{"stage"})
	Restrict(set, nil)
	assert.Equal(t, []uint32{0, 1}, set.ToArray())
}

func TestMatchObjects_Scenario(t *testing.T) {
	idx := scenarioIndex(t)

	got := MatchObjects(idx, "Camera")
	require.Len(t, got, 1)
	assert.Equal(t, "Gf.Camera", got[0].Object.Name)
	assert.Equal(t, 1, got[0].Object.DocID)
	assert.True(t, got[0].Exact)

	got = MatchObjects(idx, "Gf.Cam")
	require.Len(t, got, 1)
	assert.Equal(t, "Gf.Camera", got[0].Object.Name)
	assert.False(t, got[0].Exact)

	assert.Empty(t, MatchObjects(idx, "xyz"))
	assert.NotNil(t, MatchObjects(idx, "xyz"))
	assert.Empty(t, MatchObjects(idx, "   "))
	assert.Empty(t, MatchObjects(idx, "."), "punctuation alone matches no symbol")
	assert.Empty(t, MatchObjects(nil, "Camera"))
}

func TestMatchObjects_Ordering(t *testing.T) {
	prio := func(v int) *int { return &v }
	idx, err := index.Load(&index.RawIndex{
		DocNames: []string{"api", "usd"},
		Terms:    map[string]index.Postings{},
		Objects: []index.RawObject{
			{Name: "Gf.CameraUtil", Doc: index.DocID(0), Type: "class", Priority: prio(15)},
			{Name: "Usd.Camera", Doc: index.DocID(1), Type: "class"},
			{Name: "Gf.Camera", Doc: index.DocID(0), Type: "class"},
			{Name: "Gf.camera_helper", Doc: index.DocID(0), Type: "function", Priority: prio(-5)},
			{Name: "Gf.Frustum", Doc: index.DocID(0), Type: "class", Label: "Camera frustum"},
		},
	})
	require.NoError(t, err)

	var names []string
	for _, m := range MatchObjects(idx, "camera") {
		names = append(names, m.Object.Name)
	}
	assert.Equal(t, []string{
		"Gf.Camera",
		"Usd.Camera",
		"Gf.CameraUtil",
		"Gf.Frustum",
		"Gf.camera_helper",
	}, names)

	restricted := RestrictObjects(MatchObjects(idx, "camera"), roaring.BitmapOf(1))
	require.Len(t, restricted, 1)
	assert.Equal(t, "Usd.Camera", restricted[0].Object.Name)
}

func BenchmarkMatchTerms(b *testing.B) {
	t := &testing.T{}
	idx, vocab := randomIndex(t, 42)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = MatchTerms(idx, vocab[i%10:i%10+3])
	}
}

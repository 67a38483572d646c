package index

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func intp(v int) *int { return &v }

func sampleRaw() *RawIndex {
	return &RawIndex{
		DocNames: []string{"intro", "api"},
		Titles:   []string{"Render Intro", "API"},
		Terms: map[string]Postings{
			"camera": {1},
		},
		TitleTerms: map[string]Postings{
			"render": {0},
		},
		Objects: []RawObject{
			{Name: "Gf.Camera", Doc: DocName("api"), Type: "class"},
			{Name: "Gf.Frustum", Doc: DocID(1), Type: "class", Priority: intp(5)},
			{Name: "Usd.Camera", Doc: DocID(1), Type: "function", Priority: intp(5)},
		},
	}
}

func TestLoad_Scenario(t *testing.T) {
	idx, err := Load(sampleRaw())
	require.NoError(t, err)

	assert.Equal(t, 2, idx.DocumentCount())
	assert.Equal(t, "Render Intro", idx.TitleOf(0))
	assert.Equal(t, "API", idx.TitleOf(1))
	assert.Equal(t, "", idx.TitleOf(7))
	assert.Equal(t, []uint32{1}, idx.TermPostings("camera").ToArray())
	assert.True(t, idx.TitlePostings("camera").IsEmpty())
	assert.Equal(t, []uint32{0}, idx.TitlePostings("render").ToArray())
	assert.True(t, idx.TermPostings("render").IsEmpty())
	assert.Equal(t, 0, idx.Stats().TitleMismatches)
}

func TestLoad_PostingOutOfRange(t *testing.T) {
	raw := sampleRaw()
	raw.Terms["camera"] = Postings{1, 99}

	idx, err := Load(raw)
	require.Error(t, err)
	assert.Nil(t, idx)
	assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
	assert.Contains(t, err.Error(), "document 99")
}

func TestLoad_StructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawIndex)
		errMsg string
	}{
		{"missing docnames", func(r *RawIndex) { r.DocNames = nil }, "document name table"},
		{"missing terms", func(r *RawIndex) { r.Terms = nil }, "term table"},
		{"missing objects", func(r *RawIndex) { r.Objects = nil }, "object table"},
		{"title count mismatch", func(r *RawIndex) { r.Titles = []string{"only one"} }, "1 titles for 2 documents"},
		{"duplicate name", func(r *RawIndex) { r.DocNames = []string{"api", "api"} }, "used by ids 0 and 1"},
		{"empty name", func(r *RawIndex) { r.DocNames = []string{"intro", ""} }, "empty name"},
		{"negative title posting", func(r *RawIndex) { r.TitleTerms["render"] = Postings{-1} }, "document -1"},
		{"object unknown document name", func(r *RawIndex) { r.Objects[0].Doc = DocName("missing") }, "unknown document"},
		{"object document out of range", func(r *RawIndex) { r.Objects[0].Doc = DocID(2) }, "out of range"},
		{"object without name", func(r *RawIndex) { r.Objects[0].Name = " " }, "empty name"},
		{"undeclared type", func(r *RawIndex) { r.ObjTypes = map[string]string{"function": "Function"} }, "undeclared type"},
		{"filenames mismatch", func(r *RawIndex) { r.Filenames = []string{"a.md"} }, "filenames"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := sampleRaw()
			tt.mutate(raw)
			idx, err := Load(raw)
			require.Error(t, err)
			assert.Nil(t, idx)
			assert.True(t, apperrors.IsMalformed(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_NilRaw(t *testing.T) {
	idx, err := Load(nil)
	assert.Nil(t, idx)
	assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
}

func TestLoad_OptionalTablesMayBeEmpty(t *testing.T) {
	idx, err := Load(&RawIndex{
		DocNames: []string{"only"},
		Terms:    map[string]Postings{"word": {0}},
		Objects:  []RawObject{},
	})
	require.NoError(t, err)

	assert.Equal(t, "only", idx.TitleOf(0), "title falls back to the document name")
	assert.Equal(t, 0, idx.ObjectCount())
	assert.Empty(t, idx.ObjectsByLeafName("anything"))
	assert.True(t, idx.TitlePostings("word").IsEmpty())
}

func TestDecode_ObjectTablePresence(t *testing.T) {
	for name, tt := range map[string]struct {
		data    string
		present bool
	}{
		"native empty":  {`{"docnames":["a"],"terms":{"x":0},"objects":[]}`, true},
		"native absent": {`{"docnames":["a"],"terms":{"x":0}}`, false},
		"native null":   {`{"docnames":["a"],"terms":{"x":0},"objects":null}`, false},
		"sphinx empty":  {`Search.setIndex({docnames:["a"],terms:{x:0},objects:{},objtypes:{}})`, true},
		"sphinx absent": {`Search.setIndex({docnames:["a"],terms:{x:0},objtypes:{}})`, false},
	} {
		t.Run(name, func(t *testing.T) {
			idx, err := Parse([]byte(tt.data))
			if tt.present {
				require.NoError(t, err)
				assert.Equal(t, 0, idx.ObjectCount())
				return
			}
			assert.Nil(t, idx)
			assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
			assert.ErrorContains(t, err, "object table is missing")
		})
	}
}

func TestLoad_NormalizesTermKeys(t *testing.T) {
	idx, err := Load(&RawIndex{
		DocNames: []string{"a", "b"},
		Terms: map[string]Postings{
			"Camera":       {0},
			"camera":       {1},
			"scene  graph": {1},
		},
		Objects: []RawObject{},
	})
	require.NoError(t, err)

	assert.Equal(t, []uint32{0, 1}, idx.TermPostings("camera").ToArray())
	assert.Equal(t, []uint32{1}, idx.TermPostings("Scene Graph").ToArray())
}

func TestObjectsByLeafName_Ordering(t *testing.T) {
	idx, err := Load(sampleRaw())
	require.NoError(t, err)

	got := idx.ObjectsByLeafName("camera")
	require.Len(t, got, 2)
	assert.Equal(t, "Usd.Camera", got[0].Name, "higher priority first")
	assert.Equal(t, "Gf.Camera", got[1].Name)
	assert.Equal(t, "Camera", got[1].Label)
	assert.Equal(t, "Camera", got[1].Leaf)
	assert.Equal(t, 1, got[1].DocID)
	assert.Equal(t, "class", got[1].Type)

	tied, err := Load(&RawIndex{
		DocNames: []string{"api"},
		Terms:    map[string]Postings{},
		Objects: []RawObject{
			{Name: "b.Camera", Doc: DocID(0), Type: "class"},
			{Name: "a.Camera", Doc: DocID(0), Type: "class"},
		},
	})
	require.NoError(t, err)
	names := []string{}
	for _, o := range tied.ObjectsByLeafName("Camera") {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"a.Camera", "b.Camera"}, names, "ties broken by qualified name")
}

func TestPostingsAreCopies(t *testing.T) {
	idx, err := Load(sampleRaw())
	require.NoError(t, err)

	bm := idx.TermPostings("camera")
	bm.Add(0)
	assert.Equal(t, []uint32{1}, idx.TermPostings("camera").ToArray())

	union := idx.Postings("camera")
	union.Clear()
	assert.False(t, idx.TermPostings("camera").IsEmpty())
}

func TestStrictTitles(t *testing.T) {
	raw := sampleRaw()
	raw.TitleTerms["hello"] = Postings{1}

	lenient, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, lenient.Stats().TitleMismatches)

	_, err = Load(raw, WithStrictTitles())
	assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
}

func TestVersionIsContentDerived(t *testing.T) {
	a, err := Load(sampleRaw())
	require.NoError(t, err)
	b, err := Load(sampleRaw())
	require.NoError(t, err)
	assert.Equal(t, a.Version(), b.Version())

	raw := sampleRaw()
	raw.Terms["extra"] = Postings{0}
	c, err := Load(raw)
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestDecode_NativeJSON(t *testing.T) {
	data := []byte(`{
		"docnames": ["intro", "api"],
		"titles": ["Intro", "API"],
		"terms": {"camera": 1, "render": [0, 1]},
		"titleterms": {"intro": [0]},
		"objects": [{"name": "Gf.Camera", "doc": "api", "type": "py:class", "priority": 3}],
		"objtypes": {"py:class": "Python class"}
	}`)
	idx, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, []uint32{1}, idx.TermPostings("camera").ToArray())
	assert.Equal(t, []uint32{0, 1}, idx.TermPostings("render").ToArray())
	objs := idx.ObjectsByLeafName("Camera")
	require.Len(t, objs, 1)
	assert.Equal(t, "class", objs[0].Type)
	assert.Equal(t, "py", objs[0].Domain)
	assert.Equal(t, "Python class", objs[0].TypeLabel)
	assert.Equal(t, 3, objs[0].Priority)
}

func TestDecode_Errors(t *testing.T) {
	for name, data := range map[string]string{
		"empty":          "  ",
		"bad json":       `{"docnames": [`,
		"unclosed call":  `Search.setIndex({docnames:["a"],terms:{}}`,
		"bad js literal": `Search.setIndex({docnames:["a"],terms:{a:[0,}})`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(data))
			assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
		})
	}
}

func TestDecode_SphinxObjectLayouts(t *testing.T) {
	legacy := `Search.setIndex({docnames:["index","api"],filenames:["index.rst","api.rst"],` +
		`titles:["Welcome","API Reference"],terms:{camera:1,scene:[0,1]},titleterms:{api:1,refer:1},` +
		`objects:{"pxr.Gf":{Camera:[1,0,1,""],_helper:[1,1,2,"-"],Hidden:[1,0,-1,""]},"":{pxr:[1,2,0,"module-pxr"]}},` +
		`objnames:{0:["py","class","Python class"],1:["py","function","Python function"],2:["py","module","Python module"]},` +
		`objtypes:{0:"py:class",1:"py:function",2:"py:module"},envversion:{sphinx:56}});`
	modern := `Search.setIndex({"docnames":["index","api"],"filenames":["index.rst","api.rst"],` +
		`"titles":["Welcome","API Reference"],"terms":{"camera":1,"scene":[0,1]},"titleterms":{"api":1,"refer":1},` +
		`"objects":{"pxr.Gf":[[1,0,1,"","Camera"],[1,1,2,"-","_helper"],[1,0,-1,"","Hidden"]],"":[[1,2,0,"module-pxr","pxr"]]},` +
		`"objnames":{"0":["py","class","Python class"],"1":["py","function","Python function"],"2":["py","module","Python module"]},` +
		`"objtypes":{"0":"py:class","1":"py:function","2":"py:module"}})`

	for name, data := range map[string]string{"legacy": legacy, "modern": modern} {
		t.Run(name, func(t *testing.T) {
			idx, err := Parse([]byte(data))
			require.NoError(t, err)

			assert.Equal(t, 2, idx.DocumentCount())
			doc, ok := idx.DocumentByName("api")
			require.True(t, ok)
			assert.Equal(t, "api.rst", doc.Filename)
			assert.Equal(t, []uint32{0, 1}, idx.TermPostings("scene").ToArray())

			assert.Equal(t, 3, idx.ObjectCount(), "hidden objects are dropped")
			cam := idx.ObjectsByLeafName("Camera")
			require.Len(t, cam, 1)
			assert.Equal(t, "pxr.Gf.Camera", cam[0].Name)
			assert.Equal(t, "pxr.Gf.Camera", cam[0].Anchor)
			assert.Equal(t, 5, cam[0].Priority)
			assert.Equal(t, "Python class", cam[0].TypeLabel)

			helper := idx.ObjectsByLeafName("_helper")
			require.Len(t, helper, 1)
			assert.Equal(t, "function-pxr.Gf._helper", helper[0].Anchor)
			assert.Equal(t, -5, helper[0].Priority)

			mod := idx.ObjectsByLeafName("pxr")
			require.Len(t, mod, 1)
			assert.Equal(t, "module", mod[0].Type)
			assert.Equal(t, 15, mod[0].Priority)

			all := idx.Objects()
			assert.Equal(t, "pxr", all[0].Name, "objects ordered by priority")
		})
	}
}

func TestParse_ShippedSearchIndex(t *testing.T) {
	data, err := os.ReadFile("testdata/searchindex.js")
	require.NoError(t, err)

	idx, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 16, idx.DocumentCount())
	assert.Equal(t, "Hydra Framework", idx.TitleOf(9))
	assert.Equal(t, []uint32{8}, idx.TermPostings("camera").ToArray())
	assert.Equal(t, []uint32{9}, idx.TitlePostings("hydra").ToArray())
	assert.Equal(t, []uint32{9, 10}, idx.Postings("hydra").ToArray())
	assert.Equal(t, 0, idx.ObjectCount(), "artifact has an empty object table")
	assert.NotEmpty(t, idx.Version())
}

func TestQuoteBareKeys(t *testing.T) {
	in := `{a:1,"b:c":[1,2],_x:{0:"py:class"},$y : "s,{z:1}"}`
	want := `{"a":1,"b:c":[1,2],"_x":{"0":"py:class"},"$y" : "s,{z:1}"}`
	assert.Equal(t, want, string(quoteBareKeys([]byte(in))))
}

func TestHolder_Swap(t *testing.T) {
	h := NewHolder(nil)
	assert.Nil(t, h.Load())

	first, err := Load(sampleRaw())
	require.NoError(t, err)
	assert.Nil(t, h.Swap(first))
	assert.Same(t, first, h.Load())

	second, err := Load(&RawIndex{DocNames: []string{"x"}, Terms: map[string]Postings{}, Objects: []RawObject{}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				idx := h.Load()
				n := idx.DocumentCount()
				assert.True(t, n == 1 || n == 2)
			}
		}()
	}
	prev := h.Swap(second)
	wg.Wait()
	assert.Same(t, first, prev)
	assert.Same(t, second, h.Load())
}

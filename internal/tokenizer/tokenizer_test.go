package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{"simple", "render camera", []string{"render", "camera"}},
		{"lower-cases", "Render CAMERA", []string{"render", "camera"}},
		{"punctuation", "camera, render; (stage)!", []string{"camera", "render", "stage"}},
		{"dotted symbol", "Gf.Camera.GetFrustum", []string{"camera", "getfrustum"}},
		{"underscore kept", "build_usd.py", []string{"build_usd"}},
		{"short dropped", "gl hd usd", []string{"usd"}},
		{"stop words dropped", "the scene and their stage", []string{"scene", "stage"}},
		{"duplicates dropped", "stage Stage STAGE prim", []string{"stage", "prim"}},
		{"unicode letters", "USD をビルド", []string{"usd", "をビルド"}},
		{"whitespace collapsed", "  camera\t\nrender  ", []string{"camera", "render"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_NoSearchableTerms(t *testing.T) {
	for _, q := range []string{"", "   ", "?!.,;", "the and of", "a to"} {
		got := Tokenize(q)
		assert.NotNil(t, got, "query %q", q)
		assert.Empty(t, got, "query %q", q)
	}
}

func TestTokenize_Idempotent(t *testing.T) {
	queries := []string{
		"How do I render a UsdStage with Hydra?",
		"Gf.Camera SetFocusDistance",
		"build_usd.py --build-monolithic",
		"シーン構成 stage",
	}
	for _, q := range queries {
		once := Tokenize(q)
		var joined string
		for i, term := range once {
			if i > 0 {
				joined += " "
			}
			joined += term
		}
		assert.Equal(t, once, Tokenize(joined), "query %q", q)
	}
}

func TestTokenizer_Options(t *testing.T) {
	short := New(WithMinLength(2))
	assert.Equal(t, []string{"gl", "hd", "usd"}, short.Tokenize("gl hd usd"))

	custom := New(WithStopWords([]string{"Camera"}))
	assert.Equal(t, []string{"the", "render"}, custom.Tokenize("the camera render"))

	ignored := New(WithMinLength(0))
	assert.Equal(t, []string{"usd"}, ignored.Tokenize("gl usd"), "non-positive length keeps the default")
}

func TestTokenizer_Stemming(t *testing.T) {
	tok := New(WithStemming(true))
	assert.Equal(t, []string{"render", "camera"}, tok.Tokenize("rendering cameras"))
	assert.Equal(t, []string{"build"}, tok.Tokenize("builds building"), "stems are deduplicated")
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("The"))
	assert.False(t, IsStopWord("camera"))
}

func BenchmarkTokenize(b *testing.B) {
	query := "How do I configure the Hydra render delegate for UsdImagingGLEngine with a free camera?"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Tokenize(query)
	}
}

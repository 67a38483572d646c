package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		terms   []string
		exclude []string
		object  string
	}{
		{"plain", "render camera", []string{"render", "camera"}, []string{}, "render camera"},
		{"dash exclusion", "stage -python", []string{"stage"}, []string{"python"}, "stage"},
		{"NOT keyword", "stage NOT python", []string{"stage"}, []string{"python"}, "stage"},
		{"lowercase not is a stop word", "stage not python", []string{"stage", "python"}, []string{}, "stage not python"},
		{"lone dash kept", "stage - camera", []string{"stage", "camera"}, []string{}, "stage - camera"},
		{"symbol query", "Gf.Camera", []string{"camera"}, []string{}, "Gf.Camera"},
		{"exclusion cannot remove a required term", "stage -stage", []string{"stage"}, []string{}, "stage"},
		{"empty", "   ", []string{}, []string{}, ""},
		{"stop words only", "the and of", []string{}, []string{}, "the and of"},
		{"punctuation only", ". ...", []string{}, []string{}, ""},
		{"punctuation around exclusion", ". -camera", []string{}, []string{"camera"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query, nil)
			assert.Equal(t, tt.query, plan.RawQuery)
			assert.Equal(t, tt.terms, plan.Terms)
			assert.Equal(t, tt.exclude, plan.ExcludeTerms)
			assert.Equal(t, tt.object, plan.ObjectQuery)
		})
	}
}

func TestParse_UsesGivenTokenizer(t *testing.T) {
	plan := Parse("gl hd", tokenizer.New(tokenizer.WithMinLength(2)))
	assert.Equal(t, []string{"gl", "hd"}, plan.Terms)
}

func TestQueryPlan_Empty(t *testing.T) {
	assert.True(t, Parse("", nil).Empty())
	assert.True(t, Parse("?!", nil).Empty(), "punctuation alone has nothing to match")
	assert.False(t, Parse("Gf.", nil).Empty())
	assert.False(t, Parse("camera", nil).Empty())
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "render NOT camera", Canonical("  Render   NOT Camera "))
	assert.Equal(t, "render not camera", Canonical("render Not camera"))
	assert.NotEqual(t, Canonical("render NOT camera"), Canonical("render not camera"))

	for _, pair := range [][2]string{
		{"Gf.Camera  -Python", "gf.camera -python"},
		{"Stage NOT USD", "stage NOT usd"},
	} {
		a, b := Parse(pair[0], nil), Parse(pair[1], nil)
		assert.Equal(t, Canonical(pair[0]), Canonical(pair[1]))
		assert.Equal(t, a.Terms, b.Terms)
		assert.Equal(t, a.ExcludeTerms, b.ExcludeTerms)
		assert.Equal(t, strings.ToLower(a.ObjectQuery), strings.ToLower(b.ObjectQuery))
	}
}

package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

var sphinxPrefix = []byte("Search.setIndex(")

// Decode parses serialized index data. Both the native JSON form and the
// Sphinx searchindex.js form (Search.setIndex({...})) are accepted.
func Decode(data []byte) (*RawIndex, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, apperrors.Malformedf("empty index data")
	}
	if bytes.HasPrefix(trimmed, sphinxPrefix) {
		return decodeSphinx(trimmed)
	}
	var raw RawIndex
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, apperrors.Malformedf("decoding index json: %v", err)
	}
	return &raw, nil
}

// Parse decodes and loads data in one step. The version of the returned
// index is derived from the bytes of data.
func Parse(data []byte, opts ...Option) (*Index, error) {
	raw, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	opts = append([]Option{WithVersion(hex.EncodeToString(sum[:8]))}, opts...)
	return Load(raw, opts...)
}

package index

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawIndex is the serialized form of a search index as produced by the
// documentation build. Documents are identified by their position in
// DocNames.
type RawIndex struct {
	DocNames   []string            `json:"docnames"`
	Filenames  []string            `json:"filenames,omitempty"`
	Titles     []string            `json:"titles,omitempty"`
	Terms      map[string]Postings `json:"terms"`
	TitleTerms map[string]Postings `json:"titleterms,omitempty"`
	Objects    []RawObject         `json:"objects"`
	ObjTypes   map[string]string   `json:"objtypes,omitempty"`
}

// RawObject is a single API symbol entry. Type may carry a domain prefix
// ("py:class").
type RawObject struct {
	Name     string `json:"name"`
	Doc      DocRef `json:"doc"`
	Type     string `json:"type"`
	Priority *int   `json:"priority,omitempty"`
	Anchor   string `json:"anchor,omitempty"`
	Label    string `json:"label,omitempty"`
}

// Postings is a list of document ids. On the wire a single id may be written
// as a bare integer instead of a one-element array.
type Postings []int

func (p *Postings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ids []int
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("decoding posting list: %w", err)
		}
		*p = ids
		return nil
	}
	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("decoding posting: %w", err)
	}
	*p = Postings{id}
	return nil
}

// DocRef points at a document either by id or by name.
type DocRef struct {
	ID     int
	Name   string
	ByName bool
}

// DocID references a document by position.
func DocID(id int) DocRef { return DocRef{ID: id} }

// DocName references a document by name.
func DocName(name string) DocRef { return DocRef{Name: name, ByName: true} }

func (r *DocRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("decoding document name: %w", err)
		}
		*r = DocName(name)
		return nil
	}
	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("decoding document id: %w", err)
	}
	*r = DocID(id)
	return nil
}

func (r DocRef) MarshalJSON() ([]byte, error) {
	if r.ByName {
		return json.Marshal(r.Name)
	}
	return json.Marshal(r.ID)
}

func (r DocRef) String() string {
	if r.ByName {
		return fmt.Sprintf("%q", r.Name)
	}
	return fmt.Sprintf("%d", r.ID)
}

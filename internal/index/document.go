package index

import "strings"

// Document is one page of the documentation set.
type Document struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Filename string `json:"filename,omitempty"`
}

// ObjectRecord is an indexed API symbol.
type ObjectRecord struct {
	Name      string `json:"name"`
	Leaf      string `json:"leaf"`
	Label     string `json:"label"`
	DocID     int    `json:"doc_id"`
	Type      string `json:"type"`
	TypeLabel string `json:"type_label"`
	Domain    string `json:"domain,omitempty"`
	Anchor    string `json:"anchor,omitempty"`
	Priority  int    `json:"priority"`
}

// Stats summarizes a loaded index.
type Stats struct {
	Version         string         `json:"version"`
	Documents       int            `json:"documents"`
	Terms           int            `json:"terms"`
	TitleTerms      int            `json:"title_terms"`
	Objects         int            `json:"objects"`
	ObjectsByType   map[string]int `json:"objects_by_type"`
	TitleMismatches int            `json:"title_mismatches"`
}

// leafName returns the last dotted component of a qualified name.
func leafName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}

// splitTypeTag splits "py:class" into ("py", "class").
func splitTypeTag(tag string) (domain, typ string) {
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		return tag[:i], tag[i+1:]
	}
	return "", tag
}

// NormalizeTerm lower-cases a term and collapses internal whitespace, the
// same normalization applied to every key of the posting tables.
func NormalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

package index

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Sphinx object priorities mapped onto ranking weights. Priority -1 marks an
// object that must not appear in search results.
var sphinxPriority = map[int]int{
	0: 15,
	1: 5,
	2: -5,
}

const sphinxHidden = -1

type sphinxIndex struct {
	DocNames   []string                   `json:"docnames"`
	Filenames  []string                   `json:"filenames"`
	Titles     []string                   `json:"titles"`
	Terms      map[string]Postings        `json:"terms"`
	TitleTerms map[string]Postings        `json:"titleterms"`
	Objects    map[string]json.RawMessage `json:"objects"`
	ObjNames   map[string][]string        `json:"objnames"`
	ObjTypes   map[string]string          `json:"objtypes"`
}

type sphinxObject struct {
	name     string
	doc      int
	typeIdx  int
	priority int
	anchor   string
}

func decodeSphinx(data []byte) (*RawIndex, error) {
	body := bytes.TrimPrefix(data, sphinxPrefix)
	body = bytes.TrimRight(body, "; \t\r\n")
	if !bytes.HasSuffix(body, []byte(")")) {
		return nil, apperrors.Malformedf("Search.setIndex call is not closed")
	}
	body = body[:len(body)-1]

	var si sphinxIndex
	if err := json.Unmarshal(quoteBareKeys(body), &si); err != nil {
		return nil, apperrors.Malformedf("decoding searchindex.js: %v", err)
	}

	raw := &RawIndex{
		DocNames:   si.DocNames,
		Filenames:  si.Filenames,
		Titles:     si.Titles,
		Terms:      si.Terms,
		TitleTerms: si.TitleTerms,
		ObjTypes:   make(map[string]string, len(si.ObjTypes)),
	}
	if si.Objects != nil {
		raw.Objects = make([]RawObject, 0, len(si.Objects))
	}
	for key, tag := range si.ObjTypes {
		label := tag
		if names := si.ObjNames[key]; len(names) >= 3 {
			label = names[2]
		}
		raw.ObjTypes[tag] = label
	}

	prefixes := make([]string, 0, len(si.Objects))
	for prefix := range si.Objects {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		entries, err := decodeSphinxObjects(si.Objects[prefix])
		if err != nil {
			return nil, apperrors.Malformedf("objects under %q: %v", prefix, err)
		}
		for _, e := range entries {
			if e.priority == sphinxHidden {
				continue
			}
			key := strconv.Itoa(e.typeIdx)
			tag, ok := si.ObjTypes[key]
			if !ok {
				return nil, apperrors.Malformedf("object %q references undeclared type %d", e.name, e.typeIdx)
			}
			fullName := e.name
			if prefix != "" {
				fullName = prefix + "." + e.name
			}
			anchor := e.anchor
			switch anchor {
			case "":
				anchor = fullName
			case "-":
				short := tag
				if names := si.ObjNames[key]; len(names) >= 2 {
					short = names[1]
				} else {
					_, short = splitTypeTag(tag)
				}
				anchor = short + "-" + fullName
			}
			prio := sphinxPriority[e.priority]
			raw.Objects = append(raw.Objects, RawObject{
				Name:     fullName,
				Doc:      DocID(e.doc),
				Type:     tag,
				Priority: &prio,
				Anchor:   anchor,
			})
		}
	}
	return raw, nil
}

// decodeSphinxObjects accepts both layouts Sphinx has used for the object
// table: {name: [doc, type, prio, anchor]} and [[doc, type, prio, anchor, name]].
func decodeSphinxObjects(data json.RawMessage) ([]sphinxObject, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '{' {
		var byName map[string][]json.RawMessage
		if err := json.Unmarshal(data, &byName); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]sphinxObject, 0, len(names))
		for _, name := range names {
			obj, err := decodeSphinxFields(byName[name], 4)
			if err != nil {
				return nil, err
			}
			obj.name = name
			out = append(out, obj)
		}
		return out, nil
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]sphinxObject, 0, len(rows))
	for _, fields := range rows {
		obj, err := decodeSphinxFields(fields, 5)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(fields[4], &obj.name); err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func decodeSphinxFields(fields []json.RawMessage, want int) (sphinxObject, error) {
	var obj sphinxObject
	if len(fields) < want {
		return obj, apperrors.Malformedf("object entry has %d fields, want %d", len(fields), want)
	}
	if err := json.Unmarshal(fields[0], &obj.doc); err != nil {
		return obj, err
	}
	if err := json.Unmarshal(fields[1], &obj.typeIdx); err != nil {
		return obj, err
	}
	if err := json.Unmarshal(fields[2], &obj.priority); err != nil {
		return obj, err
	}
	if err := json.Unmarshal(fields[3], &obj.anchor); err != nil {
		return obj, err
	}
	return obj, nil
}

// quoteBareKeys rewrites a JavaScript object literal with unquoted keys
// ({docnames:[...], 0:"py:class"}) into JSON.
func quoteBareKeys(src []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(src) + len(src)/8)
	inString, expectKey := false, false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			out.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				out.WriteByte(src[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString, expectKey = true, false
			out.WriteByte(c)
		case c == '{' || c == ',':
			expectKey = true
			out.WriteByte(c)
		case isSpace(c):
			out.WriteByte(c)
		case expectKey && isIdentByte(c):
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			k := j
			for k < len(src) && isSpace(src[k]) {
				k++
			}
			if k < len(src) && src[k] == ':' {
				out.WriteByte('"')
				out.Write(src[i:j])
				out.WriteByte('"')
			} else {
				out.Write(src[i:j])
			}
			i = j - 1
			expectKey = false
		default:
			expectKey = false
			out.WriteByte(c)
		}
	}
	return out.Bytes()
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

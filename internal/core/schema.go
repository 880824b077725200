package core

import "strings"

// FieldKind classifies an extracted column and decides how search values
// against it are coerced and compared.
type FieldKind int

const (
	KindToken FieldKind = iota // exact-match codes, ids, status values
	KindString                 // free text, case-insensitive prefix by default
	KindDate
	KindNumber
	KindReference     // single id pointing at another resource type
	KindReferenceList // list of ids (e.g. report result observations)
)

// Column describes one extracted field of a resource table.
type Column struct {
	Name string
	Kind FieldKind
}

// SearchParam maps one named search parameter to exactly one extracted
// column comparison. Token parameters with a SystemColumn additionally
// support the "system|code" value form.
type SearchParam struct {
	Column       string
	Kind         FieldKind
	SystemColumn string
}

// ReferenceSpec names a document element that must resolve to an existing,
// non-deleted record of Target type before a write is accepted.
type ReferenceSpec struct {
	Path   string // document element, e.g. "subject" or "result"
	Target string // expected resource type
	Many   bool   // element is an array of references
}

// Schema is the per-resource-type descriptor the engine is parameterized by.
// One schema replaces what would otherwise be a hand-written storage, search
// and validation module per resource type.
type Schema struct {
	Type        string
	Table       string
	Columns     []Column
	SearchParams map[string]SearchParam
	References  []ReferenceSpec

	// Extract derives the extracted-field set from a parsed document. It is
	// pure and total: the same document always yields the same fields, and
	// missing optional elements map to absent keys, never an error. Only a
	// structurally invalid document (wrong resourceType, malformed date,
	// missing required element) returns a *ValidationError.
	Extract func(doc map[string]interface{}) (map[string]interface{}, error)
}

// Column returns the descriptor for a named column, if the schema has it.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ParseReferenceValue splits a reference like "Patient/P1" into its type
// prefix and id. A bare id yields an empty type.
func ParseReferenceValue(raw string) (resourceType, id string) {
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	return "", raw
}

package core

import (
	"encoding/json"
	"time"
)

// Record is the hybrid storage representation of one resource: the verbatim
// document plus the scalar fields extracted from it at write time. The
// document is authoritative; Fields exist solely so the store can filter and
// index without parsing the document per query.
type Record struct {
	ID          string
	Document    json.RawMessage
	Fields      map[string]interface{} // keyed by extracted column name
	CreatedAt   time.Time
	LastUpdated time.Time
	VersionID   int
	IsDeleted   bool
}

// Lifecycle per record: Created(v=1) → Updated(v+1, any number of times) →
// SoftDeleted(v+1, terminal). There is no transition out of SoftDeleted, and
// every transition refreshes LastUpdated. The derivation of Fields from
// Document happens only here, so the two can never drift independently.

func newRecord(id string, doc json.RawMessage, fields map[string]interface{}, now time.Time) *Record {
	return &Record{
		ID:          id,
		Document:    doc,
		Fields:      fields,
		CreatedAt:   now,
		LastUpdated: now,
		VersionID:   1,
	}
}

// applyUpdate replaces the document and its derived fields and advances the
// version. The caller must have rejected soft-deleted records already.
func (r *Record) applyUpdate(doc json.RawMessage, fields map[string]interface{}, now time.Time) {
	r.Document = doc
	r.Fields = fields
	r.VersionID++
	r.LastUpdated = now
}

// applyDelete marks the record logically removed. The record stays in the
// store unchanged otherwise; only the flag and version move.
func (r *Record) applyDelete(now time.Time) {
	r.IsDeleted = true
	r.VersionID++
	r.LastUpdated = now
}

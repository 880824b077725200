package core

import (
	"encoding/json"
	"strconv"

	"github.com/labworks/lis/internal/platform/fhir"
)

// assembleBundle wraps one page of records into the searchset envelope. Each
// entry carries the verbatim document decorated with the record's id and
// meta, so callers see the authoritative payload plus version markers.
func assembleBundle(s *Schema, recs []*Record, total int, links []fhir.BundleLink) (*fhir.Bundle, error) {
	resources := make([]json.RawMessage, 0, len(recs))
	fullURLs := make([]string, 0, len(recs))
	for _, rec := range recs {
		decorated, err := DecorateDocument(rec)
		if err != nil {
			return nil, err
		}
		resources = append(resources, decorated)
		fullURLs = append(fullURLs, fhir.FormatReference(s.Type, rec.ID))
	}
	return fhir.NewSearchBundle(resources, fullURLs, total, links), nil
}

// DecorateDocument returns the record's document with the server-assigned id
// and meta (versionId, lastUpdated) merged in. The stored document itself is
// never rewritten; decoration happens only on the way out.
func DecorateDocument(rec *Record) (json.RawMessage, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Document, &doc); err != nil {
		return nil, &StoreError{Op: "decode document", Err: err}
	}
	doc["id"] = rec.ID
	doc["meta"] = fhir.Meta{
		VersionID:   strconv.Itoa(rec.VersionID),
		LastUpdated: rec.LastUpdated.UTC(),
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, &StoreError{Op: "encode document", Err: err}
	}
	return out, nil
}

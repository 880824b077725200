// Package resources holds the per-resource-type schema descriptors the
// engine is parameterized by: table layout, search parameter mappings,
// reference requirements, and the pure field-extraction functions.
package resources

import (
	"time"

	"github.com/labworks/lis/internal/core"
	"github.com/labworks/lis/internal/platform/fhir"
)

// Registry builds the descriptors for every managed resource type.
func Registry() map[string]*core.Schema {
	return map[string]*core.Schema{
		"Patient":          PatientSchema(),
		"Observation":      ObservationSchema(),
		"DiagnosticReport": DiagnosticReportSchema(),
		"ServiceRequest":   ServiceRequestSchema(),
	}
}

// -- extraction helpers, shared by all schemas --

func stringField(doc map[string]interface{}, key string) (string, bool) {
	v, ok := doc[key].(string)
	return v, ok && v != ""
}

// dateField parses a date element; absence is fine, malformation is not.
func dateField(doc map[string]interface{}, key string) (time.Time, bool, error) {
	raw, ok := stringField(doc, key)
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := fhir.ParseDate(raw)
	if err != nil {
		return time.Time{}, false, core.NewValidationError(key, "unparsable date %q", raw)
	}
	return t, true, nil
}

// concept returns the first coding's system and code from a
// CodeableConcept element, or from the first entry when the element is an
// array of concepts (e.g. category).
func concept(elem interface{}) (system, code string) {
	if arr, ok := elem.([]interface{}); ok {
		if len(arr) == 0 {
			return "", ""
		}
		elem = arr[0]
	}
	m, ok := elem.(map[string]interface{})
	if !ok {
		return "", ""
	}
	codings, ok := m["coding"].([]interface{})
	if !ok || len(codings) == 0 {
		return "", ""
	}
	coding, ok := codings[0].(map[string]interface{})
	if !ok {
		return "", ""
	}
	system, _ = coding["system"].(string)
	code, _ = coding["code"].(string)
	return system, code
}

// referenceID returns the bare id of a reference element like
// {"reference": "Patient/P1"}.
func referenceID(elem interface{}) string {
	m, ok := elem.(map[string]interface{})
	if !ok {
		return ""
	}
	raw, _ := m["reference"].(string)
	if raw == "" {
		return ""
	}
	_, id := core.ParseReferenceValue(raw)
	return id
}

// referenceIDs collects the bare ids of an array of reference elements.
func referenceIDs(elem interface{}) []string {
	arr, ok := elem.([]interface{})
	if !ok {
		return nil
	}
	var ids []string
	for _, item := range arr {
		if id := referenceID(item); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// setIf stores a non-empty string field.
func setIf(fields map[string]interface{}, col, v string) {
	if v != "" {
		fields[col] = v
	}
}

func requireString(doc map[string]interface{}, key string) (string, error) {
	v, ok := stringField(doc, key)
	if !ok {
		return "", core.NewValidationError(key, "is required")
	}
	return v, nil
}

func requirePresent(doc map[string]interface{}, key string) (interface{}, error) {
	v, ok := doc[key]
	if !ok || v == nil {
		return nil, core.NewValidationError(key, "is required")
	}
	return v, nil
}

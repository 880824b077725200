package resources

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/labworks/lis/internal/core"
)

func parseDoc(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("test document: %v", err)
	}
	return doc
}

func TestRegistry(t *testing.T) {
	reg := Registry()
	for _, rt := range []string{"Patient", "Observation", "DiagnosticReport", "ServiceRequest"} {
		s, ok := reg[rt]
		if !ok {
			t.Errorf("registry missing %s", rt)
			continue
		}
		if s.Type != rt || s.Table == "" || s.Extract == nil {
			t.Errorf("%s schema incomplete: %+v", rt, s)
		}
	}
}

func TestExtractPatient(t *testing.T) {
	doc := parseDoc(t, `{
		"resourceType": "Patient",
		"identifier": [{"system": "http://hospital.example/mrn", "value": "MRN123"}],
		"name": [{"family": "Müller", "given": ["Anna", "Marie"]}],
		"gender": "female",
		"birthDate": "1985-07-12"
	}`)

	fields, err := extractPatient(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]interface{}{
		"identifier_system": "http://hospital.example/mrn",
		"identifier_value":  "MRN123",
		"family_name":       "Müller",
		"given_name":        "Anna",
		"gender":            "female",
	}
	for col, v := range want {
		if fields[col] != v {
			t.Errorf("%s = %v, want %v", col, fields[col], v)
		}
	}
	bd, ok := fields["birth_date"].(time.Time)
	if !ok || bd.Format("2006-01-02") != "1985-07-12" {
		t.Errorf("birth_date = %v", fields["birth_date"])
	}
}

func TestExtractPatient_MinimalDocument(t *testing.T) {
	fields, err := extractPatient(parseDoc(t, `{"resourceType": "Patient"}`))
	if err != nil {
		t.Fatalf("a bare Patient must extract cleanly: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("absent elements must yield absent keys, got %+v", fields)
	}
}

func TestExtractPatient_MalformedBirthDate(t *testing.T) {
	_, err := extractPatient(parseDoc(t, `{"resourceType": "Patient", "birthDate": "12.07.1985"}`))
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestExtractObservation(t *testing.T) {
	doc := parseDoc(t, `{
		"resourceType": "Observation",
		"status": "final",
		"category": [{"coding": [{"code": "laboratory"}]}],
		"code": {"coding": [{"system": "http://loinc.org", "code": "718-7"}]},
		"subject": {"reference": "Patient/P1"},
		"effectiveDateTime": "2024-03-15T08:30:00Z",
		"valueQuantity": {"value": 13.2, "unit": "g/dL"}
	}`)

	fields, err := extractObservation(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields["status"] != "final" {
		t.Errorf("status = %v", fields["status"])
	}
	if fields["code_system"] != "http://loinc.org" || fields["code"] != "718-7" {
		t.Errorf("code = %v|%v", fields["code_system"], fields["code"])
	}
	if fields["subject_id"] != "P1" {
		t.Errorf("subject_id = %v", fields["subject_id"])
	}
	if fields["category"] != "laboratory" {
		t.Errorf("category = %v", fields["category"])
	}
	if fields["value_quantity"] != 13.2 {
		t.Errorf("value_quantity = %v", fields["value_quantity"])
	}
	if _, ok := fields["effective_datetime"].(time.Time); !ok {
		t.Errorf("effective_datetime = %v", fields["effective_datetime"])
	}
	if _, ok := fields["issued"]; ok {
		t.Error("issued was absent in the document but extracted")
	}
}

func TestExtractObservation_Required(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing status", `{"resourceType":"Observation","code":{"coding":[{"code":"718-7"}]},"subject":{"reference":"Patient/P1"}}`},
		{"missing code", `{"resourceType":"Observation","status":"final","subject":{"reference":"Patient/P1"}}`},
		{"code without coding", `{"resourceType":"Observation","status":"final","code":{"text":"hemoglobin"},"subject":{"reference":"Patient/P1"}}`},
		{"missing subject", `{"resourceType":"Observation","status":"final","code":{"coding":[{"code":"718-7"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractObservation(parseDoc(t, tt.doc))
			var verr *core.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
		})
	}
}

func TestExtractObservation_Deterministic(t *testing.T) {
	raw := `{
		"resourceType": "Observation",
		"status": "final",
		"code": {"coding": [{"system": "http://loinc.org", "code": "718-7"}]},
		"subject": {"reference": "Patient/P1"},
		"valueQuantity": {"value": 13.2}
	}`
	a, err := extractObservation(parseDoc(t, raw))
	if err != nil {
		t.Fatal(err)
	}
	b, err := extractObservation(parseDoc(t, raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("field sets differ: %v vs %v", a, b)
	}
	for k, v := range a {
		if b[k] != v {
			t.Errorf("field %s differs across runs: %v vs %v", k, v, b[k])
		}
	}
}

func TestExtractDiagnosticReport(t *testing.T) {
	doc := parseDoc(t, `{
		"resourceType": "DiagnosticReport",
		"status": "final",
		"code": {"coding": [{"system": "http://loinc.org", "code": "58410-2"}]},
		"subject": {"reference": "Patient/P1"},
		"issued": "2024-03-16T10:00:00Z",
		"result": [
			{"reference": "Observation/O1"},
			{"reference": "Observation/O2"}
		]
	}`)

	fields, err := extractDiagnosticReport(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, ok := fields["result_ids"].([]string)
	if !ok || len(ids) != 2 || ids[0] != "O1" || ids[1] != "O2" {
		t.Errorf("result_ids = %v", fields["result_ids"])
	}
	if fields["subject_id"] != "P1" || fields["code"] != "58410-2" {
		t.Errorf("fields = %+v", fields)
	}
}

func TestExtractDiagnosticReport_EmptyResults(t *testing.T) {
	doc := parseDoc(t, `{
		"resourceType": "DiagnosticReport",
		"status": "registered",
		"code": {"coding": [{"code": "58410-2"}]},
		"subject": {"reference": "Patient/P1"},
		"result": []
	}`)
	fields, err := extractDiagnosticReport(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fields["result_ids"]; ok {
		t.Errorf("empty result array should extract no list, got %v", fields["result_ids"])
	}
}

func TestExtractServiceRequest(t *testing.T) {
	doc := parseDoc(t, `{
		"resourceType": "ServiceRequest",
		"status": "active",
		"intent": "order",
		"code": {"coding": [{"system": "http://loinc.org", "code": "24331-1"}]},
		"subject": {"reference": "Patient/P1"},
		"authoredOn": "2024-03-14",
		"requester": {"reference": "Practitioner/DR9"}
	}`)

	fields, err := extractServiceRequest(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields["status"] != "active" || fields["intent"] != "order" {
		t.Errorf("status/intent = %v/%v", fields["status"], fields["intent"])
	}
	if fields["requester"] != "DR9" {
		t.Errorf("requester = %v", fields["requester"])
	}
	if fields["subject_id"] != "P1" || fields["code"] != "24331-1" {
		t.Errorf("fields = %+v", fields)
	}
}

func TestExtractServiceRequest_Required(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing status", `{"resourceType":"ServiceRequest","intent":"order","subject":{"reference":"Patient/P1"}}`},
		{"missing intent", `{"resourceType":"ServiceRequest","status":"active","subject":{"reference":"Patient/P1"}}`},
		{"missing subject", `{"resourceType":"ServiceRequest","status":"active","intent":"order"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractServiceRequest(parseDoc(t, tt.doc))
			var verr *core.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
		})
	}
}

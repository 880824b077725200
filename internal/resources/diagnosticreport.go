package resources

import "github.com/labworks/lis/internal/core"

// DiagnosticReportSchema maps the DiagnosticReport resource onto the
// diagnostic_report table. The subject must resolve to a Patient and every
// entry of result[] to an Observation; the extracted result id list lets a
// report's member observations be matched without parsing the document.
func DiagnosticReportSchema() *core.Schema {
	return &core.Schema{
		Type:  "DiagnosticReport",
		Table: "diagnostic_report",
		Columns: []core.Column{
			{Name: "subject_id", Kind: core.KindReference},
			{Name: "code_system", Kind: core.KindToken},
			{Name: "code", Kind: core.KindToken},
			{Name: "status", Kind: core.KindToken},
			{Name: "category", Kind: core.KindToken},
			{Name: "effective_datetime", Kind: core.KindDate},
			{Name: "issued", Kind: core.KindDate},
			{Name: "result_ids", Kind: core.KindReferenceList},
		},
		SearchParams: map[string]core.SearchParam{
			"patient":  {Column: "subject_id", Kind: core.KindReference},
			"subject":  {Column: "subject_id", Kind: core.KindReference},
			"code":     {Column: "code", Kind: core.KindToken, SystemColumn: "code_system"},
			"status":   {Column: "status", Kind: core.KindToken},
			"category": {Column: "category", Kind: core.KindToken},
			"date":     {Column: "effective_datetime", Kind: core.KindDate},
			"issued":   {Column: "issued", Kind: core.KindDate},
			"result":   {Column: "result_ids", Kind: core.KindReferenceList},
		},
		References: []core.ReferenceSpec{
			{Path: "subject", Target: "Patient"},
			{Path: "result", Target: "Observation", Many: true},
		},
		Extract: extractDiagnosticReport,
	}
}

func extractDiagnosticReport(doc map[string]interface{}) (map[string]interface{}, error) {
	fields := make(map[string]interface{})

	status, err := requireString(doc, "status")
	if err != nil {
		return nil, err
	}
	fields["status"] = status

	codeElem, err := requirePresent(doc, "code")
	if err != nil {
		return nil, err
	}
	system, code := concept(codeElem)
	if code == "" {
		return nil, core.NewValidationError("code", "must carry at least one coding")
	}
	setIf(fields, "code_system", system)
	fields["code"] = code

	subject, err := requirePresent(doc, "subject")
	if err != nil {
		return nil, err
	}
	if id := referenceID(subject); id != "" {
		fields["subject_id"] = id
	}

	if _, cat := concept(doc["category"]); cat != "" {
		fields["category"] = cat
	}

	if t, ok, err := dateField(doc, "effectiveDateTime"); err != nil {
		return nil, err
	} else if ok {
		fields["effective_datetime"] = t
	}
	if t, ok, err := dateField(doc, "issued"); err != nil {
		return nil, err
	} else if ok {
		fields["issued"] = t
	}

	if ids := referenceIDs(doc["result"]); len(ids) > 0 {
		fields["result_ids"] = ids
	}

	return fields, nil
}

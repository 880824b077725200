package resources

import "github.com/labworks/lis/internal/core"

// ObservationSchema maps the Observation resource onto the observation
// table. Status, code and subject are required; the subject must resolve to
// an existing Patient before a write is accepted.
func ObservationSchema() *core.Schema {
	return &core.Schema{
		Type:  "Observation",
		Table: "observation",
		Columns: []core.Column{
			{Name: "subject_id", Kind: core.KindReference},
			{Name: "code_system", Kind: core.KindToken},
			{Name: "code", Kind: core.KindToken},
			{Name: "status", Kind: core.KindToken},
			{Name: "category", Kind: core.KindToken},
			{Name: "effective_datetime", Kind: core.KindDate},
			{Name: "issued", Kind: core.KindDate},
			{Name: "value_quantity", Kind: core.KindNumber},
		},
		SearchParams: map[string]core.SearchParam{
			"patient":        {Column: "subject_id", Kind: core.KindReference},
			"subject":        {Column: "subject_id", Kind: core.KindReference},
			"code":           {Column: "code", Kind: core.KindToken, SystemColumn: "code_system"},
			"status":         {Column: "status", Kind: core.KindToken},
			"category":       {Column: "category", Kind: core.KindToken},
			"date":           {Column: "effective_datetime", Kind: core.KindDate},
			"issued":         {Column: "issued", Kind: core.KindDate},
			"value-quantity": {Column: "value_quantity", Kind: core.KindNumber},
		},
		References: []core.ReferenceSpec{
			{Path: "subject", Target: "Patient"},
		},
		Extract: extractObservation,
	}
}

func extractObservation(doc map[string]interface{}) (map[string]interface{}, error) {
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

	if vq, ok := doc["valueQuantity"].(map[string]interface{}); ok {
		if v, ok := vq["value"].(float64); ok {
			fields["value_quantity"] = v
		}
	}

	return fields, nil
}

package resources

import "github.com/labworks/lis/internal/core"

// PatientSchema maps the Patient resource onto the patient table. No element
// is strictly required; a bare {"resourceType": "Patient"} is a valid, if
// useless, record.
func PatientSchema() *core.Schema {
	return &core.Schema{
		Type:  "Patient",
		Table: "patient",
		Columns: []core.Column{
			{Name: "identifier_system", Kind: core.KindToken},
			{Name: "identifier_value", Kind: core.KindToken},
			{Name: "family_name", Kind: core.KindString},
			{Name: "given_name", Kind: core.KindString},
			{Name: "gender", Kind: core.KindToken},
			{Name: "birth_date", Kind: core.KindDate},
		},
		SearchParams: map[string]core.SearchParam{
			"identifier": {Column: "identifier_value", Kind: core.KindToken, SystemColumn: "identifier_system"},
			"family":     {Column: "family_name", Kind: core.KindString},
			"given":      {Column: "given_name", Kind: core.KindString},
			"name":       {Column: "family_name", Kind: core.KindString},
			"gender":     {Column: "gender", Kind: core.KindToken},
			"birthdate":  {Column: "birth_date", Kind: core.KindDate},
		},
		Extract: extractPatient,
	}
}

func extractPatient(doc map[string]interface{}) (map[string]interface{}, error) {
	fields := make(map[string]interface{})

	if idents, ok := doc["identifier"].([]interface{}); ok && len(idents) > 0 {
		if ident, ok := idents[0].(map[string]interface{}); ok {
			system, _ := ident["system"].(string)
			value, _ := ident["value"].(string)
			setIf(fields, "identifier_system", system)
			setIf(fields, "identifier_value", value)
		}
	}

	if names, ok := doc["name"].([]interface{}); ok && len(names) > 0 {
		if name, ok := names[0].(map[string]interface{}); ok {
			family, _ := name["family"].(string)
			setIf(fields, "family_name", family)
			if given, ok := name["given"].([]interface{}); ok && len(given) > 0 {
				g, _ := given[0].(string)
				setIf(fields, "given_name", g)
			}
		}
	}

	if gender, ok := stringField(doc, "gender"); ok {
		fields["gender"] = gender
	}

	if t, ok, err := dateField(doc, "birthDate"); err != nil {
		return nil, err
	} else if ok {
		fields["birth_date"] = t
	}

	return fields, nil
}

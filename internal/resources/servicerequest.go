package resources

import "github.com/labworks/lis/internal/core"

// ServiceRequestSchema maps the ServiceRequest resource onto the
// service_request table. The requester is stored as an opaque token and not
// validated: practitioners are not a managed resource type here.
func ServiceRequestSchema() *core.Schema {
	return &core.Schema{
		Type:  "ServiceRequest",
		Table: "service_request",
		Columns: []core.Column{
			{Name: "subject_id", Kind: core.KindReference},
			{Name: "code_system", Kind: core.KindToken},
			{Name: "code", Kind: core.KindToken},
			{Name: "status", Kind: core.KindToken},
			{Name: "intent", Kind: core.KindToken},
			{Name: "category", Kind: core.KindToken},
			{Name: "authored_on", Kind: core.KindDate},
			{Name: "requester", Kind: core.KindToken},
		},
		SearchParams: map[string]core.SearchParam{
			"patient":   {Column: "subject_id", Kind: core.KindReference},
			"subject":   {Column: "subject_id", Kind: core.KindReference},
			"code":      {Column: "code", Kind: core.KindToken, SystemColumn: "code_system"},
			"status":    {Column: "status", Kind: core.KindToken},
			"intent":    {Column: "intent", Kind: core.KindToken},
			"category":  {Column: "category", Kind: core.KindToken},
			"authored":  {Column: "authored_on", Kind: core.KindDate},
			"requester": {Column: "requester", Kind: core.KindToken},
		},
		References: []core.ReferenceSpec{
			{Path: "subject", Target: "Patient"},
		},
		Extract: extractServiceRequest,
	}
}

func extractServiceRequest(doc map[string]interface{}) (map[string]interface{}, error) {
	fields := make(map[string]interface{})

	status, err := requireString(doc, "status")
	if err != nil {
		return nil, err
	}
	fields["status"] = status

	intent, err := requireString(doc, "intent")
	if err != nil {
		return nil, err
	}
	fields["intent"] = intent

	subject, err := requirePresent(doc, "subject")
	if err != nil {
		return nil, err
	}
	if id := referenceID(subject); id != "" {
		fields["subject_id"] = id
	}

	if codeElem, ok := doc["code"]; ok && codeElem != nil {
		system, code := concept(codeElem)
		setIf(fields, "code_system", system)
		setIf(fields, "code", code)
	}

	if _, cat := concept(doc["category"]); cat != "" {
		fields["category"] = cat
	}

	if t, ok, err := dateField(doc, "authoredOn"); err != nil {
		return nil, err
	} else if ok {
		fields["authored_on"] = t
	}

	if id := referenceID(doc["requester"]); id != "" {
		fields["requester"] = id
	}

	return fields, nil
}

package core

import (
	"context"
	"fmt"
)

// referenceClaim is one reference pulled out of a document, pending
// validation against the store.
type referenceClaim struct {
	Path   string
	Target string
	Raw    string
}

// extractReferences walks the schema's reference specs over the parsed
// document. Missing optional elements yield no claims; a reference element
// that is present but malformed is a validation failure.
func extractReferences(s *Schema, doc map[string]interface{}) ([]referenceClaim, error) {
	var claims []referenceClaim
	for _, spec := range s.References {
		elem, ok := doc[spec.Path]
		if !ok || elem == nil {
			continue
		}
		if spec.Many {
			arr, ok := elem.([]interface{})
			if !ok {
				return nil, NewValidationError(spec.Path, "must be an array of references")
			}
			for _, item := range arr {
				raw, err := referenceString(item)
				if err != nil {
					return nil, NewValidationError(spec.Path, "%v", err)
				}
				claims = append(claims, referenceClaim{Path: spec.Path, Target: spec.Target, Raw: raw})
			}
		} else {
			raw, err := referenceString(elem)
			if err != nil {
				return nil, NewValidationError(spec.Path, "%v", err)
			}
			claims = append(claims, referenceClaim{Path: spec.Path, Target: spec.Target, Raw: raw})
		}
	}
	return claims, nil
}

// referenceString pulls the "reference" value out of a reference element.
func referenceString(elem interface{}) (string, error) {
	m, ok := elem.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("reference element must be an object")
	}
	raw, ok := m["reference"].(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("reference element is missing its reference value")
	}
	return raw, nil
}

// validateReferences checks every reference the document makes before a
// write is accepted. Each must carry the expected type prefix (a mismatch is
// reported distinctly from not-found) and resolve to an existing record that
// is not soft-deleted. The first failing reference short-circuits the rest.
func (e *Engine) validateReferences(ctx context.Context, s *Schema, doc map[string]interface{}) error {
	claims, err := extractReferences(s, doc)
	if err != nil {
		return err
	}

	for _, claim := range claims {
		refType, id := ParseReferenceValue(claim.Raw)
		if refType != "" && refType != claim.Target {
			return &ReferenceError{
				ResourceType: claim.Target,
				ID:           id,
				Reason:       fmt.Sprintf("expected a %s reference in %q, got %s", claim.Target, claim.Path, refType),
			}
		}

		target, ok := e.schemas[claim.Target]
		if !ok {
			return &ReferenceError{ResourceType: claim.Target, ID: id, Reason: "unknown resource type"}
		}

		exists, err := e.store.Exists(ctx, target, id)
		if err != nil {
			return &StoreError{Op: "exists", Err: err}
		}
		if !exists {
			return &ReferenceError{ResourceType: claim.Target, ID: id, Reason: "does not resolve to an existing resource"}
		}
	}
	return nil
}

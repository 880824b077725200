package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/labworks/lis/internal/platform/fhir"
)

// PredicateOp is the comparison a store applies to one extracted column.
type PredicateOp int

const (
	OpEq PredicateOp = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpBetween // inclusive range, two args
	OpLike    // case-insensitive pattern, % wildcards
	OpAny     // arg is an element of a list column
)

// Predicate is one store-level comparison. A search translates to a
// conjunctive (AND) set of these; there is no OR/NOT composition.
type Predicate struct {
	Column string
	Op     PredicateOp
	Args   []interface{}
}

// controlParam reports parameters that never translate to predicates:
// paging and other underscore-prefixed controls are handled elsewhere.
func controlParam(name string) bool {
	return strings.HasPrefix(name, "_")
}

// Translate maps named filter parameters onto predicates over the schema's
// extracted columns. Unrecognized names are ignored; a value that fails type
// coercion (an unparsable date or number) is rejected with a
// *ValidationError naming the parameter. Exclusion of soft-deleted records
// is the store's job and happens before any predicate here is applied.
func Translate(s *Schema, params map[string]string) ([]Predicate, error) {
	var preds []Predicate
	for rawName, value := range params {
		if controlParam(rawName) {
			continue
		}
		name, modifier := fhir.ParseParamModifier(rawName)
		sp, ok := s.SearchParams[name]
		if !ok {
			continue
		}

		switch sp.Kind {
		case KindToken:
			preds = append(preds, tokenPredicates(sp, value)...)
		case KindString:
			preds = append(preds, stringPredicate(sp.Column, value, modifier))
		case KindDate:
			p, err := datePredicate(sp.Column, rawName, value)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		case KindNumber:
			p, err := numberPredicate(sp.Column, rawName, value)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		case KindReference:
			_, id := ParseReferenceValue(value)
			preds = append(preds, Predicate{Column: sp.Column, Op: OpEq, Args: []interface{}{id}})
		case KindReferenceList:
			_, id := ParseReferenceValue(value)
			preds = append(preds, Predicate{Column: sp.Column, Op: OpAny, Args: []interface{}{id}})
		}
	}
	return preds, nil
}

// tokenPredicates handles the "system|code" value form: both halves present
// match both columns, a lone half matches its column alone.
func tokenPredicates(sp SearchParam, value string) []Predicate {
	if sp.SystemColumn != "" && strings.Contains(value, "|") {
		parts := strings.SplitN(value, "|", 2)
		system, code := parts[0], parts[1]
		var preds []Predicate
		if system != "" {
			preds = append(preds, Predicate{Column: sp.SystemColumn, Op: OpEq, Args: []interface{}{system}})
		}
		if code != "" {
			preds = append(preds, Predicate{Column: sp.Column, Op: OpEq, Args: []interface{}{code}})
		}
		return preds
	}
	return []Predicate{{Column: sp.Column, Op: OpEq, Args: []interface{}{value}}}
}

func stringPredicate(column, value string, modifier fhir.SearchModifier) Predicate {
	switch modifier {
	case fhir.ModifierExact:
		return Predicate{Column: column, Op: OpEq, Args: []interface{}{value}}
	case fhir.ModifierContains:
		return Predicate{Column: column, Op: OpLike, Args: []interface{}{"%" + value + "%"}}
	default:
		// Default string search: case-insensitive prefix match.
		return Predicate{Column: column, Op: OpLike, Args: []interface{}{value + "%"}}
	}
}

func datePredicate(column, param, value string) (Predicate, error) {
	parsed := fhir.ParseSearchValue(value)
	t, err := fhir.ParseDate(parsed.Value)
	if err != nil {
		return Predicate{}, NewValidationError(param, "unparsable date %q", parsed.Value)
	}

	switch parsed.Prefix {
	case fhir.PrefixGt:
		return Predicate{Column: column, Op: OpGt, Args: []interface{}{t}}, nil
	case fhir.PrefixGe:
		return Predicate{Column: column, Op: OpGe, Args: []interface{}{t}}, nil
	case fhir.PrefixLt:
		return Predicate{Column: column, Op: OpLt, Args: []interface{}{t}}, nil
	case fhir.PrefixLe:
		return Predicate{Column: column, Op: OpLe, Args: []interface{}{t}}, nil
	case fhir.PrefixNe:
		return Predicate{Column: column, Op: OpNe, Args: []interface{}{t}}, nil
	default: // eq
		// Equality on a year, month or day value matches the whole period.
		if end, ok := fhir.PeriodEnd(parsed.Value, t); ok {
			return Predicate{Column: column, Op: OpBetween, Args: []interface{}{t, end.Add(-time.Nanosecond)}}, nil
		}
		return Predicate{Column: column, Op: OpEq, Args: []interface{}{t}}, nil
	}
}

func numberPredicate(column, param, value string) (Predicate, error) {
	parsed := fhir.ParseSearchValue(value)
	n, err := strconv.ParseFloat(parsed.Value, 64)
	if err != nil {
		return Predicate{}, NewValidationError(param, "unparsable number %q", parsed.Value)
	}

	op := OpEq
	switch parsed.Prefix {
	case fhir.PrefixGt:
		op = OpGt
	case fhir.PrefixGe:
		op = OpGe
	case fhir.PrefixLt:
		op = OpLt
	case fhir.PrefixLe:
		op = OpLe
	case fhir.PrefixNe:
		op = OpNe
	}
	return Predicate{Column: column, Op: op, Args: []interface{}{n}}, nil
}

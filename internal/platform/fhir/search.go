package fhir

import (
	"fmt"
	"strings"
	"time"
)

// SearchPrefix is the ordering prefix carried on date and number search
// values (e.g. "ge2023-01-01").
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
)

// SearchModifier is the suffix on a parameter name, e.g. "name:exact".
type SearchModifier string

const (
	ModifierExact    SearchModifier = "exact"
	ModifierContains SearchModifier = "contains"
)

// ParsedSearch holds a search value split from its ordering prefix.
type ParsedSearch struct {
	Prefix SearchPrefix
	Value  string
}

// ParseSearchValue extracts the ordering prefix from a search value.
// "gt2023-01-01" -> (gt, "2023-01-01"); "100" -> (eq, "100").
func ParseSearchValue(raw string) ParsedSearch {
	if len(raw) >= 2 {
		prefix := SearchPrefix(strings.ToLower(raw[:2]))
		switch prefix {
		case PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe:
			return ParsedSearch{Prefix: prefix, Value: raw[2:]}
		}
	}
	return ParsedSearch{Prefix: PrefixEq, Value: raw}
}

// ParseParamModifier splits a parameter name from its modifier.
// "name:exact" -> ("name", exact); "code" -> ("code", "").
func ParseParamModifier(paramName string) (string, SearchModifier) {
	parts := strings.SplitN(paramName, ":", 2)
	if len(parts) == 2 {
		return parts[0], SearchModifier(parts[1])
	}
	return parts[0], ""
}

// ParseDate parses a date search value in the supported precisions, from
// full RFC3339 timestamps down to a bare year.
func ParseDate(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"2006-01",
		"2006",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

// PeriodEnd returns the exclusive upper bound of the period a date search
// value denotes: a bare year covers its twelve months, a month its days, a
// day its 24 hours. Instant-precision values carry no period and return
// ok=false.
func PeriodEnd(value string, start time.Time) (time.Time, bool) {
	switch len(value) {
	case 4: // YYYY
		return start.AddDate(1, 0, 0), true
	case 7: // YYYY-MM
		return start.AddDate(0, 1, 0), true
	case 10: // YYYY-MM-DD
		return start.AddDate(0, 0, 1), true
	}
	return time.Time{}, false
}

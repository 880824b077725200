package fhir

import (
	"testing"
	"time"
)

func TestParseSearchValue(t *testing.T) {
	tests := []struct {
		raw        string
		wantPrefix SearchPrefix
		wantValue  string
	}{
		{"gt2023-01-01", PrefixGt, "2023-01-01"},
		{"ge2023-01-01", PrefixGe, "2023-01-01"},
		{"lt100", PrefixLt, "100"},
		{"le100", PrefixLe, "100"},
		{"ne5", PrefixNe, "5"},
		{"eq5", PrefixEq, "5"},
		{"100", PrefixEq, "100"},
		{"final", PrefixEq, "final"},
		{"", PrefixEq, ""},
	}
	for _, tt := range tests {
		got := ParseSearchValue(tt.raw)
		if got.Prefix != tt.wantPrefix || got.Value != tt.wantValue {
			t.Errorf("ParseSearchValue(%q) = %+v, want (%s, %q)", tt.raw, got, tt.wantPrefix, tt.wantValue)
		}
	}
}

func TestParseParamModifier(t *testing.T) {
	name, mod := ParseParamModifier("family:exact")
	if name != "family" || mod != ModifierExact {
		t.Errorf("got (%q, %q)", name, mod)
	}
	name, mod = ParseParamModifier("code")
	if name != "code" || mod != "" {
		t.Errorf("got (%q, %q)", name, mod)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-15T08:30:00Z", "2024-03-15T08:30:00Z"},
		{"2024-03-15T08:30:00", "2024-03-15T08:30:00Z"},
		{"2024-03-15", "2024-03-15T00:00:00Z"},
		{"2024-03", "2024-03-01T00:00:00Z"},
		{"2024", "2024-01-01T00:00:00Z"},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", tt.in, err)
			continue
		}
		if got.UTC().Format(time.RFC3339) != tt.want {
			t.Errorf("ParseDate(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseDate("15.03.2024"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestPeriodEnd(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"2024-03-15", "2024-03-16T00:00:00Z"},
		{"2024-03", "2024-04-01T00:00:00Z"},
		{"2024-12", "2025-01-01T00:00:00Z"},
		{"2024", "2025-01-01T00:00:00Z"},
	}
	for _, tt := range tests {
		start, err := ParseDate(tt.value)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", tt.value, err)
		}
		end, ok := PeriodEnd(tt.value, start)
		if !ok {
			t.Errorf("PeriodEnd(%q): no period", tt.value)
			continue
		}
		if end.UTC().Format(time.RFC3339) != tt.want {
			t.Errorf("PeriodEnd(%q) = %v, want %s", tt.value, end, tt.want)
		}
	}

	start, _ := ParseDate("2024-03-15T08:30:00Z")
	if _, ok := PeriodEnd("2024-03-15T08:30:00Z", start); ok {
		t.Error("instant-precision value should carry no period")
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Patient", "P1"); got != "Patient/P1" {
		t.Errorf("got %q", got)
	}
}

package core

import (
	"net/url"
	"strconv"

	"github.com/labworks/lis/internal/platform/fhir"
)

const (
	DefaultCount = 20
	MaxCount     = 100
)

// Page holds validated paging bounds for one search.
type Page struct {
	Count  int
	Offset int
}

// ParsePage validates the _count/_offset controls. Out-of-range or
// non-numeric values are client errors raised before any store query runs;
// omitted values take their defaults.
func ParsePage(params map[string]string) (Page, error) {
	p := Page{Count: DefaultCount, Offset: 0}

	if raw, ok := params["_count"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Page{}, NewValidationError("_count", "must be an integer, got %q", raw)
		}
		if n < 1 || n > MaxCount {
			return Page{}, NewValidationError("_count", "must be between 1 and %d, got %d", MaxCount, n)
		}
		p.Count = n
	}

	if raw, ok := params["_offset"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Page{}, NewValidationError("_offset", "must be an integer, got %q", raw)
		}
		if n < 0 {
			return Page{}, NewValidationError("_offset", "must not be negative, got %d", n)
		}
		p.Offset = n
	}

	return p, nil
}

// HasNext reports whether results exist beyond the current page.
func (p Page) HasNext(total int) bool { return p.Offset+p.Count < total }

// HasPrevious reports whether the current page is not the first.
func (p Page) HasPrevious() bool { return p.Offset > 0 }

// NextOffset is the offset of the following page.
func (p Page) NextOffset() int { return p.Offset + p.Count }

// PreviousOffset is the offset of the preceding page, floored at 0.
func (p Page) PreviousOffset() int {
	prev := p.Offset - p.Count
	if prev < 0 {
		return 0
	}
	return prev
}

// BuildLinks emits self/next/previous navigation links for a page. Every
// filter parameter from the original request is re-emitted on every link,
// percent-encoded; only the paging controls change between links.
func BuildLinks(basePath string, params map[string]string, p Page, total int) []fhir.BundleLink {
	filters := url.Values{}
	for name, value := range params {
		if name == "_count" || name == "_offset" {
			continue
		}
		filters.Set(name, value)
	}

	link := func(offset int) string {
		q := url.Values{}
		for name, values := range filters {
			q[name] = values
		}
		q.Set("_count", strconv.Itoa(p.Count))
		q.Set("_offset", strconv.Itoa(offset))
		return basePath + "?" + q.Encode()
	}

	links := []fhir.BundleLink{{Relation: "self", URL: link(p.Offset)}}
	if p.HasNext(total) {
		links = append(links, fhir.BundleLink{Relation: "next", URL: link(p.NextOffset())})
	}
	if p.HasPrevious() {
		links = append(links, fhir.BundleLink{Relation: "previous", URL: link(p.PreviousOffset())})
	}
	return links
}

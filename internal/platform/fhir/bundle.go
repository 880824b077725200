package fhir

import (
	"encoding/json"
	"time"
)

// Bundle is the paginated result envelope returned by a search.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// NewSearchBundle wraps a page of matching resources into a searchset
// Bundle. Links are computed by the caller so that every active filter is
// preserved on them.
func NewSearchBundle(resources []json.RawMessage, fullURLs []string, total int, links []BundleLink) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		entries[i] = BundleEntry{
			Resource: r,
			Search:   &BundleSearch{Mode: "match"},
		}
		if i < len(fullURLs) {
			entries[i].FullURL = fullURLs[i]
		}
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         links,
		Entry:        entries,
	}
}

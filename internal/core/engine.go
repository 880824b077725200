package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/labworks/lis/internal/platform/fhir"
)

// Engine is the search, reference-integrity and pagination core, shared by
// every resource type through its schema descriptor. It holds no session
// state; each call is one bounded interaction with the store.
type Engine struct {
	store    Store
	schemas  map[string]*Schema
	basePath string
	now      func() time.Time
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the engine's id source.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithBasePath sets the path prefix used on pagination links.
func WithBasePath(base string) Option {
	return func(e *Engine) { e.basePath = base }
}

func NewEngine(store Store, schemas map[string]*Schema, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		schemas:  schemas,
		basePath: "/fhir",
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the descriptor for a resource type.
func (e *Engine) Schema(resourceType string) (*Schema, bool) {
	s, ok := e.schemas[resourceType]
	return s, ok
}

// ResourceTypes lists the types the engine manages.
func (e *Engine) ResourceTypes() []string {
	types := make([]string, 0, len(e.schemas))
	for t := range e.schemas {
		types = append(types, t)
	}
	return types
}

// prepare parses and validates a document for a write: well-formed JSON,
// matching resourceType, derivable extracted fields, and resolvable
// references. It returns the parsed document alongside the fields so callers
// never parse twice. Any failure here guarantees zero mutation.
func (e *Engine) prepare(ctx context.Context, s *Schema, document json.RawMessage) (map[string]interface{}, map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, nil, NewValidationError("", "document is not valid JSON: %v", err)
	}
	if rt, _ := doc["resourceType"].(string); rt != s.Type {
		return nil, nil, NewValidationError("resourceType", "expected %q, got %q", s.Type, doc["resourceType"])
	}

	fields, err := s.Extract(doc)
	if err != nil {
		return nil, nil, err
	}
	if err := e.validateReferences(ctx, s, doc); err != nil {
		return nil, nil, err
	}
	return doc, fields, nil
}

// Create validates the document, derives its extracted fields and persists a
// new record at version 1.
func (e *Engine) Create(ctx context.Context, resourceType string, document json.RawMessage) (*Record, error) {
	s, ok := e.schemas[resourceType]
	if !ok {
		return nil, NewValidationError("resourceType", "unsupported resource type %q", resourceType)
	}

	doc, fields, err := e.prepare(ctx, s, document)
	if err != nil {
		return nil, err
	}

	id := e.newID()
	// Client-supplied ids are honored so that references created out of band
	// (imports, fixtures) stay stable. Ids are never reused, deleted ones
	// included, so a taken id rejects the create up front.
	if docID, _ := doc["id"].(string); docID != "" {
		if _, err := e.store.Get(ctx, s, docID); err == nil {
			return nil, NewValidationError("id", "%s/%s already exists", s.Type, docID)
		} else {
			var nf *NotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
		}
		id = docID
	}

	rec := newRecord(id, document, fields, e.now())
	if err := e.store.Insert(ctx, s, rec); err != nil {
		return nil, &StoreError{Op: "insert", Err: err}
	}
	return rec, nil
}

// Update replaces the document of an existing record, re-derives the
// extracted fields and increments the version. Soft-deleted records are
// immutable and report not-found. No compare-and-swap is performed against a
// client-supplied version; concurrent writers race last-write-wins and the
// version records history only.
func (e *Engine) Update(ctx context.Context, resourceType, id string, document json.RawMessage) (*Record, error) {
	s, ok := e.schemas[resourceType]
	if !ok {
		return nil, NewValidationError("resourceType", "unsupported resource type %q", resourceType)
	}

	rec, err := e.store.Get(ctx, s, id)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted {
		return nil, &NotFoundError{ResourceType: resourceType, ID: id}
	}

	_, fields, err := e.prepare(ctx, s, document)
	if err != nil {
		return nil, err
	}

	rec.applyUpdate(document, fields, e.now())
	if err := e.store.Update(ctx, s, rec); err != nil {
		return nil, &StoreError{Op: "update", Err: err}
	}
	return rec, nil
}

// Delete soft-deletes a record: the flag is set, the version advances, and
// the record stays physically present for audit reads. Deleting an already
// deleted record reports not-found; the state is terminal.
func (e *Engine) Delete(ctx context.Context, resourceType, id string) error {
	s, ok := e.schemas[resourceType]
	if !ok {
		return NewValidationError("resourceType", "unsupported resource type %q", resourceType)
	}

	rec, err := e.store.Get(ctx, s, id)
	if err != nil {
		return err
	}
	if rec.IsDeleted {
		return &NotFoundError{ResourceType: resourceType, ID: id}
	}

	rec.applyDelete(e.now())
	if err := e.store.Update(ctx, s, rec); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

// GetByID reads one record. Soft-deleted records are returned only when
// includeDeleted is set; search enumeration never returns them regardless.
// The asymmetry supports audit workflows and is deliberate.
func (e *Engine) GetByID(ctx context.Context, resourceType, id string, includeDeleted bool) (*Record, error) {
	s, ok := e.schemas[resourceType]
	if !ok {
		return nil, NewValidationError("resourceType", "unsupported resource type %q", resourceType)
	}

	rec, err := e.store.Get(ctx, s, id)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted && !includeDeleted {
		return nil, &NotFoundError{ResourceType: resourceType, ID: id}
	}
	return rec, nil
}

// Search translates the filters, validates paging bounds before any store
// query, runs the filtered page plus total count, and assembles the result
// bundle with parameter-preserving links.
func (e *Engine) Search(ctx context.Context, resourceType string, params map[string]string) (*fhir.Bundle, error) {
	s, ok := e.schemas[resourceType]
	if !ok {
		return nil, NewValidationError("resourceType", "unsupported resource type %q", resourceType)
	}

	page, err := ParsePage(params)
	if err != nil {
		return nil, err
	}
	preds, err := Translate(s, params)
	if err != nil {
		return nil, err
	}

	recs, total, err := e.store.Search(ctx, s, preds, page.Count, page.Offset)
	if err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}

	links := BuildLinks(e.basePath+"/"+s.Type, params, page, total)
	return assembleBundle(s, recs, total, links)
}

package core

import "context"

// Store persists records for all resource types. Implementations must write
// a record's document and extracted fields atomically: a reader never
// observes one without the other reflecting the same write. Search and
// Exists exclude soft-deleted records unconditionally; Get returns them so
// audit reads by id remain possible.
type Store interface {
	Insert(ctx context.Context, s *Schema, rec *Record) error
	Get(ctx context.Context, s *Schema, id string) (*Record, error)
	Update(ctx context.Context, s *Schema, rec *Record) error
	Exists(ctx context.Context, s *Schema, id string) (bool, error)
	Search(ctx context.Context, s *Schema, preds []Predicate, limit, offset int) ([]*Record, int, error)
}

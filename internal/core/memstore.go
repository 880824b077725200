package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and by development mode when
// no database is configured. It applies the same predicate semantics as the
// SQL store so search behavior matches across the two.
type MemStore struct {
	mu      sync.RWMutex
	tables  map[string]map[string]*Record // table -> id -> record
	queries int
}

func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string]map[string]*Record)}
}

// SearchQueries reports how many search queries have been issued; paging
// validation failures must leave this untouched.
func (m *MemStore) SearchQueries() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries
}

func (m *MemStore) table(s *Schema) map[string]*Record {
	t, ok := m.tables[s.Table]
	if !ok {
		t = make(map[string]*Record)
		m.tables[s.Table] = t
	}
	return t
}

func (m *MemStore) Insert(_ context.Context, s *Schema, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Ids are never reused, mirroring the SQL store's primary key.
	if _, ok := m.table(s)[rec.ID]; ok {
		return fmt.Errorf("duplicate id %s", rec.ID)
	}
	cp := *rec
	m.table(s)[rec.ID] = &cp
	return nil
}

func (m *MemStore) Get(_ context.Context, s *Schema, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.table(s)[id]
	if !ok {
		return nil, &NotFoundError{ResourceType: s.Type, ID: id}
	}
	cp := *rec
	return &cp, nil
}

func (m *MemStore) Update(_ context.Context, s *Schema, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.table(s)[rec.ID]; !ok {
		return &NotFoundError{ResourceType: s.Type, ID: rec.ID}
	}
	cp := *rec
	m.table(s)[rec.ID] = &cp
	return nil
}

func (m *MemStore) Exists(_ context.Context, s *Schema, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.table(s)[id]
	return ok && !rec.IsDeleted, nil
}

func (m *MemStore) Search(_ context.Context, s *Schema, preds []Predicate, limit, offset int) ([]*Record, int, error) {
	m.mu.Lock()
	m.queries++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Record
	for _, rec := range m.table(s) {
		if rec.IsDeleted {
			continue
		}
		if matchesAll(rec, preds) {
			matched = append(matched, rec)
		}
	}

	// Newest first, id as tiebreak, mirroring the SQL store's ORDER BY.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]*Record, 0, end-offset)
	for _, rec := range matched[offset:end] {
		cp := *rec
		page = append(page, &cp)
	}
	return page, total, nil
}

func matchesAll(rec *Record, preds []Predicate) bool {
	for _, p := range preds {
		if !matches(rec.Fields[p.Column], p) {
			return false
		}
	}
	return true
}

func matches(value interface{}, p Predicate) bool {
	if value == nil {
		return false
	}
	switch p.Op {
	case OpEq:
		return compare(value, p.Args[0]) == 0
	case OpNe:
		c := compare(value, p.Args[0])
		return c == -1 || c == 1
	case OpGt:
		return compare(value, p.Args[0]) == 1
	case OpGe:
		c := compare(value, p.Args[0])
		return c == 0 || c == 1
	case OpLt:
		return compare(value, p.Args[0]) == -1
	case OpLe:
		c := compare(value, p.Args[0])
		return c == 0 || c == -1
	case OpBetween:
		lo := compare(value, p.Args[0])
		hi := compare(value, p.Args[1])
		return (lo == 0 || lo == 1) && (hi == 0 || hi == -1)
	case OpLike:
		s, ok := value.(string)
		if !ok {
			return false
		}
		pattern, _ := p.Args[0].(string)
		return likeMatch(s, pattern)
	case OpAny:
		list, ok := value.([]string)
		if !ok {
			return false
		}
		want, _ := p.Args[0].(string)
		for _, v := range list {
			if v == want {
				return true
			}
		}
		return false
	}
	return false
}

// compare orders two scalar values of the same kind; unequal kinds never
// match. Returns -1, 0, or 1; 2 marks incomparable values.
func compare(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 2
		}
		return strings.Compare(av, bv)
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 2
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 2
		}
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
		return 0
	}
	return 2
}

// likeMatch evaluates a SQL-ish ILIKE pattern restricted to the forms the
// translator emits: "prefix%", "%contains%", or a literal.
func likeMatch(s, pattern string) bool {
	s = strings.ToLower(s)
	pattern = strings.ToLower(pattern)
	switch {
	case strings.HasPrefix(pattern, "%") && strings.HasSuffix(pattern, "%"):
		return strings.Contains(s, strings.Trim(pattern, "%"))
	case strings.HasSuffix(pattern, "%"):
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "%"))
	case strings.HasPrefix(pattern, "%"):
		return strings.HasSuffix(s, strings.TrimPrefix(pattern, "%"))
	default:
		return s == pattern
	}
}

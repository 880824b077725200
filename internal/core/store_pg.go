package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGStore persists records in PostgreSQL, one table per resource type. The
// document and its extracted fields land in a single INSERT/UPDATE, so a
// reader can never observe them out of step.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (st *PGStore) conn() queryable { return st.pool }

const metaCols = "id, document, created_at, last_updated, version_id, is_deleted"

func selectCols(s *Schema) string {
	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		return metaCols
	}
	return metaCols + ", " + strings.Join(names, ", ")
}

func (st *PGStore) Insert(ctx context.Context, s *Schema, rec *Record) error {
	cols := []string{"id", "document", "created_at", "last_updated", "version_id", "is_deleted"}
	args := []interface{}{rec.ID, []byte(rec.Document), rec.CreatedAt, rec.LastUpdated, rec.VersionID, rec.IsDeleted}
	for _, c := range s.Columns {
		cols = append(cols, c.Name)
		args = append(args, fieldArg(rec.Fields[c.Name], c.Kind))
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	_, err := st.conn().Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		s.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", ")), args...)
	return err
}

func (st *PGStore) Get(ctx context.Context, s *Schema, id string) (*Record, error) {
	row := st.conn().QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectCols(s), s.Table), id)
	rec, err := scanRecord(s, row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{ResourceType: s.Type, ID: id}
		}
		return nil, &StoreError{Op: "get", Err: err}
	}
	return rec, nil
}

func (st *PGStore) Update(ctx context.Context, s *Schema, rec *Record) error {
	sets := []string{"document=$2", "last_updated=$3", "version_id=$4", "is_deleted=$5"}
	args := []interface{}{rec.ID, []byte(rec.Document), rec.LastUpdated, rec.VersionID, rec.IsDeleted}
	idx := 6
	for _, c := range s.Columns {
		sets = append(sets, fmt.Sprintf("%s=$%d", c.Name, idx))
		args = append(args, fieldArg(rec.Fields[c.Name], c.Kind))
		idx++
	}

	_, err := st.conn().Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = $1`, s.Table, strings.Join(sets, ", ")), args...)
	return err
}

func (st *PGStore) Exists(ctx context.Context, s *Schema, id string) (bool, error) {
	var exists bool
	err := st.conn().QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND NOT is_deleted)`, s.Table), id).Scan(&exists)
	return exists, err
}

func (st *PGStore) Search(ctx context.Context, s *Schema, preds []Predicate, limit, offset int) ([]*Record, int, error) {
	where := "NOT is_deleted"
	var args []interface{}
	idx := 1
	for _, p := range preds {
		clause, clauseArgs, next := predicateSQL(p, idx)
		where += " AND " + clause
		args = append(args, clauseArgs...)
		idx = next
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.Table, where)
	if err := st.conn().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		selectCols(s), s.Table, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := st.conn().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(s, rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// predicateSQL renders one predicate as a parameterized clause. Column names
// come from schema descriptors, never from caller input.
func predicateSQL(p Predicate, idx int) (string, []interface{}, int) {
	switch p.Op {
	case OpNe:
		return fmt.Sprintf("%s != $%d", p.Column, idx), p.Args, idx + 1
	case OpGt:
		return fmt.Sprintf("%s > $%d", p.Column, idx), p.Args, idx + 1
	case OpGe:
		return fmt.Sprintf("%s >= $%d", p.Column, idx), p.Args, idx + 1
	case OpLt:
		return fmt.Sprintf("%s < $%d", p.Column, idx), p.Args, idx + 1
	case OpLe:
		return fmt.Sprintf("%s <= $%d", p.Column, idx), p.Args, idx + 1
	case OpBetween:
		return fmt.Sprintf("(%s >= $%d AND %s <= $%d)", p.Column, idx, p.Column, idx+1), p.Args, idx + 2
	case OpLike:
		return fmt.Sprintf("%s ILIKE $%d", p.Column, idx), p.Args, idx + 1
	case OpAny:
		return fmt.Sprintf("$%d = ANY(%s)", idx, p.Column), p.Args, idx + 1
	default: // OpEq
		return fmt.Sprintf("%s = $%d", p.Column, idx), p.Args, idx + 1
	}
}

// fieldArg normalizes an extracted field for binding: absent scalars become
// NULL, absent lists become empty arrays.
func fieldArg(v interface{}, kind FieldKind) interface{} {
	if v == nil {
		if kind == KindReferenceList {
			return []string{}
		}
		return nil
	}
	return v
}

// scanRecord reads one row into a Record, mapping NULL columns to absent
// field keys so memory and SQL stores agree on field representation.
func scanRecord(s *Schema, row pgx.Row) (*Record, error) {
	rec := &Record{Fields: make(map[string]interface{}, len(s.Columns))}
	var doc []byte

	dests := []interface{}{&rec.ID, &doc, &rec.CreatedAt, &rec.LastUpdated, &rec.VersionID, &rec.IsDeleted}
	holders := make([]interface{}, len(s.Columns))
	for i, c := range s.Columns {
		switch c.Kind {
		case KindDate:
			holders[i] = new(*time.Time)
		case KindNumber:
			holders[i] = new(*float64)
		case KindReferenceList:
			holders[i] = new([]string)
		default:
			holders[i] = new(*string)
		}
		dests = append(dests, holders[i])
	}

	if err := row.Scan(dests...); err != nil {
		return nil, err
	}
	rec.Document = doc

	for i, c := range s.Columns {
		switch h := holders[i].(type) {
		case **time.Time:
			if *h != nil {
				rec.Fields[c.Name] = **h
			}
		case **float64:
			if *h != nil {
				rec.Fields[c.Name] = **h
			}
		case *[]string:
			if len(*h) > 0 {
				rec.Fields[c.Name] = *h
			}
		case **string:
			if *h != nil {
				rec.Fields[c.Name] = **h
			}
		}
	}
	return rec, nil
}

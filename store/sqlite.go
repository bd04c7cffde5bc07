package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver "sqlite3"
	_ "modernc.org/sqlite"          // SQLite driver "sqlite"

	"github.com/stevemurr/dblite/criteria"
)

// Get returns the documents matching c, lazily. Nil or empty criteria match
// every document. Result order is whatever SQLite returns. Each call issues a
// fresh query; the returned Rows must be closed or drained. Puts, commits and
// rollbacks may be interleaved with iteration; Close ends it.
func (s *Store) Get(c criteria.Criteria) (*Rows, error) {
	start := time.Now()
	rows, err := s.get(c)
	s.metrics.ObserveOp("get", start, err)
	return rows, err
}

func (s *Store) get(c criteria.Criteria) (*Rows, error) {
	if s.closed {
		return nil, newError(ErrClosed, "get", nil)
	}
	cond, err := s.compile("get", c)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, s.schema.Len()+1)
	cols = append(cols, "rowid")
	for _, name := range s.schema.Names() {
		cols = append(cols, criteria.Quote(name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), criteria.Quote(s.table))
	if !cond.Empty() {
		query += " WHERE " + cond.SQL
	}

	s.log.Debug("query", "sql", query, "args", len(cond.Args))
	rows, err := s.conn.QueryContext(s.ctx, query, cond.Args...)
	if err != nil {
		return nil, queryError(ErrConnection, "get", query, cond.Args, err)
	}
	return &Rows{store: s, rows: rows, fields: s.schema.Fields(), query: query, args: cond.Args}, nil
}

// All collects Get(c) into a slice.
func (s *Store) All(c criteria.Criteria) ([]Record, error) {
	rows, err := s.Get(c)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		out = append(out, rows.Record())
	}
	return out, rows.Err()
}

// Put inserts doc as a new row and returns its identity. Only the keys
// present in doc are written; other columns take their defaults. Every key
// must be a schema field. The autocommit policy is applied after the insert.
func (s *Store) Put(doc Document) (int64, error) {
	start := time.Now()
	id, err := s.put(doc)
	s.metrics.ObserveOp("put", start, err)
	return id, err
}

func (s *Store) put(doc Document) (int64, error) {
	if s.closed {
		return 0, newError(ErrClosed, "put", nil)
	}

	keys := s.schema.Order(doc)
	args := make([]any, len(keys))
	cols := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = criteria.Quote(k)
		args[i] = doc[k]
	}

	var query string
	if len(keys) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", criteria.Quote(s.table))
	} else {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			criteria.Quote(s.table), strings.Join(cols, ", "), marks)
	}

	if err := s.schema.Validate(doc); err != nil {
		return 0, queryError(ErrConstraint, "put", query, args, err)
	}
	bound, err := s.schema.Encode(doc)
	if err != nil {
		return 0, queryError(ErrConstraint, "put", query, args, err)
	}
	for i, k := range keys {
		args[i] = bound[k]
	}

	w, err := s.writer()
	if err != nil {
		return 0, queryError(ErrConnection, "put", query, args, err)
	}
	s.log.Debug("exec", "sql", query, "args", len(args))
	res, err := w.ExecContext(s.ctx, query, args...)
	if err != nil {
		return 0, queryError(ErrConstraint, "put", query, args, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, queryError(ErrConstraint, "put", query, args, err)
	}

	s.pending++
	if s.policy.due(s.pending) {
		if err := s.commit(true); err != nil {
			return id, err
		}
	}
	return id, nil
}

// PutMany calls Put for each document in turn, stopping at the first error.
// It is not atomic: documents already put stay committed or pending exactly
// as the autocommit policy left them.
func (s *Store) PutMany(docs []Document) error {
	for i, d := range docs {
		if _, err := s.Put(d); err != nil {
			var se *Error
			if errors.As(err, &se) {
				se.Op = fmt.Sprintf("put_many[%d]", i)
			}
			return err
		}
	}
	return nil
}

// Delete removes the documents matching c and returns how many were removed.
// Empty criteria are refused unless matchAll is set, in which case every
// document is removed. The deletion is pending until the next commit.
func (s *Store) Delete(c criteria.Criteria, matchAll bool) (int64, error) {
	start := time.Now()
	n, err := s.delete(c, matchAll)
	s.metrics.ObserveOp("delete", start, err)
	return n, err
}

func (s *Store) delete(c criteria.Criteria, matchAll bool) (int64, error) {
	if s.closed {
		return 0, newError(ErrClosed, "delete", nil)
	}
	if len(c) == 0 && !matchAll {
		return 0, newError(ErrInvalidCriteria, "delete", errors.New("criteria is not defined; pass matchAll to delete every document"))
	}
	cond, err := s.compile("delete", c)
	if err != nil {
		return 0, err
	}

	query := "DELETE FROM " + criteria.Quote(s.table)
	if !cond.Empty() {
		query += " WHERE " + cond.SQL
	}

	w, err := s.writer()
	if err != nil {
		return 0, queryError(ErrConnection, "delete", query, cond.Args, err)
	}
	s.log.Debug("exec", "sql", query, "args", len(cond.Args))
	res, err := w.ExecContext(s.ctx, query, cond.Args...)
	if err != nil {
		return 0, queryError(ErrConstraint, "delete", query, cond.Args, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queryError(ErrConstraint, "delete", query, cond.Args, err)
	}
	return n, nil
}

// Count returns the number of documents visible to this store, including
// its own uncommitted writes.
func (s *Store) Count() (int64, error) {
	start := time.Now()
	n, err := s.count()
	s.metrics.ObserveOp("count", start, err)
	return n, err
}

func (s *Store) count() (int64, error) {
	if s.closed {
		return 0, newError(ErrClosed, "count", nil)
	}
	query := "SELECT count(*) FROM " + criteria.Quote(s.table)
	s.log.Debug("query", "sql", query, "args", 0)
	var n int64
	if err := s.conn.QueryRowContext(s.ctx, query).Scan(&n); err != nil {
		return 0, queryError(ErrConnection, "count", query, nil, err)
	}
	return n, nil
}

// compile checks that c only names schema fields and compiles it.
func (s *Store) compile(op string, c criteria.Criteria) (criteria.Condition, error) {
	for _, name := range c.Fields() {
		f, ok := s.schema.Field(name)
		if !ok {
			return criteria.Condition{}, newError(ErrInvalidCriteria, op, fmt.Errorf("%w: unknown field %q", criteria.ErrInvalid, name))
		}
		if f.Serializer != "" && c[name] != nil {
			return criteria.Condition{}, newError(ErrInvalidCriteria, op, fmt.Errorf("%w: field %q is serialized (%s) and can only be matched against null", criteria.ErrInvalid, name, f.Serializer))
		}
	}
	cond, err := criteria.Compile(c)
	if err != nil {
		return criteria.Condition{}, newError(ErrInvalidCriteria, op, err)
	}
	return cond, nil
}

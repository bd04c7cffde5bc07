package store

import (
	"database/sql"
	"iter"

	"github.com/stevemurr/dblite/schema"
)

// Rows iterates over the result of Get. It is single-pass.
type Rows struct {
	store  *Store
	rows   *sql.Rows
	fields []schema.Field
	query  string
	args   []any
	cur    Record
	err    error
}

// Next advances to the next document. It returns false at the end of the
// result or on error; check Err afterwards.
func (r *Rows) Next() bool {
	if r.rows == nil {
		return false
	}
	if r.store != nil && r.store.closed {
		r.err = newError(ErrClosed, "get", nil)
		r.Close()
		return false
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			r.err = r.fail(err)
		}
		r.Close()
		return false
	}

	var id int64
	vals := make([]any, len(r.fields))
	dest := make([]any, len(r.fields)+1)
	dest[0] = &id
	for i := range vals {
		dest[i+1] = &vals[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		r.err = r.fail(err)
		r.Close()
		return false
	}

	doc := make(Document, len(r.fields))
	for i, f := range r.fields {
		if vals[i] == nil {
			continue
		}
		v, err := f.Decode(vals[i])
		if err != nil {
			r.err = queryError(ErrConstraint, "get", r.query, r.args, err)
			r.Close()
			return false
		}
		doc[f.Name] = v
	}
	r.cur = Record{ID: id, Doc: doc}
	return true
}

// fail classifies a cursor error. Once the store is closed every failure is
// reported as ErrClosed.
func (r *Rows) fail(err error) error {
	if r.store != nil && r.store.closed {
		return newError(ErrClosed, "get", nil)
	}
	return queryError(ErrConnection, "get", r.query, r.args, err)
}

// Record returns the document read by the last successful Next.
func (r *Rows) Record() Record { return r.cur }

// Err returns the error that stopped iteration, if any.
func (r *Rows) Err() error { return r.err }

// Close releases the underlying cursor. It is safe to call more than once.
func (r *Rows) Close() error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	return err
}

// Seq adapts Rows to a range-over-func iterator. The iterator closes Rows
// when it stops; check Err afterwards.
func (r *Rows) Seq() iter.Seq2[int64, Document] {
	return func(yield func(int64, Document) bool) {
		defer r.Close()
		for r.Next() {
			if !yield(r.cur.ID, r.cur.Doc) {
				return
			}
		}
	}
}

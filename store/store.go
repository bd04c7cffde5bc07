// Package store keeps loosely-typed documents in a schema-bound SQLite table.
//
// A Store owns a single connection and is not safe for concurrent use.
// Callers that share one must serialize access themselves; independent
// Stores may be opened on the same file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stevemurr/dblite/criteria"
	"github.com/stevemurr/dblite/logging"
	"github.com/stevemurr/dblite/metrics"
	"github.com/stevemurr/dblite/schema"
)

// Document maps field names to scalar values. The row identity is not part
// of it.
type Document = map[string]any

// Record is a stored document together with its identity.
type Record struct {
	ID  int64    `json:"id" yaml:"id"`
	Doc Document `json:"document" yaml:"document"`
}

// Options configures Open.
type Options struct {
	// Backend kind. Empty means "sqlite".
	Backend string

	// Location is the database file, or ":memory:".
	Location string

	// Table holds the documents. Created if absent.
	Table string

	Schema *schema.Schema

	Autocommit Autocommit

	// Driver selects the SQLite driver: DriverCgo (default) or DriverPure.
	Driver string

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Store is an open, schema-bound table.
type Store struct {
	db   *sql.DB
	conn *sql.Conn
	tx   *sql.Tx

	// ctx scopes every statement; Close cancels it so results still held
	// by callers cannot keep the connection open.
	ctx    context.Context
	cancel context.CancelFunc

	table   string
	schema  *schema.Schema
	policy  Autocommit
	pending int
	closed  bool
	log     *slog.Logger
	metrics *metrics.Metrics
}

// querier is satisfied by both *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open validates opts, connects and creates the table if it does not exist.
// Opening an existing table leaves its rows untouched.
func Open(opts Options) (*Store, error) {
	driver, err := driverFor(opts.Backend, opts.Driver)
	if err != nil {
		return nil, err
	}
	switch {
	case opts.Location == "":
		return nil, newError(ErrConfiguration, "open", errors.New("empty database location"))
	case opts.Table == "":
		return nil, newError(ErrConfiguration, "open", errors.New("empty table name"))
	case !criteria.ValidIdent(opts.Table):
		return nil, newError(ErrConfiguration, "open", fmt.Errorf("bad table name %q", opts.Table))
	case opts.Schema == nil || opts.Schema.Len() == 0:
		return nil, newError(ErrConfiguration, "open", errors.New("no schema fields"))
	}
	if err := opts.Autocommit.validate(); err != nil {
		return nil, newError(ErrConfiguration, "open", err)
	}

	ctx := context.Background()
	db, err := sql.Open(driver, opts.Location)
	if err != nil {
		return nil, newError(ErrConnection, "open", fmt.Errorf("%w, database: %s", err, opts.Location))
	}
	conn, err := db.Conn(ctx)
	if err == nil {
		err = conn.PingContext(ctx)
	}
	if err == nil {
		_, err = conn.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	}
	if err == nil {
		_, err = conn.ExecContext(ctx, "PRAGMA busy_timeout=5000")
	}
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		db.Close()
		return nil, newError(ErrConnection, "open", fmt.Errorf("%w, database: %s", err, opts.Location))
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:      db,
		conn:    conn,
		ctx:     sctx,
		cancel:  cancel,
		table:   opts.Table,
		schema:  opts.Schema,
		policy:  opts.Autocommit,
		log:     logging.For("store").With("table", opts.Table),
		metrics: opts.Metrics,
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", criteria.Quote(s.table), s.schema.Columns())
	if _, err := conn.ExecContext(ctx, create); err != nil {
		cancel()
		conn.Close()
		db.Close()
		return nil, queryError(ErrSchema, "open", create, nil, err)
	}

	s.log.Info("store opened",
		"location", opts.Location,
		"driver", driver,
		"fields", s.schema.Names(),
		"autocommit", s.policy.String(),
	)
	return s, nil
}

// Fields returns the schema field names in order.
func (s *Store) Fields() []string { return s.schema.Names() }

// Schema returns the schema bound at open time.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Table returns the table name.
func (s *Store) Table() string { return s.table }

// Pending returns the number of puts since the last commit.
func (s *Store) Pending() int { return s.pending }

// Commit flushes pending writes. It is a no-op when nothing is pending.
func (s *Store) Commit() error {
	if s.closed {
		return newError(ErrClosed, "commit", nil)
	}
	return s.commit(false)
}

func (s *Store) commit(auto bool) error {
	s.pending = 0
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return newError(ErrConstraint, "commit", err)
	}
	s.metrics.Commit(auto)
	s.log.Debug("committed", "auto", auto)
	return nil
}

// Rollback discards pending writes.
func (s *Store) Rollback() error {
	if s.closed {
		return newError(ErrClosed, "rollback", nil)
	}
	s.pending = 0
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return newError(ErrConnection, "rollback", err)
	}
	return nil
}

// Close releases the connection. Uncommitted writes are discarded and Rows
// still open are ended. Closing twice returns ErrClosed.
func (s *Store) Close() error {
	if s.closed {
		return newError(ErrClosed, "close", nil)
	}
	s.closed = true

	var errs []error
	if s.tx != nil {
		s.log.Warn("closing with uncommitted writes, discarding", "pending", s.pending)
		errs = append(errs, s.tx.Rollback())
		s.tx = nil
	}
	s.pending = 0
	s.cancel()
	errs = append(errs, s.conn.Close(), s.db.Close())

	var failed []error
	for _, err := range errs {
		if err == nil || errors.Is(err, sql.ErrTxDone) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.Canceled) {
			continue
		}
		failed = append(failed, err)
	}
	if len(failed) > 0 {
		return newError(ErrConnection, "close", errors.Join(failed...))
	}
	s.log.Info("store closed")
	return nil
}

// writer returns the open transaction, beginning one if needed. Reads go
// through s.conn directly: it is the same SQLite connection, so they see the
// transaction's writes, and a commit does not end them.
func (s *Store) writer() (querier, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.conn.BeginTx(s.ctx, nil)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	return tx, nil
}

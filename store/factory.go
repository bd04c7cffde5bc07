package store

import (
	"fmt"
	"strings"
)

// BackendSQLite is the only supported backend kind.
const BackendSQLite = "sqlite"

// Driver names registered with database/sql.
const (
	// DriverCgo is github.com/mattn/go-sqlite3.
	DriverCgo = "sqlite3"
	// DriverPure is modernc.org/sqlite.
	DriverPure = "sqlite"
)

// ParseURI splits "sqlite://<location>:<table>" into its parts. The table is
// taken after the last colon, so "sqlite://:memory::people" works.
func ParseURI(uri string) (backend, location, table string, err error) {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return "", "", "", newError(ErrConfiguration, "open", fmt.Errorf("incorrect URI %q", uri))
	}
	backend, rest := uri[:i], uri[i+3:]
	if _, err := driverFor(backend, ""); err != nil {
		return "", "", "", err
	}
	j := strings.LastIndex(rest, ":")
	if j < 0 {
		return "", "", "", newError(ErrConfiguration, "open", fmt.Errorf("URI %q has no table name", uri))
	}
	return backend, rest[:j], rest[j+1:], nil
}

// OpenURI opens the store named by uri. Backend, Location and Table in opts
// are overwritten by the URI.
func OpenURI(uri string, opts Options) (*Store, error) {
	backend, location, table, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	opts.Backend, opts.Location, opts.Table = backend, location, table
	return Open(opts)
}

// driverFor resolves the database/sql driver for a backend kind.
//
// Supported backends:
//
//	"sqlite" - SQLite via mattn/go-sqlite3 ("sqlite3", default) or
//	           modernc.org/sqlite ("sqlite")
func driverFor(backend, driver string) (string, error) {
	switch backend {
	case BackendSQLite, "":
		switch driver {
		case "", DriverCgo:
			return DriverCgo, nil
		case DriverPure:
			return DriverPure, nil
		default:
			return "", newError(ErrConfiguration, "open", fmt.Errorf("unknown sqlite driver %q (supported: %s, %s)", driver, DriverCgo, DriverPure))
		}
	default:
		return "", newError(ErrUnsupportedBackend, "open", fmt.Errorf("%q (supported: %s)", backend, BackendSQLite))
	}
}

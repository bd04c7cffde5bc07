// Command dblite stores schema-bound documents in a SQLite table and serves
// them over a small CLI, an interactive shell and an HTTP API.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/stevemurr/dblite/config"
	"github.com/stevemurr/dblite/logging"
	"github.com/stevemurr/dblite/metrics"
	"github.com/stevemurr/dblite/schema"
	"github.com/stevemurr/dblite/store"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitGeneral = 1
	ExitConfig  = 2
	ExitStore   = 3
)

const usageText = `Usage: dblite <command> [options]

Commands:
  serve     Serve the store over HTTP
  get       Print documents matching --where
  put       Insert documents given as arguments or NDJSON on stdin
  delete    Delete documents matching --where (or --all)
  count     Print the number of documents
  export    Write every document to a file
  shell     Interactive shell

Global options (every command):
  --config FILE        Config file (json, yaml or toml)
  --uri URI            sqlite://<path>:<table>
  --driver NAME        sqlite3 (cgo, default) or sqlite (pure Go)
  --schema FILE        Schema descriptor file
  --fields DEFS        Field definitions, e.g. --fields "name TEXT" --fields "age INTEGER"
  --autocommit POLICY  false, true or N
  --log-level LEVEL    debug, info, warn or error
  --log-format FORMAT  text or json

Environment variables DBLITE_<KEY> (DBLITE_URI, DBLITE_FIELDS, DBLITE_LOG_LEVEL, ...)
override the config file; flags override both.

Run 'dblite <command> --help' for command options.
`

func main() {
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	os.Exit(c.run(os.Args[1:]))
}

// cli carries the process streams so commands can be driven from tests.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (c *cli) run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(c.stderr, usageText)
		return ExitConfig
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return c.runServe(rest)
	case "get":
		return c.runGet(rest)
	case "put":
		return c.runPut(rest)
	case "delete":
		return c.runDelete(rest)
	case "count":
		return c.runCount(rest)
	case "export":
		return c.runExport(rest)
	case "shell":
		return c.runShell(rest)
	case "help", "-h", "--help":
		fmt.Fprint(c.stdout, usageText)
		return ExitOK
	default:
		fmt.Fprintf(c.stderr, "Error: unknown command %q\n\n%s", cmd, usageText)
		return ExitConfig
	}
}

// flagSet returns a flag set carrying the global flags.
func (c *cli) flagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: dblite %s [options]\n\n%s\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

// setup parses args, loads the configuration and initialises logging.
// A non-zero code means the command should stop with it.
func (c *cli) setup(fs *pflag.FlagSet, args []string) (*config.Config, int) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ExitOK
		}
		return nil, ExitConfig
	}
	path, _ := fs.GetString("config")
	cfg, err := config.Load(path, fs)
	if err != nil {
		return nil, c.fail(err)
	}
	logging.InitWriter(c.stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, ExitOK
}

// open opens the configured store, creating the database directory if
// needed.
func (c *cli) open(cfg *config.Config, m *metrics.Metrics) (*store.Store, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	if opts.Location != ":memory:" {
		if dir := filepath.Dir(opts.Location); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: creating %s: %w", store.ErrConnection, dir, err)
			}
		}
	}
	opts.Metrics = m
	return store.Open(opts)
}

// fail prints err and maps it to an exit code.
func (c *cli) fail(err error) int {
	fmt.Fprintf(c.stderr, "Error: %v\n", err)
	switch {
	case errors.Is(err, config.ErrInvalid),
		errors.Is(err, schema.ErrInvalid),
		errors.Is(err, store.ErrInvalidCriteria),
		errors.Is(err, store.ErrConfiguration),
		errors.Is(err, store.ErrUnsupportedBackend):
		return ExitConfig
	case errors.Is(err, store.ErrConnection),
		errors.Is(err, store.ErrConstraint),
		errors.Is(err, store.ErrClosed):
		return ExitStore
	default:
		return ExitGeneral
	}
}

// closeStore closes s, reporting but otherwise ignoring failures.
func (c *cli) closeStore(s *store.Store) {
	if err := s.Close(); err != nil {
		fmt.Fprintf(c.stderr, "Warning: %v\n", err)
	}
}

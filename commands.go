package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/stevemurr/dblite/criteria"
	"github.com/stevemurr/dblite/handler"
	"github.com/stevemurr/dblite/logging"
	"github.com/stevemurr/dblite/metrics"
	"github.com/stevemurr/dblite/store"
)

func (c *cli) runServe(args []string) int {
	fs := c.flagSet("serve", "Serve the store over HTTP until interrupted.")
	fs.String("listen", "0.0.0.0:8080", "Listen address")
	fs.StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")
	cfg, code := c.setup(fs, args)
	if cfg == nil {
		return code
	}

	m := metrics.New()
	s, err := c.open(cfg, m)
	if err != nil {
		return c.fail(err)
	}
	defer c.closeStore(s)

	log := logging.For("serve")
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler.CORS(handler.New(s, m), cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Listen, "table", s.Table())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return c.fail(err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "err", err)
		}
	}

	// Requests have drained, so the store is ours again.
	if err := s.Commit(); err != nil {
		return c.fail(err)
	}
	return ExitOK
}

func (c *cli) runGet(args []string) int {
	fs := c.flagSet("get", "Print the documents matching --where, one per line.")
	where := fs.String("where", "", `Criteria as JSON, e.g. '{"age":{"op":">","value":30}}'`)
	format := fs.String("format", "json", "Output format: json (one record per line) or yaml")
	cfg, code := c.setup(fs, args)
	if cfg == nil {
		return code
	}
	if *format != "json" && *format != "yaml" {
		return c.fail(fmt.Errorf("%w: unknown format %q", store.ErrConfiguration, *format))
	}

	crit, err := criteria.ParseString(*where)
	if err != nil {
		return c.fail(err)
	}
	s, err := c.open(cfg, nil)
	if err != nil {
		return c.fail(err)
	}
	defer c.closeStore(s)

	rows, err := s.Get(crit)
	if err != nil {
		return c.fail(err)
	}
	defer rows.Close()

	if *format == "yaml" {
		var recs []store.Record
		for rows.Next() {
			recs = append(recs, rows.Record())
		}
		if err := rows.Err(); err != nil {
			return c.fail(err)
		}
		if err := writeYAML(c.stdout, recs); err != nil {
			return c.fail(err)
		}
		return ExitOK
	}

	enc := json.NewEncoder(c.stdout)
	for rows.Next() {
		if err := enc.Encode(rows.Record()); err != nil {
			return c.fail(err)
		}
	}
	if err := rows.Err(); err != nil {
		return c.fail(err)
	}
	return ExitOK
}

func (c *cli) runPut(args []string) int {
	fs := c.flagSet("put", "Insert documents. Each argument is one JSON object; with no\n"+
		"arguments, documents are read from stdin, one JSON object per line.\n"+
		"Everything is committed before exit.")
	cfg, code := c.setup(fs, args)
	if cfg == nil {
		return code
	}

	s, err := c.open(cfg, nil)
	if err != nil {
		return c.fail(err)
	}
	defer c.closeStore(s)

	put := func(line string) error {
		doc, err := parseDocument(line)
		if err != nil {
			return err
		}
		id, err := s.Put(doc)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, id)
		return nil
	}

	if docs := fs.Args(); len(docs) > 0 {
		for _, d := range docs {
			if err := put(d); err != nil {
				return c.fail(err)
			}
		}
	} else {
		sc := bufio.NewScanner(c.stdin)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for n := 1; sc.Scan(); n++ {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if err := put(line); err != nil {
				return c.fail(fmt.Errorf("line %d: %w", n, err))
			}
		}
		if err := sc.Err(); err != nil {
			return c.fail(err)
		}
	}

	if err := s.Commit(); err != nil {
		return c.fail(err)
	}
	return ExitOK
}

func (c *cli) runDelete(args []string) int {
	fs := c.flagSet("delete", "Delete the documents matching --where. Deleting everything needs --all.")
	where := fs.String("where", "", "Criteria as JSON")
	all := fs.Bool("all", false, "Delete every document")
	cfg, code := c.setup(fs, args)
	if cfg == nil {
		return code
	}

	crit, err := criteria.ParseString(*where)
	if err != nil {
		return c.fail(err)
	}
	s, err := c.open(cfg, nil)
	if err != nil {
		return c.fail(err)
	}
	defer c.closeStore(s)

	n, err := s.Delete(crit, *all)
	if err != nil {
		return c.fail(err)
	}
	if err := s.Commit(); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "deleted %d\n", n)
	return ExitOK
}

func (c *cli) runCount(args []string) int {
	fs := c.flagSet("count", "Print the number of documents.")
	cfg, code := c.setup(fs, args)
	if cfg == nil {
		return code
	}

	s, err := c.open(cfg, nil)
	if err != nil {
		return c.fail(err)
	}
	defer c.closeStore(s)

	n, err := s.Count()
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprintln(c.stdout, n)
	return ExitOK
}

func (c *cli) runExport(args []string) int {
	fs := c.flagSet("export", "Write every document matching --where to a file. The file is\n"+
		"replaced atomically.")
	out := fs.StringP("out", "o", "", "Output file (required)")
	where := fs.String("where", "", "Criteria as JSON")
	format := fs.String("format", "json", "Output format: json or yaml")
	cfg, code := c.setup(fs, args)
	if cfg == nil {
		return code
	}
	if *out == "" {
		return c.fail(fmt.Errorf("%w: --out is required", store.ErrConfiguration))
	}

	crit, err := criteria.ParseString(*where)
	if err != nil {
		return c.fail(err)
	}
	s, err := c.open(cfg, nil)
	if err != nil {
		return c.fail(err)
	}
	defer c.closeStore(s)

	recs, err := s.All(crit)
	if err != nil {
		return c.fail(err)
	}
	if recs == nil {
		recs = []store.Record{}
	}

	var buf bytes.Buffer
	switch *format {
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(recs)
	case "yaml":
		err = writeYAML(&buf, recs)
	default:
		err = fmt.Errorf("%w: unknown format %q", store.ErrConfiguration, *format)
	}
	if err != nil {
		return c.fail(err)
	}

	if err := atomic.WriteFile(*out, &buf); err != nil {
		return c.fail(fmt.Errorf("cannot write to %s: %w", *out, err))
	}
	fmt.Fprintf(c.stderr, "Exported %d documents to %s\n", len(recs), *out)
	return ExitOK
}

// parseDocument decodes one JSON object. Integral numbers become int64.
func parseDocument(text string) (store.Document, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid document: %w", store.ErrConstraint, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", store.ErrConstraint)
	}
	return criteria.NormalizeMap(doc), nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stevemurr/dblite/schema"
	"github.com/stevemurr/dblite/store"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errb bytes.Buffer
	c := &cli{stdin: strings.NewReader(stdin), stdout: &out, stderr: &errb}
	code := c.run(args)
	return result{code: code, stdout: out.String(), stderr: errb.String()}
}

func storeArgs(t *testing.T) []string {
	t.Helper()
	uri := "sqlite://" + filepath.Join(t.TempDir(), "data", "cli.db") + ":people"
	return []string{"--uri", uri, "--fields", "name TEXT", "--fields", "age INTEGER", "--log-level", "error"}
}

func TestUsage(t *testing.T) {
	if r := runCLI(t, ""); r.code != ExitConfig {
		t.Fatalf("no args: code %d", r.code)
	}
	if r := runCLI(t, "", "frobnicate"); r.code != ExitConfig {
		t.Fatalf("unknown command: code %d", r.code)
	}
	if r := runCLI(t, "", "help"); r.code != ExitOK || !strings.Contains(r.stdout, "Commands:") {
		t.Fatalf("help: %+v", r)
	}
}

func TestMissingConfiguration(t *testing.T) {
	r := runCLI(t, "", "count", "--fields", "name TEXT")
	if r.code != ExitConfig {
		t.Fatalf("expected ExitConfig, got %d (%s)", r.code, r.stderr)
	}
	r = runCLI(t, "", "count", "--uri", "sqlite://"+filepath.Join(t.TempDir(), "x.db")+":t")
	if r.code != ExitConfig {
		t.Fatalf("expected ExitConfig, got %d (%s)", r.code, r.stderr)
	}
}

func TestPutGetCount(t *testing.T) {
	args := storeArgs(t)

	r := runCLI(t, "", append([]string{"put"}, append(args, `{"name":"ann","age":31}`, `{"name":"bob","age":25}`)...)...)
	if r.code != ExitOK {
		t.Fatalf("put: %d %s", r.code, r.stderr)
	}
	if r.stdout != "1\n2\n" {
		t.Fatalf("put ids = %q", r.stdout)
	}

	r = runCLI(t, "", append([]string{"count"}, args...)...)
	if strings.TrimSpace(r.stdout) != "2" {
		t.Fatalf("count = %q", r.stdout)
	}

	r = runCLI(t, "", append([]string{"get", "--where", `{"age":{"op":">","value":30}}`}, args...)...)
	if r.code != ExitOK {
		t.Fatalf("get: %d %s", r.code, r.stderr)
	}
	var rec struct {
		ID       int64          `json:"id"`
		Document map[string]any `json:"document"`
	}
	if err := json.Unmarshal([]byte(r.stdout), &rec); err != nil {
		t.Fatalf("get output %q: %v", r.stdout, err)
	}
	want := map[string]any{"name": "ann", "age": float64(31)}
	if diff := cmp.Diff(want, rec.Document); diff != "" {
		t.Errorf("get mismatch (-want +got):\n%s", diff)
	}

	r = runCLI(t, "", append([]string{"get", "--format", "yaml"}, args...)...)
	if r.code != ExitOK || !strings.Contains(r.stdout, "name: bob") {
		t.Fatalf("yaml get: %+v", r)
	}
}

func TestPutFromStdin(t *testing.T) {
	args := storeArgs(t)
	in := `{"name":"a"}

{"name":"b","age":2}
`
	r := runCLI(t, in, append([]string{"put"}, args...)...)
	if r.code != ExitOK {
		t.Fatalf("put: %d %s", r.code, r.stderr)
	}
	r = runCLI(t, "", append([]string{"count"}, args...)...)
	if strings.TrimSpace(r.stdout) != "2" {
		t.Fatalf("count = %q", r.stdout)
	}

	r = runCLI(t, `{"height":3}`, append([]string{"put"}, args...)...)
	if r.code != ExitStore {
		t.Fatalf("unknown field: expected ExitStore, got %d", r.code)
	}
	r = runCLI(t, `not json`, append([]string{"put"}, args...)...)
	if r.code != ExitStore || !strings.Contains(r.stderr, "line 1") {
		t.Fatalf("bad json: %+v", r)
	}
}

func TestDelete(t *testing.T) {
	args := storeArgs(t)
	runCLI(t, "", append([]string{"put"}, append(args, `{"name":"a"}`, `{"name":"b"}`, `{"name":"c"}`)...)...)

	r := runCLI(t, "", append([]string{"delete"}, args...)...)
	if r.code != ExitConfig {
		t.Fatalf("guarded delete: expected ExitConfig, got %d", r.code)
	}

	r = runCLI(t, "", append([]string{"delete", "--where", `{"name":"a"}`}, args...)...)
	if r.stdout != "deleted 1\n" {
		t.Fatalf("delete = %q (%s)", r.stdout, r.stderr)
	}

	r = runCLI(t, "", append([]string{"delete", "--all"}, args...)...)
	if r.stdout != "deleted 2\n" {
		t.Fatalf("delete --all = %q", r.stdout)
	}
}

func TestExport(t *testing.T) {
	args := storeArgs(t)
	runCLI(t, "", append([]string{"put"}, append(args, `{"name":"a","age":1}`, `{"name":"b"}`)...)...)

	out := filepath.Join(t.TempDir(), "export.json")
	r := runCLI(t, "", append([]string{"export", "--out", out}, args...)...)
	if r.code != ExitOK {
		t.Fatalf("export: %d %s", r.code, r.stderr)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var recs []store.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatal(err)
	}
	want := []store.Record{
		{ID: 1, Doc: store.Document{"name": "a", "age": float64(1)}},
		{ID: 2, Doc: store.Document{"name": "b"}},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}

	if r := runCLI(t, "", append([]string{"export"}, args...)...); r.code != ExitConfig {
		t.Fatalf("missing --out: code %d", r.code)
	}
}

func TestShellExec(t *testing.T) {
	sch, err := schema.Parse("name TEXT", "age INTEGER")
	if err != nil {
		t.Fatal(err)
	}
	s, err := store.Open(store.Options{
		Location:   filepath.Join(t.TempDir(), "shell.db"),
		Table:      "people",
		Schema:     sch,
		Autocommit: store.Never(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var out bytes.Buffer
	sh := &shell{store: s, out: &out}

	steps := []struct {
		line string
		want string
	}{
		{`put {"name": "ann", "age": 31}`, "put 1 (pending 1)\n"},
		{`pending`, "1\n"},
		{`get {"name": "ann"}`, "1\t{\"age\":31,\"name\":\"ann\"}\n(1 documents)\n"},
		{`rollback`, "rolled back\n"},
		{`count`, "0\n"},
		{`put {"name": "bob"}`, "put 1 (pending 1)\n"},
		{`commit`, "committed\n"},
		{`delete all`, "deleted 1\n"},
		{`fields`, "name\tTEXT\nage\tINTEGER\n"},
		{`frob`, "Unknown command: frob (type 'help' for commands)\n"},
	}
	for _, st := range steps {
		out.Reset()
		if sh.exec(st.line) {
			t.Fatalf("%q: unexpected exit", st.line)
		}
		if out.String() != st.want {
			t.Errorf("%q: got %q, want %q", st.line, out.String(), st.want)
		}
	}

	out.Reset()
	sh.exec(`delete`)
	if !strings.HasPrefix(out.String(), "Error: usage") {
		t.Errorf("bare delete: %q", out.String())
	}
	if !sh.exec("exit") {
		t.Error("exit did not stop the shell")
	}
}

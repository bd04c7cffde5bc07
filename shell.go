package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/stevemurr/dblite/criteria"
	"github.com/stevemurr/dblite/store"
)

var shellCommands = []string{
	"get", "put", "delete", "count", "commit", "rollback",
	"fields", "pending", "help", "exit",
}

func (c *cli) runShell(args []string) int {
	fs := c.flagSet("shell", "Interactive shell over one store.")
	cfg, code := c.setup(fs, args)
	if cfg == nil {
		return code
	}

	s, err := c.open(cfg, nil)
	if err != nil {
		return c.fail(err)
	}
	defer c.closeStore(s)

	sh := &shell{store: s, out: c.stdout}
	if err := sh.Run(); err != nil {
		return c.fail(err)
	}
	return ExitOK
}

// shell is the interactive command loop.
type shell struct {
	store *store.Store
	out   io.Writer
	liner *liner.State
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dblite_history")
}

// Run reads commands until exit or end of input.
func (sh *shell) Run() error {
	sh.liner = liner.NewLiner()
	defer sh.liner.Close()

	sh.liner.SetCtrlCAborts(true)
	sh.liner.SetCompleter(sh.completer)

	if f, err := os.Open(historyFile()); err == nil {
		sh.liner.ReadHistory(f)
		f.Close()
	}
	defer sh.saveHistory()

	fmt.Fprintf(sh.out, "dblite - table %s (%s)\n", sh.store.Table(), strings.Join(sh.store.Fields(), ", "))
	fmt.Fprintln(sh.out, "Type 'help' for available commands.")

	for {
		line, err := sh.liner.Prompt("dblite> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(sh.out, "\nBye!")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sh.liner.AppendHistory(line)

		if sh.exec(line) {
			fmt.Fprintln(sh.out, "Bye!")
			return nil
		}
	}
}

func (sh *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			sh.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (sh *shell) completer(line string) []string {
	var out []string
	for _, cmd := range shellCommands {
		if strings.HasPrefix(cmd, strings.ToLower(line)) {
			out = append(out, cmd)
		}
	}
	return out
}

// exec runs one command line. It reports whether the shell should exit.
// Arguments are the raw remainder of the line, so JSON may contain spaces.
func (sh *shell) exec(line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch strings.ToLower(cmd) {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		sh.printHelp()
	case "get", "ls":
		err = sh.cmdGet(arg)
	case "put":
		err = sh.cmdPut(arg)
	case "delete", "del":
		err = sh.cmdDelete(arg)
	case "count":
		var n int64
		if n, err = sh.store.Count(); err == nil {
			fmt.Fprintln(sh.out, n)
		}
	case "commit":
		if err = sh.store.Commit(); err == nil {
			fmt.Fprintln(sh.out, "committed")
		}
	case "rollback":
		if err = sh.store.Rollback(); err == nil {
			fmt.Fprintln(sh.out, "rolled back")
		}
	case "fields":
		for _, f := range sh.store.Schema().Fields() {
			fmt.Fprintf(sh.out, "%s\t%s\n", f.Name, f.Type)
		}
	case "pending":
		fmt.Fprintln(sh.out, sh.store.Pending())
	default:
		fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(sh.out, "Error: %v\n", err)
	}
	return false
}

func (sh *shell) cmdGet(arg string) error {
	crit, err := criteria.ParseString(arg)
	if err != nil {
		return err
	}
	rows, err := sh.store.Get(crit)
	if err != nil {
		return err
	}
	n := 0
	for id, doc := range rows.Seq() {
		b, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%d\t%s\n", id, b)
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "(%d documents)\n", n)
	return nil
}

func (sh *shell) cmdPut(arg string) error {
	if arg == "" {
		return errors.New("usage: put <json-object>")
	}
	doc, err := parseDocument(arg)
	if err != nil {
		return err
	}
	id, err := sh.store.Put(doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "put %d (pending %d)\n", id, sh.store.Pending())
	return nil
}

func (sh *shell) cmdDelete(arg string) error {
	if arg == "" {
		return errors.New("usage: delete <criteria-json> | delete all")
	}
	var (
		crit criteria.Criteria
		all  bool
		err  error
	)
	if arg == "all" {
		all = true
	} else if crit, err = criteria.ParseString(arg); err != nil {
		return err
	}
	n, err := sh.store.Delete(crit, all)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "deleted %d\n", n)
	return nil
}

func (sh *shell) printHelp() {
	fmt.Fprint(sh.out, `Commands:
  get [criteria]        List documents, e.g. get {"age":{"op":">","value":30}}
  put <document>        Insert a document, e.g. put {"name":"ann","age":31}
  delete <criteria|all> Delete matching documents
  count                 Number of documents
  commit                Commit pending writes
  rollback              Discard pending writes
  fields                Show the schema
  pending               Puts since the last commit
  help                  This help
  exit                  Leave (uncommitted writes are discarded)
`)
}

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tuannm99/novastore"
	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/record"
)

var (
	errUsage = errors.New("usage")
	errQuit  = errors.New("quit")
)

const helpText = `commands:
  create <table> <name>:<type>[:pk|:notnull|:unique]...
  drop <table>
  tables
  insert <table> <value>...
  get <table> <key>
  update <table> <key> <value>...
  delete <table> <key>
  scan <table>
  range <table> <lo> <hi>
  pages <table>
  alter <table> add <name>:<type>[:flags] [default]
  alter <table> drop <name>
  flush
  help
  exit | quit

types: int, double, bool, char(N), varchar(N)
values: 42, 1.5, true, 'quoted text', null`

type shell struct {
	db  *novastore.Database
	out io.Writer
}

// exec runs one command line. It returns errQuit for exit.
func (s *shell) exec(line string) error {
	args, err := tokenize(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "exit", "quit", `\q`:
		return errQuit
	case "help", `\help`:
		fmt.Fprintln(s.out, helpText)
		return nil
	case "tables":
		return s.tables()
	case "flush":
		if err := s.db.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK")
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("%w: %s <table> ...", errUsage, cmd)
	}
	table, args := args[0], args[1:]
	switch cmd {
	case "create":
		return s.create(table, args)
	case "drop":
		if err := s.db.DropTable(table); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK")
		return nil
	case "insert":
		return s.insert(table, args)
	case "get":
		return s.get(table, args)
	case "update":
		return s.update(table, args)
	case "delete":
		return s.delete(table, args)
	case "scan":
		return s.scan(table)
	case "range":
		return s.rangeScan(table, args)
	case "pages":
		return s.pages(table)
	case "alter":
		return s.alter(table, args)
	}
	return fmt.Errorf("unknown command %q, try help", cmd)
}

func (s *shell) tables() error {
	tables, err := s.db.Tables()
	if err != nil {
		return err
	}
	for _, t := range tables {
		attrs := make([]string, len(t.Schema.Attrs))
		for i, a := range t.Schema.Attrs {
			attrs[i] = a.String()
		}
		fmt.Fprintf(s.out, "%s (%s) pages=%d\n", t.Name, strings.Join(attrs, ", "), t.PageCount())
	}
	fmt.Fprintf(s.out, "(%d tables)\n", len(tables))
	return nil
}

func (s *shell) create(table string, defs []string) error {
	if len(defs) == 0 {
		return fmt.Errorf("%w: create <table> <name>:<type>[:flags]...", errUsage)
	}
	attrs := make([]record.Attribute, 0, len(defs))
	for _, def := range defs {
		a, err := parseAttribute(def)
		if err != nil {
			return err
		}
		attrs = append(attrs, a)
	}
	t, err := s.db.CreateTable(table, attrs...)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "created %s (id %d)\n", t.Name, t.ID)
	return nil
}

// parseAttribute reads name:type[:flag]...
func parseAttribute(def string) (record.Attribute, error) {
	parts := strings.Split(def, ":")
	if len(parts) < 2 {
		return record.Attribute{}, fmt.Errorf("%w: attribute %q is not name:type", errUsage, def)
	}
	typ, length, err := record.ParseType(parts[1])
	if err != nil {
		return record.Attribute{}, err
	}
	a := record.Attribute{Name: parts[0], Type: typ, Length: length}
	for _, flag := range parts[2:] {
		switch strings.ToLower(flag) {
		case "pk", "primarykey":
			a.PrimaryKey = true
		case "notnull":
			a.NotNull = true
		case "unique":
			a.Unique = true
		default:
			return record.Attribute{}, fmt.Errorf("%w: unknown flag %q", errUsage, flag)
		}
	}
	return a.Normalize(), a.Validate()
}

func (s *shell) values(t *catalog.TableMeta, raw []string) ([]any, error) {
	if len(raw) != t.Schema.NumAttrs() {
		return nil, fmt.Errorf("%w: %s takes %d values, got %d", errUsage, t.Name, t.Schema.NumAttrs(), len(raw))
	}
	out := make([]any, len(raw))
	for i, a := range t.Schema.Attrs {
		v, err := record.ParseValue(a, raw[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *shell) key(t *catalog.TableMeta, raw string) (any, error) {
	return record.ParseValue(t.Schema.Attrs[t.Schema.PrimaryKey()], raw)
}

func (s *shell) insert(table string, raw []string) error {
	t, err := s.db.Table(table)
	if err != nil {
		return err
	}
	vals, err := s.values(t, raw)
	if err != nil {
		return err
	}
	ptr, err := s.db.Insert(table, vals...)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "inserted at %s\n", ptr)
	return nil
}

func (s *shell) get(table string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: get <table> <key>", errUsage)
	}
	t, err := s.db.Table(table)
	if err != nil {
		return err
	}
	k, err := s.key(t, args[0])
	if err != nil {
		return err
	}
	r, ok, err := s.db.Get(table, k)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(s.out, "(not found)")
		return nil
	}
	fmt.Fprintln(s.out, r)
	return nil
}

func (s *shell) update(table string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: update <table> <key> <value>...", errUsage)
	}
	t, err := s.db.Table(table)
	if err != nil {
		return err
	}
	k, err := s.key(t, args[0])
	if err != nil {
		return err
	}
	vals, err := s.values(t, args[1:])
	if err != nil {
		return err
	}
	old, err := s.db.Update(table, k, vals...)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "updated %s\n", old)
	return nil
}

func (s *shell) delete(table string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: delete <table> <key>", errUsage)
	}
	t, err := s.db.Table(table)
	if err != nil {
		return err
	}
	k, err := s.key(t, args[0])
	if err != nil {
		return err
	}
	old, ok, err := s.db.Delete(table, k)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(s.out, "(not found)")
		return nil
	}
	fmt.Fprintf(s.out, "deleted %s\n", old)
	return nil
}

func (s *shell) scan(table string) error {
	n := 0
	err := s.db.Scan(table, func(ptr heap.RecordPointer, r *record.Record) error {
		n++
		_, err := fmt.Fprintf(s.out, "%-8s %s\n", ptr, r)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "(%d rows)\n", n)
	return nil
}

func (s *shell) rangeScan(table string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: range <table> <lo> <hi>", errUsage)
	}
	t, err := s.db.Table(table)
	if err != nil {
		return err
	}
	lo, err := s.key(t, args[0])
	if err != nil {
		return err
	}
	hi, err := s.key(t, args[1])
	if err != nil {
		return err
	}
	recs, err := s.db.Range(table, lo, hi)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Fprintln(s.out, r)
	}
	fmt.Fprintf(s.out, "(%d rows)\n", len(recs))
	return nil
}

func (s *shell) pages(table string) error {
	t, err := s.db.Table(table)
	if err != nil {
		return err
	}
	pages, err := s.db.Pages(table)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if err := p.Debug(s.out, t.Schema, t.PageCapacity); err != nil {
			return err
		}
	}
	fmt.Fprintf(s.out, "(%d pages, slots %v)\n", len(pages), t.Slots)
	return nil
}

func (s *shell) alter(table string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: alter <table> add|drop ...", errUsage)
	}
	switch strings.ToLower(args[0]) {
	case "add":
		a, err := parseAttribute(args[1])
		if err != nil {
			return err
		}
		var def any
		if len(args) > 2 {
			if def, err = record.ParseValue(a, args[2]); err != nil {
				return err
			}
		}
		if err := s.db.AddColumn(table, a, def); err != nil {
			return err
		}
	case "drop":
		if err := s.db.DropColumn(table, args[1]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: alter <table> add|drop ...", errUsage)
	}
	fmt.Fprintln(s.out, "OK")
	return nil
}

// tokenize splits on whitespace. Single or double quoted runs stay one
// token, quotes included.
func tokenize(line string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		open  bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote, open = r, true
			cur.WriteRune(r)
		case r == ' ' || r == '\t':
			if open {
				out = append(out, cur.String())
				cur.Reset()
				open = false
			}
		default:
			open = true
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	if open {
		out = append(out, cur.String())
	}
	return out, nil
}

package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tuannm99/novastore/internal/alias/util"
	"github.com/tuannm99/novastore/internal/record"
)

const (
	FileName       = "catalog.json"
	catalogVersion = 1
)

var (
	ErrTableNotFound = errors.New("catalog: table not found")
	ErrTableExists   = errors.New("catalog: table already exists")
	ErrBadTableName  = errors.New("catalog: invalid table name")
	ErrBadCapacity   = errors.New("catalog: invalid page capacity")
)

type diskCatalog struct {
	Version int          `json:"version"`
	NextID  int          `json:"next_id"`
	Tables  []*TableMeta `json:"tables"`
}

// Catalog is the set of table descriptors of one database directory. It does
// no I/O except Open and Save.
type Catalog struct {
	fs     afero.Fs
	path   string
	nextID int
	tables map[int]*TableMeta
}

// Open loads <dir>/catalog.json, or starts an empty catalog when the file
// does not exist yet.
func Open(fs afero.Fs, dir string) (*Catalog, error) {
	c := &Catalog{
		fs:     fs,
		path:   filepath.Join(dir, FileName),
		tables: make(map[int]*TableMeta),
	}

	data, err := afero.ReadFile(fs, c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("catalog: read %s: %w", c.path, err)
	}

	var dc diskCatalog
	if err := json.Unmarshal(data, &dc); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", c.path, err)
	}
	c.nextID = dc.NextID
	for _, t := range dc.Tables {
		if err := t.Schema.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: table %s: %w", t.Name, err)
		}
		c.tables[t.ID] = t
		if t.ID >= c.nextID {
			c.nextID = t.ID + 1
		}
	}

	slog.Debug("catalog.loaded", "path", c.path, "tables", len(c.tables))
	return c, nil
}

func (c *Catalog) Path() string { return c.path }

// Create registers a new empty table. The schema is normalized and validated.
func (c *Catalog) Create(name string, schema record.Schema, pageCapacity int) (*TableMeta, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\. `) {
		return nil, fmt.Errorf("%w: %q", ErrBadTableName, name)
	}
	if _, err := c.Lookup(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	if pageCapacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadCapacity, pageCapacity)
	}

	schema, err := record.NewSchema(schema.Attrs...)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	t := &TableMeta{
		ID:           c.nextID,
		Name:         name,
		FileBase:     strings.ToLower(name),
		Schema:       schema,
		PageCapacity: pageCapacity,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.tables[t.ID] = t
	c.nextID++
	return t, nil
}

func (c *Catalog) Table(id int) (*TableMeta, error) {
	t, ok := c.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrTableNotFound, id)
	}
	return t, nil
}

// Lookup finds a table by name, case-insensitively.
func (c *Catalog) Lookup(name string) (*TableMeta, error) {
	for _, t := range c.tables {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
}

func (c *Catalog) Drop(id int) error {
	if _, ok := c.tables[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrTableNotFound, id)
	}
	delete(c.tables, id)
	return nil
}

// Tables returns every table ordered by name.
func (c *Catalog) Tables() []*TableMeta {
	out := make([]*TableMeta, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *TableMeta) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Save writes the catalog atomically.
func (c *Catalog) Save() error {
	tables := c.Tables()
	slices.SortFunc(tables, func(a, b *TableMeta) int { return a.ID - b.ID })

	data, err := json.MarshalIndent(&diskCatalog{
		Version: catalogVersion,
		NextID:  c.nextID,
		Tables:  tables,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(c.fs, c.path, data, util.FileMode0644); err != nil {
		return fmt.Errorf("catalog: save %s: %w", c.path, err)
	}

	slog.Debug("catalog.saved", "path", c.path, "tables", len(tables))
	return nil
}

package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/tuannm99/novastore/internal/alias/util"
	"github.com/tuannm99/novastore/internal/btree"
	"github.com/tuannm99/novastore/internal/bufferpool"
	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/storage"
)

type Options struct {
	Fs         afero.Fs
	Dir        string
	PageSize   int
	CachePages int
	// IndexOrder is the B+Tree order of the primary-key indexes; 0 derives
	// it from PageSize and the key width.
	IndexOrder int
}

func (o Options) withDefaults() (Options, error) {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Dir == "" {
		return o, fmt.Errorf("%w: empty directory", ErrBadOptions)
	}
	if o.PageSize == 0 {
		o.PageSize = 4096
	}
	if o.PageSize < storage.MinPageCapacity {
		return o, fmt.Errorf("%w: page size %d below %d", ErrBadOptions, o.PageSize, storage.MinPageCapacity)
	}
	if o.CachePages <= 0 {
		o.CachePages = bufferpool.DefaultCapacity
	}
	if o.IndexOrder != 0 && o.IndexOrder < btree.MinOrder {
		return o, fmt.Errorf("%w: index order %d", ErrBadOptions, o.IndexOrder)
	}
	return o, nil
}

// Database is one directory of tables: the catalog, the page cache shared by
// every table, the record layer and a primary-key index per table. All
// methods serialise on one mutex.
type Database struct {
	mu sync.Mutex

	opts    Options
	catalog *catalog.Catalog
	disk    *storage.StorageManager
	cache   *bufferpool.Cache
	heap    *heap.Manager
	indexes map[int]*btree.Tree[any]
	closed  bool
}

// Open opens the database in opts.Dir, creating the directory if needed.
// Indexes are loaded from disk or rebuilt from the table data.
func Open(opts Options) (*Database, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := opts.Fs.MkdirAll(opts.Dir, util.FileMode0755); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrIO, err)
	}

	cat, err := catalog.Open(opts.Fs, opts.Dir)
	if err != nil {
		return nil, err
	}
	disk := storage.NewStorageManager(opts.Fs, opts.Dir, cat)
	cache := bufferpool.NewCache(disk, opts.CachePages)

	db := &Database{
		opts:    opts,
		catalog: cat,
		disk:    disk,
		cache:   cache,
		heap:    heap.NewManager(cat, disk, cache),
		indexes: make(map[int]*btree.Tree[any]),
	}
	for _, t := range cat.Tables() {
		if err := db.openIndex(t); err != nil {
			return nil, err
		}
	}

	slog.Info("engine.open",
		"dir", opts.Dir,
		"tables", len(db.indexes),
		"page_size", opts.PageSize,
		"cache_pages", opts.CachePages,
	)
	return db, nil
}

func (db *Database) ensureOpen() error {
	if db.closed {
		return ErrDatabaseClosed
	}
	return nil
}

func (db *Database) lookup(name string) (*catalog.TableMeta, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	return db.catalog.Lookup(name)
}

// CreateTable registers a table with the given attributes and creates its
// empty data file and index.
func (db *Database) CreateTable(name string, attrs ...record.Attribute) (*catalog.TableMeta, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}

	t, err := db.catalog.Create(name, record.Schema{Attrs: attrs}, db.opts.PageSize)
	if err != nil {
		return nil, err
	}
	if err := db.disk.CreateFile(t); err != nil {
		_ = db.catalog.Drop(t.ID)
		return nil, err
	}
	tree, err := db.newIndex(t)
	if err != nil {
		_ = db.catalog.Drop(t.ID)
		return nil, err
	}
	db.indexes[t.ID] = tree

	if err := db.catalog.Save(); err != nil {
		return nil, err
	}
	slog.Debug("engine.create_table", "table", t.Name, "id", t.ID, "attrs", t.Schema.NumAttrs(), "order", tree.Order())
	return t, nil
}

// DropTable forgets the table and deletes its files. Cached pages are
// discarded without being written.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(name)
	if err != nil {
		return err
	}
	db.cache.DropTable(t.ID)
	if err := db.disk.RemoveFile(t); err != nil {
		return err
	}
	if err := db.removeIndexFile(t); err != nil {
		return err
	}
	if err := db.catalog.Drop(t.ID); err != nil {
		return err
	}
	delete(db.indexes, t.ID)

	slog.Debug("engine.drop_table", "table", t.Name, "id", t.ID)
	return db.catalog.Save()
}

func (db *Database) Table(name string) (*catalog.TableMeta, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lookup(name)
}

// Tables returns every table ordered by name.
func (db *Database) Tables() ([]*catalog.TableMeta, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	return db.catalog.Tables(), nil
}

// Insert adds a record built from values and returns where it landed.
func (db *Database) Insert(table string, values ...any) (heap.RecordPointer, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return heap.RecordPointer{}, err
	}
	rec, err := record.New(t.Schema, values)
	if err != nil {
		return heap.RecordPointer{}, err
	}
	ch, err := db.heap.AddRecord(t.ID, rec)
	if err != nil {
		return heap.RecordPointer{}, err
	}
	if err := db.repoint(t, ch); err != nil {
		return heap.RecordPointer{}, err
	}
	return ch.Pointer, nil
}

// Get returns the record with primary key key through the index.
func (db *Database) Get(table string, key any) (*record.Record, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return nil, false, err
	}
	tree, err := db.index(t)
	if err != nil {
		return nil, false, err
	}
	key, err = record.Coerce(t.Schema.Attrs[t.Schema.PrimaryKey()], key)
	if err != nil {
		return nil, false, err
	}
	ptr, ok := tree.Search(key)
	if !ok {
		return nil, false, nil
	}
	rec, err := db.heap.Get(t.ID, ptr)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Update replaces the record with primary key key and returns the old one.
func (db *Database) Update(table string, key any, values ...any) (*record.Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return nil, err
	}
	tree, err := db.index(t)
	if err != nil {
		return nil, err
	}
	old, ch, err := db.heap.UpdateRecord(t.ID, key, values)
	if err != nil {
		return nil, err
	}
	tree.Delete(old.Value(t.Schema.PrimaryKey()))
	if err := db.repoint(t, ch); err != nil {
		return nil, err
	}
	return old, nil
}

// Delete removes the record with primary key key. ok is false when there was
// no such record.
func (db *Database) Delete(table string, key any) (*record.Record, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return nil, false, err
	}
	tree, err := db.index(t)
	if err != nil {
		return nil, false, err
	}
	old, ch, ok, err := db.heap.DeleteRecord(t.ID, key)
	if err != nil || !ok {
		return nil, false, err
	}
	tree.Delete(old.Value(t.Schema.PrimaryKey()))
	if err := db.repoint(t, ch); err != nil {
		return nil, false, err
	}
	return old, true, nil
}

// Scan calls fn for every record in table order. An error from fn stops the
// scan and is returned.
func (db *Database) Scan(table string, fn func(ptr heap.RecordPointer, r *record.Record) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return err
	}
	return db.heap.Scan(t.ID, fn)
}

// Records returns every record of the table in table order.
func (db *Database) Records(table string) ([]*record.Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return nil, err
	}
	return db.heap.GetRecords(t.ID)
}

// Range returns the records whose primary key lies in [lo, hi], in key
// order.
func (db *Database) Range(table string, lo, hi any) ([]*record.Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return nil, err
	}
	tree, err := db.index(t)
	if err != nil {
		return nil, err
	}
	pk := t.Schema.Attrs[t.Schema.PrimaryKey()]
	if lo, err = record.Coerce(pk, lo); err != nil {
		return nil, err
	}
	if hi, err = record.Coerce(pk, hi); err != nil {
		return nil, err
	}

	var ptrs []heap.RecordPointer
	tree.Range(lo, hi, func(_ any, ptr heap.RecordPointer) bool {
		ptrs = append(ptrs, ptr)
		return true
	})
	out := make([]*record.Record, 0, len(ptrs))
	for _, ptr := range ptrs {
		r, err := db.heap.Get(t.ID, ptr)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Pages returns the pages of the table in page order.
func (db *Database) Pages(table string) ([]*storage.Page, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return nil, err
	}
	return db.heap.GetPages(t.ID)
}

// AddColumn appends attr to the table, setting def in existing records.
func (db *Database) AddColumn(table string, attr record.Attribute, def any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return err
	}
	if _, err := db.heap.AddAttribute(t.ID, attr, def); err != nil {
		return err
	}
	return db.afterAlter(t)
}

// DropColumn removes the named attribute from the table.
func (db *Database) DropColumn(table, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return err
	}
	if _, err := db.heap.DropAttribute(t.ID, name); err != nil {
		return err
	}
	return db.afterAlter(t)
}

// afterAlter rebuilds the index since every page was rewritten, and records
// the new schema once the rewritten pages are on disk.
func (db *Database) afterAlter(t *catalog.TableMeta) error {
	tree, err := db.rebuildIndex(t)
	if err != nil {
		return err
	}
	db.indexes[t.ID] = tree
	if err := db.cache.FlushTable(t.ID); err != nil {
		return err
	}
	return db.catalog.Save()
}

// Index returns the primary-key index of the table.
func (db *Database) Index(table string) (*btree.Tree[any], error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(table)
	if err != nil {
		return nil, err
	}
	return db.index(t)
}

// Flush writes every dirty page, the indexes and the catalog.
func (db *Database) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return err
	}
	return db.flush()
}

func (db *Database) flush() error {
	err := db.cache.FlushAll()
	for _, t := range db.catalog.Tables() {
		if tree, ok := db.indexes[t.ID]; ok {
			err = multierr.Append(err, tree.Save(db.opts.Fs, db.indexPath(t), db.keyCodec(t)))
		}
	}
	return multierr.Append(err, db.catalog.Save())
}

// Close flushes everything. The database is unusable afterwards even when
// the flush fails.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return err
	}
	err := db.flush()
	db.closed = true
	slog.Info("engine.close", "dir", db.opts.Dir, "err", err)
	return err
}

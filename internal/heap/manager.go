package heap

import (
	"fmt"

	"github.com/tuannm99/novastore/internal/bufferpool"
	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/storage"
)

// TableSource resolves table descriptors by id.
type TableSource interface {
	Table(id int) (*catalog.TableMeta, error)
}

// Change describes what a mutation did to a table's page layout. Records on
// pages FromPage..ToPage (inclusive) may have moved; pages outside that range
// are untouched.
type Change struct {
	Pointer  RecordPointer
	FromPage int
	ToPage   int
	Split    bool
}

func (c Change) merge(o Change) Change {
	c.FromPage = min(c.FromPage, o.FromPage)
	c.ToPage = max(c.ToPage, o.ToPage)
	c.Split = c.Split || o.Split
	return c
}

// Manager is the record layer over the page cache and the table data files.
// Every page access goes through GetPage so that the cache sees it.
type Manager struct {
	tables TableSource
	disk   *storage.StorageManager
	cache  *bufferpool.Cache
}

func NewManager(tables TableSource, disk *storage.StorageManager, cache *bufferpool.Cache) *Manager {
	return &Manager{tables: tables, disk: disk, cache: cache}
}

// GetPage returns the page from the cache, or reads it from disk and caches
// it clean.
func (m *Manager) GetPage(tableID, pageID int) (*storage.Page, error) {
	if p, ok := m.cache.Get(tableID, pageID); ok {
		return p, nil
	}
	p, err := m.disk.ReadPage(tableID, pageID)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Put(p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPages returns every page of the table in page id order.
func (m *Manager) GetPages(tableID int) ([]*storage.Page, error) {
	t, err := m.tables.Table(tableID)
	if err != nil {
		return nil, err
	}
	pages := make([]*storage.Page, 0, t.PageCount())
	for id := range t.PageCount() {
		p, err := m.GetPage(tableID, id)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// GetRecords returns the records of the table in scan order: page order,
// then record order within a page.
func (m *Manager) GetRecords(tableID int) ([]*record.Record, error) {
	var out []*record.Record
	err := m.Scan(tableID, func(_ RecordPointer, r *record.Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// Scan calls fn for every record in scan order. A non-nil error from fn
// stops the scan and is returned.
func (m *Manager) Scan(tableID int, fn func(ptr RecordPointer, r *record.Record) error) error {
	t, err := m.tables.Table(tableID)
	if err != nil {
		return err
	}
	return m.scanFrom(t, 0, fn)
}

func (m *Manager) scanFrom(t *catalog.TableMeta, from int, fn func(ptr RecordPointer, r *record.Record) error) error {
	for id := from; id < t.PageCount(); id++ {
		p, err := m.GetPage(t.ID, id)
		if err != nil {
			return err
		}
		for slot, r := range p.Records {
			if err := fn(RecordPointer{PageID: id, Slot: slot}, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WritePage persists p if it is dirty.
func (m *Manager) WritePage(p *storage.Page) error {
	return m.disk.WritePage(p)
}

// Get returns the record at ptr.
func (m *Manager) Get(tableID int, ptr RecordPointer) (*record.Record, error) {
	p, err := m.GetPage(tableID, ptr.PageID)
	if err != nil {
		return nil, err
	}
	if ptr.Slot < 0 || ptr.Slot >= p.Len() {
		return nil, fmt.Errorf("%w: table %d pointer %s", ErrRecordNotFound, tableID, ptr)
	}
	return p.Record(ptr.Slot), nil
}

// FindRecord looks a record up by primary key with a table scan.
func (m *Manager) FindRecord(tableID int, key any) (*record.Record, RecordPointer, bool, error) {
	t, err := m.tables.Table(tableID)
	if err != nil {
		return nil, RecordPointer{}, false, err
	}
	pk := t.Schema.PrimaryKey()
	key, err = record.Coerce(t.Schema.Attrs[pk], key)
	if err != nil {
		return nil, RecordPointer{}, false, err
	}

	var (
		found *record.Record
		at    RecordPointer
	)
	err = m.scanFrom(t, 0, func(ptr RecordPointer, r *record.Record) error {
		if record.Compare(r.Value(pk), key) == 0 {
			found, at = r, ptr
			return errStop
		}
		return nil
	})
	if err != nil && err != errStop {
		return nil, RecordPointer{}, false, err
	}
	return found, at, found != nil, nil
}

package heap

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/storage"
)

// AddRecord inserts rec in primary-key order. Constraints are checked with a
// full scan before anything is modified; a violation returns a
// *ConstraintError and leaves the table untouched. An insert that leaves the
// target page overfull splits it.
func (m *Manager) AddRecord(tableID int, rec *record.Record) (Change, error) {
	t, err := m.tables.Table(tableID)
	if err != nil {
		return Change{}, err
	}
	if err := validate(t, rec); err != nil {
		return Change{}, err
	}
	at, ok, err := m.placement(t, rec, nil)
	if err != nil {
		return Change{}, err
	}
	return m.insertAt(t, rec, at, ok)
}

// validate runs the checks that need no scan.
func validate(t *catalog.TableMeta, rec *record.Record) error {
	if rec.Len() != t.Schema.NumAttrs() {
		return fmt.Errorf("%w: table %s has %d attributes, record has %d",
			record.ErrSchemaMismatch, t.Name, t.Schema.NumAttrs(), rec.Len())
	}
	if limit := MaxRecordSize(t.PageCapacity); rec.Size() > limit {
		return fmt.Errorf("%w: %d bytes, limit %d for table %s", ErrRecordTooLarge, rec.Size(), limit, t.Name)
	}
	for i, a := range t.Schema.Attrs {
		if a.NotNull && rec.IsNull(i) {
			return &ConstraintError{Table: t.Name, Attr: a.Name, Kind: NotNull}
		}
	}
	return nil
}

// MaxRecordSize is the largest record a page of the given capacity holds.
func MaxRecordSize(capacity int) int { return capacity - storage.PageOverhead }

// placement scans the whole table. It fails on a duplicate primary key or
// unique value and otherwise returns the position of the first record whose
// primary key is greater than rec's. The record at skip, if any, is ignored
// so an updated record does not collide with its old version.
func (m *Manager) placement(t *catalog.TableMeta, rec *record.Record, skip *RecordPointer) (RecordPointer, bool, error) {
	pk := t.Schema.PrimaryKey()
	var (
		at    RecordPointer
		found bool
	)
	err := m.scanFrom(t, 0, func(ptr RecordPointer, r *record.Record) error {
		if skip != nil && ptr == *skip {
			return nil
		}
		for i, a := range t.Schema.Attrs {
			if !a.Unique || rec.IsNull(i) || r.IsNull(i) {
				continue
			}
			if record.Compare(r.Value(i), rec.Value(i)) == 0 {
				kind := Unique
				if a.PrimaryKey {
					kind = PrimaryKey
				}
				return &ConstraintError{Table: t.Name, Attr: a.Name, Kind: kind, Value: rec.Value(i)}
			}
		}
		if !found && record.Compare(r.Value(pk), rec.Value(pk)) > 0 {
			at, found = ptr, true
		}
		return nil
	})
	return at, found, err
}

// insertAt puts rec at ptr, or at the end of the last page when ok is false.
// A table without pages gets its first one.
//
// Every page the insert touches is loaded and cache room is reserved before
// anything changes, so an I/O error leaves the table as it was.
func (m *Manager) insertAt(t *catalog.TableMeta, rec *record.Record, ptr RecordPointer, ok bool) (Change, error) {
	var (
		p    *storage.Page
		recs []*record.Record
	)
	if t.PageCount() > 0 {
		if !ok {
			ptr = RecordPointer{PageID: t.PageCount() - 1, Slot: -1}
		}
		var err error
		if p, err = m.GetPage(t.ID, ptr.PageID); err != nil {
			return Change{}, err
		}
		if ptr.Slot < 0 {
			ptr.Slot = p.Len()
		}
		recs = p.Records
	} else {
		ptr = RecordPointer{}
	}

	chunks := splitRecords(slices.Insert(slices.Clone(recs), ptr.Slot, rec), t.PageCapacity)
	need := len(chunks) - 1
	if p == nil {
		need++
	}
	if err := m.cache.Reserve(need); err != nil {
		return Change{}, err
	}

	if p == nil {
		id, _ := t.AppendPage()
		p = storage.NewPage(t.ID, id)
		slog.Debug("heap.first_page", "table", t.Name, "page", id)
	}
	m.place(t, p, chunks)
	m.settle()

	ch := Change{Pointer: locate(chunks, p.ID, rec), FromPage: p.ID, ToPage: p.ID}
	if len(chunks) > 1 {
		ch.Split = true
		ch.ToPage = t.PageCount() - 1
	}
	return ch, nil
}

// SplitPage splits p at its midpoint. p keeps the lower half and a new page
// with id p.ID+1 takes the upper half; later pages move up. Halves that are
// still overfull are split again. It returns the first record of page
// p.ID+1.
func (m *Manager) SplitPage(p *storage.Page) (*record.Record, error) {
	t, err := m.tables.Table(p.TableID)
	if err != nil {
		return nil, err
	}
	if p.Len() < 2 {
		return nil, fmt.Errorf("%w: table %s page %d", ErrSplitTooSmall, t.Name, p.ID)
	}
	mid := p.Len() / 2
	chunks := append(
		splitRecords(slices.Clone(p.Records[:mid]), t.PageCapacity),
		splitRecords(slices.Clone(p.Records[mid:]), t.PageCapacity)...,
	)
	if err := m.cache.Reserve(len(chunks) - 1); err != nil {
		return nil, err
	}
	m.place(t, p, chunks)
	m.settle()
	return chunks[1][0], nil
}

// place lays chunks out on p and, when there is more than one, on new pages
// p.ID+1.. that push later pages up. Pages are admitted to the cache without
// eviction, so place cannot fail halfway.
func (m *Manager) place(t *catalog.TableMeta, p *storage.Page, chunks [][]*record.Record) {
	p.SetRecords(chunks[0])
	p.Dirty = true
	m.cache.Admit(p)

	added := len(chunks) - 1
	if added == 0 {
		return
	}
	m.cache.Shift(t.ID, p.ID+1, added)
	for j := 1; j <= added; j++ {
		t.InsertPage(p.ID + j)
		np := storage.NewPage(t.ID, p.ID+j)
		np.SetRecords(chunks[j])
		np.Dirty = true
		m.cache.Admit(np)
	}

	slog.Debug("heap.split",
		"table", t.Name,
		"page", p.ID,
		"added", added,
		"pages", t.PageCount(),
	)
}

// settle brings the cache back within its bound once a statement is fully
// applied. A victim whose write-back fails stays cached and dirty; the next
// Put or flush retries it and reports the error.
func (m *Manager) settle() {
	if err := m.cache.Trim(); err != nil {
		slog.Warn("heap.settle", "err", err, "cached", m.cache.Len())
	}
}

// locate finds rec in chunks laid out from page base onwards.
func locate(chunks [][]*record.Record, base int, rec *record.Record) RecordPointer {
	for j, c := range chunks {
		if i := slices.Index(c, rec); i >= 0 {
			return RecordPointer{PageID: base + j, Slot: i}
		}
	}
	return RecordPointer{PageID: base, Slot: -1}
}

// splitRecords halves recs until every chunk fits a page.
func splitRecords(recs []*record.Record, capacity int) [][]*record.Record {
	size := storage.PageOverhead
	for _, r := range recs {
		size += r.Size()
	}
	if size <= capacity || len(recs) < 2 {
		// clipped, so an insert into one chunk never writes into the next
		return [][]*record.Record{slices.Clip(recs)}
	}
	mid := len(recs) / 2
	return append(
		splitRecords(recs[:mid], capacity),
		splitRecords(recs[mid:], capacity)...,
	)
}

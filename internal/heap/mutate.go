package heap

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/record"
)

// UpdateRecord replaces the record with primary key key by a record built
// from values. The new record is validated like an insert, ignoring the old
// version. A changed primary key moves the record to its new position. It
// returns the old record.
func (m *Manager) UpdateRecord(tableID int, key any, values []any) (*record.Record, Change, error) {
	t, err := m.tables.Table(tableID)
	if err != nil {
		return nil, Change{}, err
	}
	rec, err := record.New(t.Schema, values)
	if err != nil {
		return nil, Change{}, err
	}
	if err := validate(t, rec); err != nil {
		return nil, Change{}, err
	}

	old, oldPtr, ok, err := m.FindRecord(tableID, key)
	if err != nil {
		return nil, Change{}, err
	}
	if !ok {
		return nil, Change{}, fmt.Errorf("%w: table %s key %v", ErrRecordNotFound, t.Name, key)
	}
	at, found, err := m.placement(t, rec, &oldPtr)
	if err != nil {
		return nil, Change{}, err
	}

	pk := t.Schema.PrimaryKey()
	if record.Compare(old.Value(pk), rec.Value(pk)) == 0 {
		ch, err := m.replaceAt(t, oldPtr, rec)
		return old, ch, err
	}
	ch, err := m.moveTo(t, oldPtr, rec, at, found)
	if err != nil {
		return nil, Change{}, err
	}
	return old, ch, nil
}

func (m *Manager) replaceAt(t *catalog.TableMeta, ptr RecordPointer, rec *record.Record) (Change, error) {
	p, err := m.GetPage(t.ID, ptr.PageID)
	if err != nil {
		return Change{}, err
	}
	recs := slices.Clone(p.Records)
	recs[ptr.Slot] = rec
	chunks := splitRecords(recs, t.PageCapacity)
	if err := m.cache.Reserve(len(chunks) - 1); err != nil {
		return Change{}, err
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

// moveTo takes the record at from out of its page and puts rec in its
// primary-key position: before the record at at, or after the last record
// when found is false. Positions are those of the table before the move.
func (m *Manager) moveTo(t *catalog.TableMeta, from RecordPointer, rec *record.Record, at RecordPointer, found bool) (Change, error) {
	if !found {
		at = RecordPointer{PageID: t.PageCount() - 1, Slot: -1}
	}
	src, err := m.GetPage(t.ID, from.PageID)
	if err != nil {
		return Change{}, err
	}
	dst, err := m.GetPage(t.ID, at.PageID)
	if err != nil {
		return Change{}, err
	}

	same := src.ID == dst.ID
	srcRecs := slices.Delete(slices.Clone(src.Records), from.Slot, from.Slot+1)
	dstRecs := dst.Records
	if same {
		dstRecs = srcRecs
		if at.Slot > from.Slot {
			at.Slot--
		}
	}
	if at.Slot < 0 {
		at.Slot = len(dstRecs)
	}
	chunks := splitRecords(slices.Insert(slices.Clone(dstRecs), at.Slot, rec), t.PageCapacity)
	reclaim := !same && len(srcRecs) == 0

	if reclaim {
		if err := m.cache.Remove(t.ID, src.ID); err != nil {
			return Change{}, err
		}
	}
	if err := m.cache.Reserve(len(chunks) - 1); err != nil {
		return Change{}, err
	}

	ch := Change{FromPage: min(src.ID, dst.ID), ToPage: max(src.ID, dst.ID)}
	m.cache.Admit(dst)
	if reclaim {
		m.reclaim(t, src.ID)
	} else if !same {
		src.SetRecords(srcRecs)
		src.Dirty = true
		m.cache.Admit(src)
	}
	m.place(t, dst, chunks)
	m.settle()

	ch.Pointer = locate(chunks, dst.ID, rec)
	if reclaim || len(chunks) > 1 {
		ch.Split = len(chunks) > 1
		ch.ToPage = t.PageCount() - 1
	}
	return ch, nil
}

// DeleteRecord removes the record with primary key key. A missing key is
// reported with ok == false, not as an error.
func (m *Manager) DeleteRecord(tableID int, key any) (*record.Record, Change, bool, error) {
	t, err := m.tables.Table(tableID)
	if err != nil {
		return nil, Change{}, false, err
	}
	old, ptr, ok, err := m.FindRecord(tableID, key)
	if err != nil || !ok {
		return nil, Change{}, false, err
	}
	ch, err := m.removeAt(t, ptr)
	if err != nil {
		return nil, Change{}, false, err
	}
	return old, ch, true, nil
}

// removeAt deletes the record at ptr. A page left empty is given back to the
// table unless it is the only page: it is flushed out of the cache, later
// page ids move down by one and its slot is recycled.
func (m *Manager) removeAt(t *catalog.TableMeta, ptr RecordPointer) (Change, error) {
	p, err := m.GetPage(t.ID, ptr.PageID)
	if err != nil {
		return Change{}, err
	}
	ch := Change{Pointer: ptr, FromPage: p.ID, ToPage: p.ID}

	if p.Len() > 1 || t.PageCount() == 1 {
		p.Remove(ptr.Slot)
		p.Dirty = true
		m.cache.Admit(p)
		m.settle()
		return ch, nil
	}

	// the write-back happens while the page still holds its record, so a
	// failure leaves nothing changed
	if err := m.cache.Remove(t.ID, p.ID); err != nil {
		return Change{}, err
	}
	m.reclaim(t, p.ID)
	ch.ToPage = t.PageCount() - 1
	return ch, nil
}

// reclaim drops an empty page that is no longer cached from the table.
func (m *Manager) reclaim(t *catalog.TableMeta, id int) {
	slot := t.RemovePage(id)
	m.cache.Shift(t.ID, id+1, -1)
	slog.Debug("heap.reclaim_page", "table", t.Name, "page", id, "slot", slot, "pages", t.PageCount())
}

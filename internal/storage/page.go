package storage

import (
	"slices"

	"github.com/tuannm99/novastore/internal/record"
)

// Page is the in-memory form of one heap page: the records of one table in
// primary-key order. A page may be overfull between a mutation and the split
// that follows it, never when it is encoded.
type Page struct {
	TableID    int
	ID         int
	Records    []*record.Record
	NextPageID int32
	Dirty      bool

	// sum of record sizes
	used int
}

func NewPage(tableID, pageID int) *Page {
	return &Page{
		TableID:    tableID,
		ID:         pageID,
		NextPageID: NoNextPage,
	}
}

// Size is the number of bytes the page takes when encoded, before padding.
func (p *Page) Size() int { return PageOverhead + p.used }

func (p *Page) Len() int { return len(p.Records) }

func (p *Page) Overfull(capacity int) bool { return p.Size() > capacity }

func (p *Page) Record(i int) *record.Record { return p.Records[i] }

// Insert places r at position i, shifting later records right.
func (p *Page) Insert(i int, r *record.Record) {
	p.Records = slices.Insert(p.Records, i, r)
	p.used += r.Size()
}

func (p *Page) Append(r *record.Record) {
	p.Records = append(p.Records, r)
	p.used += r.Size()
}

// Remove deletes the record at i and returns it.
func (p *Page) Remove(i int) *record.Record {
	r := p.Records[i]
	p.Records = slices.Delete(p.Records, i, i+1)
	p.used -= r.Size()
	return r
}

// Replace swaps the record at i for r and returns the old one.
func (p *Page) Replace(i int, r *record.Record) *record.Record {
	old := p.Records[i]
	p.Records[i] = r
	p.used += r.Size() - old.Size()
	return old
}

// SetRecords replaces the whole record list.
func (p *Page) SetRecords(recs []*record.Record) {
	p.Records = recs
	p.Recompute()
}

// Recompute resyncs the size accumulator after records were changed in place.
func (p *Page) Recompute() {
	p.used = 0
	for _, r := range p.Records {
		p.used += r.Size()
	}
}

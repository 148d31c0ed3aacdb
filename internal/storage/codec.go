package storage

import (
	"fmt"

	"github.com/tuannm99/novastore/internal/alias/bx"
	"github.com/tuannm99/novastore/internal/record"
)

// EncodePage lays p out in a buffer of exactly capacity bytes:
//
//	int32 recordCount | record... | int32 nextPageId | zero padding
func EncodePage(s record.Schema, p *Page, capacity int) ([]byte, error) {
	if p.Overfull(capacity) {
		return nil, fmt.Errorf("%w: page %d needs %d bytes, capacity %d",
			ErrPageOverfull, p.ID, p.Size(), capacity)
	}

	buf := make([]byte, 4, capacity)
	bx.PutI32(buf, int32(len(p.Records)))

	var err error
	for i, r := range p.Records {
		buf, err = record.AppendRecord(buf, s, r)
		if err != nil {
			return nil, fmt.Errorf("encode page %d record %d: %w", p.ID, i, err)
		}
	}
	buf = bx.AppendI32(buf, p.NextPageID)

	// cached sizes out of sync with the real encoding
	if len(buf) > capacity {
		return nil, fmt.Errorf("%w: page %d encoded to %d bytes, capacity %d",
			ErrPageOverfull, p.ID, len(buf), capacity)
	}
	return buf[:capacity], nil
}

// DecodePage is the inverse of EncodePage. The caller sets TableID and ID.
func DecodePage(s record.Schema, buf []byte) (*Page, error) {
	if !bx.Fits(buf, 0, PageOverhead) {
		return nil, fmt.Errorf("%w: buffer of %d bytes", ErrCorruptPage, len(buf))
	}

	count := int(bx.I32(buf))
	// every record holds at least its null bitmap
	if count < 0 || count*max(s.NumAttrs(), 1) > len(buf)-PageOverhead {
		return nil, fmt.Errorf("%w: record count %d", ErrCorruptPage, count)
	}

	p := &Page{Records: make([]*record.Record, 0, count)}
	off := 4
	for i := range count {
		r, n, err := record.DecodeRecord(s, buf[off:])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrCorruptPage, i, err)
		}
		p.Append(r)
		off += n
	}

	if !bx.Fits(buf, off, 4) {
		return nil, fmt.Errorf("%w: missing next page marker", ErrCorruptPage)
	}
	p.NextPageID = bx.I32At(buf, off)
	return p, nil
}

package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/tuannm99/novastore/internal/record"
)

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Fprintf(format string, a ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, a...)
}

func (e *errWriter) Fprintln(a ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintln(e.w, a...)
}

// Debug prints the page header, its records and a hex preview of each
// encoded record to w.
func (p *Page) Debug(w io.Writer, s record.Schema, capacity int) error {
	ew := &errWriter{w: w}

	ew.Fprintf("=== Page %d (table %d) ===\n", p.ID, p.TableID)
	ew.Fprintf("records=%d size=%d capacity=%d free=%d dirty=%t next=%d\n",
		p.Len(), p.Size(), capacity, capacity-p.Size(), p.Dirty, p.NextPageID)

	const maxPreview = 32
	if p.Len() == 0 {
		ew.Fprintln("(empty)")
	}
	for i, r := range p.Records {
		if ew.err != nil {
			break
		}
		ew.Fprintf("[%d] %s\n", i, r)

		data, err := record.EncodeRecord(s, r)
		if err != nil {
			ew.Fprintf("     <encode: %v>\n", err)
			continue
		}
		preview := data
		if len(preview) > maxPreview {
			preview = preview[:maxPreview]
		}
		ew.Fprintf("     len=%d hex=%s\n", len(data), hex.EncodeToString(preview))
	}
	return ew.err
}

func (p *Page) DebugString(s record.Schema, capacity int) string {
	var b bytes.Buffer
	if err := p.Debug(&b, s, capacity); err != nil {
		_, _ = b.WriteString("\n<debug write error: " + err.Error() + ">\n")
	}
	return b.String()
}

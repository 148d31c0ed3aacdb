package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/tuannm99/novastore/internal/alias/bx"
	"github.com/tuannm99/novastore/internal/alias/util"
	"github.com/tuannm99/novastore/internal/catalog"
)

// TableSource resolves table descriptors by id.
type TableSource interface {
	Table(id int) (*catalog.TableMeta, error)
}

// StorageManager is the disk side of page access: it maps a page id to its
// physical slot through the table descriptor and reads or writes exactly one
// page there.
//
// File layout: int32 slotCount | slot 0 | slot 1 | ...
// Every slot is PageCapacity bytes long.
type StorageManager struct {
	fs     afero.Fs
	dir    string
	tables TableSource
}

func NewStorageManager(fs afero.Fs, dir string, tables TableSource) *StorageManager {
	return &StorageManager{fs: fs, dir: dir, tables: tables}
}

func (sm *StorageManager) File(t *catalog.TableMeta) TableFile {
	return TableFile{Fs: sm.fs, Dir: sm.dir, Base: t.FileBase}
}

// Offset is the byte offset of a physical slot.
func Offset(slot, capacity int) int64 {
	return HeaderSize + int64(slot)*int64(capacity)
}

// CreateFile creates (or truncates) the data file of t with an empty header.
func (sm *StorageManager) CreateFile(t *catalog.TableMeta) error {
	tf := sm.File(t)
	if err := sm.fs.MkdirAll(tf.Dir, util.FileMode0755); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := afero.WriteFile(sm.fs, tf.Path(), make([]byte, HeaderSize), util.FileMode0644); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, tf.Path(), err)
	}
	return nil
}

func (sm *StorageManager) RemoveFile(t *catalog.TableMeta) error {
	if err := sm.File(t).Remove(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// SlotCount reads the header of t's data file.
func (sm *StorageManager) SlotCount(t *catalog.TableMeta) (int, error) {
	f, err := sm.File(t).Open()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer util.CloseFileFunc(f)

	hdr := make([]byte, HeaderSize)
	n, err := f.ReadAt(hdr, 0)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil && !errors.Is(err, io.EOF) || n != HeaderSize {
		return 0, fmt.Errorf("%w: read header of %s: %v", ErrIO, t.Name, err)
	}
	return int(bx.I32(hdr)), nil
}

// ReadPage loads and decodes one page from disk. The next page marker is
// taken from the table's mapping, which is authoritative.
func (sm *StorageManager) ReadPage(tableID, pageID int) (*Page, error) {
	t, err := sm.tables.Table(tableID)
	if err != nil {
		return nil, err
	}
	slot, ok := t.SlotOf(pageID)
	if !ok {
		return nil, fmt.Errorf("%w: table %s page %d", ErrPageNotFound, t.Name, pageID)
	}

	f, err := sm.File(t).Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer util.CloseFileFunc(f)

	buf := make([]byte, t.PageCapacity)
	off := Offset(slot, t.PageCapacity)
	n, err := f.ReadAt(buf, off)
	if n != len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: read table %s page %d at offset %d: %w", ErrIO, t.Name, pageID, off, err)
	}

	p, err := DecodePage(t.Schema, buf)
	if err != nil {
		return nil, fmt.Errorf("table %s page %d: %w", t.Name, pageID, err)
	}
	p.TableID = tableID
	p.ID = pageID
	p.NextPageID = nextPageID(t, pageID)

	slog.Debug("storage.read_page", "table", t.Name, "page", pageID, "slot", slot, "records", p.Len())
	return p, nil
}

// WritePage encodes p and overwrites its slot in place. Clean pages are not
// written. On success p is clean.
func (sm *StorageManager) WritePage(p *Page) error {
	if !p.Dirty {
		return nil
	}
	t, err := sm.tables.Table(p.TableID)
	if err != nil {
		return err
	}
	slot, ok := t.SlotOf(p.ID)
	if !ok {
		return fmt.Errorf("%w: table %s page %d", ErrPageNotFound, t.Name, p.ID)
	}

	p.NextPageID = nextPageID(t, p.ID)
	buf, err := EncodePage(t.Schema, p, t.PageCapacity)
	if err != nil {
		return fmt.Errorf("table %s: %w", t.Name, err)
	}

	f, err := sm.File(t).Open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer util.CloseFileFunc(f)

	hdr := bx.AppendI32(nil, int32(t.SlotCount))
	if _, err := f.WriteAt(hdr, 0); err != nil {
		return fmt.Errorf("%w: write header of %s: %w", ErrIO, t.Name, err)
	}
	off := Offset(slot, t.PageCapacity)
	n, err := f.WriteAt(buf, off)
	if err != nil {
		return fmt.Errorf("%w: write table %s page %d: %w", ErrIO, t.Name, p.ID, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: write table %s page %d: %w", ErrIO, t.Name, p.ID, io.ErrShortWrite)
	}

	p.Dirty = false
	slog.Debug("storage.write_page", "table", t.Name, "page", p.ID, "slot", slot, "records", p.Len())
	return nil
}

func nextPageID(t *catalog.TableMeta, pageID int) int32 {
	if pageID+1 < t.PageCount() {
		return int32(pageID + 1)
	}
	return NoNextPage
}

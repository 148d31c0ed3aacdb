package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tuannm99/novastore/internal/btree"
	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/record"
)

func (db *Database) indexPath(t *catalog.TableMeta) string {
	return filepath.Join(db.opts.Dir, t.FileBase+IndexFileSuffix)
}

func (db *Database) keyCodec(t *catalog.TableMeta) record.KeyCodec {
	return record.KeyCodec{Attr: t.Schema.Attrs[t.Schema.PrimaryKey()]}
}

func (db *Database) indexOrder(t *catalog.TableMeta) int {
	if db.opts.IndexOrder > 0 {
		return db.opts.IndexOrder
	}
	return btree.OrderFor(t.PageCapacity, t.Schema.Attrs[t.Schema.PrimaryKey()].MaxSize())
}

func (db *Database) newIndex(t *catalog.TableMeta) (*btree.Tree[any], error) {
	return btree.New(db.indexOrder(t), record.Compare)
}

func (db *Database) index(t *catalog.TableMeta) (*btree.Tree[any], error) {
	tree, ok := db.indexes[t.ID]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", ErrIndexNotFound, t.Name)
	}
	return tree, nil
}

// openIndex loads the saved index of t. A missing or unreadable file is
// replaced by an index rebuilt from the table data.
func (db *Database) openIndex(t *catalog.TableMeta) error {
	tree, ok, err := btree.Load(db.opts.Fs, db.indexPath(t), db.indexOrder(t), record.Compare, btree.KeyCodec[any](db.keyCodec(t)))
	switch {
	case err != nil:
		slog.Warn("engine.index_unreadable", "table", t.Name, "err", err)
	case ok:
		db.indexes[t.ID] = tree
		return nil
	}

	tree, err = db.rebuildIndex(t)
	if err != nil {
		return fmt.Errorf("engine: rebuild index of %s: %w", t.Name, err)
	}
	db.indexes[t.ID] = tree
	return nil
}

// rebuildIndex scans the table and indexes every record by primary key.
func (db *Database) rebuildIndex(t *catalog.TableMeta) (*btree.Tree[any], error) {
	tree, err := db.newIndex(t)
	if err != nil {
		return nil, err
	}
	pk := t.Schema.PrimaryKey()
	err = db.heap.Scan(t.ID, func(ptr heap.RecordPointer, r *record.Record) error {
		tree.Insert(r.Value(pk), ptr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("engine.index_rebuilt", "table", t.Name, "keys", tree.Len(), "height", tree.Height())
	return tree, nil
}

// repoint refreshes the index entries of every record on the pages a
// mutation touched. Removed keys are the caller's job.
func (db *Database) repoint(t *catalog.TableMeta, ch heap.Change) error {
	tree, err := db.index(t)
	if err != nil {
		return err
	}
	pk := t.Schema.PrimaryKey()
	for id := ch.FromPage; id <= ch.ToPage && id < t.PageCount(); id++ {
		p, err := db.heap.GetPage(t.ID, id)
		if err != nil {
			return err
		}
		for slot, r := range p.Records {
			tree.Insert(r.Value(pk), heap.RecordPointer{PageID: id, Slot: slot})
		}
	}
	return nil
}

func (db *Database) removeIndexFile(t *catalog.TableMeta) error {
	err := db.opts.Fs.Remove(db.indexPath(t))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("engine: remove index of %s: %w", t.Name, err)
	}
	return nil
}

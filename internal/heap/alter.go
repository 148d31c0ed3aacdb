package heap

import (
	"fmt"
	"log/slog"

	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/storage"
)

// AddAttribute appends attr to the table and sets it to def in every
// existing record. Pages that no longer fit are split.
func (m *Manager) AddAttribute(tableID int, attr record.Attribute, def any) (Change, error) {
	t, err := m.tables.Table(tableID)
	if err != nil {
		return Change{}, err
	}
	attr = attr.Normalize()
	if err := attr.Validate(); err != nil {
		return Change{}, err
	}
	if t.Schema.Index(attr.Name) >= 0 {
		return Change{}, fmt.Errorf("%w: %s.%s", record.ErrDuplicateAttr, t.Name, attr.Name)
	}
	if attr.PrimaryKey {
		return Change{}, &ConstraintError{Table: t.Name, Attr: attr.Name, Kind: PrimaryKey}
	}
	def, err = record.Coerce(attr, def)
	if err != nil {
		return Change{}, err
	}

	groups, total, err := m.pageGroups(t)
	if err != nil {
		return Change{}, err
	}
	if attr.NotNull && def == nil && total > 0 {
		return Change{}, &ConstraintError{Table: t.Name, Attr: attr.Name, Kind: NotNull}
	}
	if attr.Unique && def != nil && total > 1 {
		return Change{}, &ConstraintError{Table: t.Name, Attr: attr.Name, Kind: Unique, Value: def}
	}
	schema := t.Schema.With(attr)
	limit := MaxRecordSize(t.PageCapacity)
	rebuilt, err := rebuild(groups, func(r *record.Record) error {
		if err := r.AppendValue(attr, def); err != nil {
			return err
		}
		if r.Size() > limit {
			return fmt.Errorf("%w: adding %s to table %s", ErrRecordTooLarge, attr.Name, t.Name)
		}
		return nil
	})
	if err != nil {
		return Change{}, err
	}
	return m.rewrite(t, schema, rebuilt)
}

// DropAttribute removes the named attribute from the table and from every
// record. The primary key cannot be dropped.
func (m *Manager) DropAttribute(tableID int, name string) (Change, error) {
	t, err := m.tables.Table(tableID)
	if err != nil {
		return Change{}, err
	}
	idx := t.Schema.Index(name)
	if idx < 0 {
		return Change{}, fmt.Errorf("%w: %s.%s", record.ErrAttributeMissing, t.Name, name)
	}
	attr := t.Schema.Attrs[idx]
	if attr.PrimaryKey {
		return Change{}, fmt.Errorf("%w: cannot drop primary key %s.%s", ErrInvalidAlter, t.Name, attr.Name)
	}

	groups, _, err := m.pageGroups(t)
	if err != nil {
		return Change{}, err
	}
	rebuilt, err := rebuild(groups, func(r *record.Record) error {
		r.RemoveValue(idx, attr)
		return nil
	})
	if err != nil {
		return Change{}, err
	}
	return m.rewrite(t, t.Schema.Without(idx), rebuilt)
}

// pageGroups loads every page and returns its records grouped per page.
func (m *Manager) pageGroups(t *catalog.TableMeta) ([][]*record.Record, int, error) {
	groups := make([][]*record.Record, 0, t.PageCount())
	total := 0
	for id := range t.PageCount() {
		p, err := m.GetPage(t.ID, id)
		if err != nil {
			return nil, 0, err
		}
		groups = append(groups, p.Records)
		total += p.Len()
	}
	return groups, total, nil
}

// rebuild applies fn to a copy of every record. The loaded pages keep their
// records untouched.
func rebuild(groups [][]*record.Record, fn func(r *record.Record) error) ([][]*record.Record, error) {
	out := make([][]*record.Record, len(groups))
	for i, g := range groups {
		out[i] = make([]*record.Record, len(g))
		for j, r := range g {
			c := r.Clone()
			if err := fn(c); err != nil {
				return nil, err
			}
			out[i][j] = c
		}
	}
	return out, nil
}

// rewrite switches the table to schema and lays groups out again, one page
// per group plus whatever splits are needed. Cached pages of the old layout
// are discarded unwritten: groups already holds their content, and none of
// them may be encoded with the new schema.
func (m *Manager) rewrite(t *catalog.TableMeta, schema record.Schema, groups [][]*record.Record) (Change, error) {
	layout := make([][][]*record.Record, len(groups))
	total := 0
	for i, g := range groups {
		layout[i] = splitRecords(g, t.PageCapacity)
		total += len(layout[i])
	}
	before := t.PageCount()
	if err := m.cache.Reserve(total - before); err != nil {
		return Change{}, err
	}

	m.cache.DropTable(t.ID)
	t.Schema = schema
	id := 0
	for _, chunks := range layout {
		m.place(t, storage.NewPage(t.ID, id), chunks)
		id += len(chunks)
	}
	m.settle()

	slog.Debug("heap.rewrite", "table", t.Name, "attrs", schema.NumAttrs(), "pages", t.PageCount())
	return Change{FromPage: 0, ToPage: t.PageCount() - 1, Split: total > before}, nil
}

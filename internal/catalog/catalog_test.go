package catalog

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuannm99/novastore/internal/record"
)

func newTestSchema(t *testing.T) record.Schema {
	t.Helper()

	s, err := record.NewSchema(
		record.Attribute{Name: "id", Type: record.TypeInteger, PrimaryKey: true},
		record.Attribute{Name: "name", Type: record.TypeVarchar, Length: 20, NotNull: true},
	)
	require.NoError(t, err)
	return s
}

func TestTableMeta_PageMapping(t *testing.T) {
	m := &TableMeta{}

	id, slot := m.AppendPage()
	require.Equal(t, 0, id)
	require.Equal(t, 0, slot)

	id, slot = m.AppendPage()
	require.Equal(t, 1, id)
	require.Equal(t, 1, slot)

	// split of page 0: new page 1, old page 1 becomes page 2
	slot = m.InsertPage(1)
	require.Equal(t, 2, slot)
	require.Equal(t, []int{0, 2, 1}, m.Slots)
	require.Equal(t, 3, m.PageCount())

	s, ok := m.SlotOf(2)
	require.True(t, ok)
	require.Equal(t, 1, s)
	_, ok = m.SlotOf(3)
	require.False(t, ok)
	_, ok = m.SlotOf(-1)
	require.False(t, ok)

	freed := m.RemovePage(0)
	require.Equal(t, 0, freed)
	require.Equal(t, []int{2, 1}, m.Slots)
	require.Equal(t, []int{0}, m.FreeSlots)

	// freed slot is reused before the file grows
	slot = m.InsertPage(2)
	require.Equal(t, 0, slot)
	require.Empty(t, m.FreeSlots)
	require.Equal(t, 3, m.SlotCount)
	require.Equal(t, []int{2, 1, 0}, m.Slots)
}

func TestCatalog_CreateLookupDrop(t *testing.T) {
	c, err := Open(afero.NewMemMapFs(), "/db")
	require.NoError(t, err)

	users, err := c.Create("Users", newTestSchema(t), 256)
	require.NoError(t, err)
	require.Equal(t, 0, users.ID)
	require.Equal(t, "users", users.FileBase)

	_, err = c.Create("users", newTestSchema(t), 256)
	require.ErrorIs(t, err, ErrTableExists)

	_, err = c.Create("bad name", newTestSchema(t), 256)
	require.ErrorIs(t, err, ErrBadTableName)

	_, err = c.Create("zero", newTestSchema(t), 0)
	require.ErrorIs(t, err, ErrBadCapacity)

	_, err = c.Create("nopk", record.Schema{Attrs: []record.Attribute{{Name: "a", Type: record.TypeInteger}}}, 64)
	require.ErrorIs(t, err, record.ErrNoPrimaryKey)

	orders, err := c.Create("orders", newTestSchema(t), 128)
	require.NoError(t, err)
	require.Equal(t, 1, orders.ID)

	got, err := c.Lookup("USERS")
	require.NoError(t, err)
	require.Same(t, users, got)

	names := []string{}
	for _, tm := range c.Tables() {
		names = append(names, tm.Name)
	}
	assert.Equal(t, []string{"Users", "orders"}, names)

	require.NoError(t, c.Drop(users.ID))
	_, err = c.Table(users.ID)
	require.ErrorIs(t, err, ErrTableNotFound)
	require.ErrorIs(t, c.Drop(users.ID), ErrTableNotFound)
}

func TestCatalog_SaveAndReopen(t *testing.T) {
	fs := afero.NewMemMapFs()

	c, err := Open(fs, "/db")
	require.NoError(t, err)
	tm, err := c.Create("users", newTestSchema(t), 256)
	require.NoError(t, err)
	tm.AppendPage()
	tm.AppendPage()
	tm.RemovePage(0)
	require.NoError(t, c.Save())

	c2, err := Open(fs, "/db")
	require.NoError(t, err)
	got, err := c2.Lookup("users")
	require.NoError(t, err)

	assert.Equal(t, tm.Schema, got.Schema)
	assert.Equal(t, 256, got.PageCapacity)
	assert.Equal(t, []int{1}, got.Slots)
	assert.Equal(t, []int{0}, got.FreeSlots)
	assert.Equal(t, 2, got.SlotCount)

	// ids keep increasing after reopen
	next, err := c2.Create("orders", newTestSchema(t), 256)
	require.NoError(t, err)
	assert.Equal(t, 1, next.ID)
}

func TestCatalog_OpenCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/db/"+FileName, []byte("{not json"), 0o644))

	_, err := Open(fs, "/db")
	require.Error(t, err)
}

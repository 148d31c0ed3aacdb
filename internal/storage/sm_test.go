package storage

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuannm99/novastore/internal/alias/bx"
	"github.com/tuannm99/novastore/internal/catalog"
)

const testCapacity = 128

func newTestStorage(t *testing.T) (*StorageManager, *catalog.TableMeta, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	cat, err := catalog.Open(fs, "/db")
	require.NoError(t, err)
	tm, err := cat.Create("users", newTestSchema(t), testCapacity)
	require.NoError(t, err)

	sm := NewStorageManager(fs, "/db", cat)
	require.NoError(t, sm.CreateFile(tm))
	return sm, tm, fs
}

func TestOffset(t *testing.T) {
	assert.Equal(t, int64(4), Offset(0, 128))
	assert.Equal(t, int64(4+3*128), Offset(3, 128))
}

func TestStorageManager_WriteReadPage(t *testing.T) {
	sm, tm, fs := newTestStorage(t)
	s := tm.Schema

	tm.AppendPage()
	tm.AppendPage()

	p0 := NewPage(tm.ID, 0)
	p0.Append(newTestRecord(t, s, 1, "one"))
	p0.Append(newTestRecord(t, s, 2, "two"))
	p0.Dirty = true

	p1 := NewPage(tm.ID, 1)
	p1.Append(newTestRecord(t, s, 3, "three"))
	p1.Dirty = true

	require.NoError(t, sm.WritePage(p1))
	require.NoError(t, sm.WritePage(p0))
	require.False(t, p0.Dirty)

	data, err := afero.ReadFile(fs, sm.File(tm).Path())
	require.NoError(t, err)
	require.Len(t, data, HeaderSize+2*testCapacity)
	require.Equal(t, int32(2), bx.I32(data))

	// trailer of page 0 points at page 1
	p0Size := p0.Size()
	require.Equal(t, int32(1), bx.I32At(data, HeaderSize+p0Size-4))

	n, err := sm.SlotCount(tm)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := sm.ReadPage(tm.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 0, got.ID)
	require.Equal(t, tm.ID, got.TableID)
	require.Equal(t, 2, got.Len())
	require.Equal(t, int32(1), got.NextPageID)
	require.False(t, got.Dirty)

	got, err = sm.ReadPage(tm.ID, 1)
	require.NoError(t, err)
	require.Equal(t, NoNextPage, got.NextPageID)
	require.Equal(t, "three", got.Record(0).Value(1))
}

func TestStorageManager_SlotMapping(t *testing.T) {
	sm, tm, _ := newTestStorage(t)
	s := tm.Schema

	tm.AppendPage()
	p := NewPage(tm.ID, 0)
	p.Append(newTestRecord(t, s, 10, "ten"))
	p.Dirty = true
	require.NoError(t, sm.WritePage(p))

	// a new page 0 lands in slot 1; the old page moves to id 1 but keeps slot 0
	slot := tm.InsertPage(0)
	require.Equal(t, 1, slot)
	front := NewPage(tm.ID, 0)
	front.Append(newTestRecord(t, s, 5, "five"))
	front.Dirty = true
	require.NoError(t, sm.WritePage(front))

	got, err := sm.ReadPage(tm.ID, 1)
	require.NoError(t, err)
	require.Equal(t, int32(10), got.Record(0).Value(0))

	got, err = sm.ReadPage(tm.ID, 0)
	require.NoError(t, err)
	require.Equal(t, int32(5), got.Record(0).Value(0))
}

func TestStorageManager_Errors(t *testing.T) {
	sm, tm, _ := newTestStorage(t)

	_, err := sm.ReadPage(tm.ID, 0)
	require.ErrorIs(t, err, ErrPageNotFound)

	_, err = sm.ReadPage(99, 0)
	require.ErrorIs(t, err, catalog.ErrTableNotFound)

	// slot exists in the mapping but was never written
	tm.AppendPage()
	_, err = sm.ReadPage(tm.ID, 0)
	require.ErrorIs(t, err, ErrIO)

	// clean pages are never written
	clean := NewPage(tm.ID, 0)
	require.NoError(t, sm.WritePage(clean))

	over := NewPage(tm.ID, 0)
	for i := range 20 {
		over.Append(newTestRecord(t, tm.Schema, i, "abcdefghijkl"))
	}
	over.Dirty = true
	require.ErrorIs(t, sm.WritePage(over), ErrPageOverfull)
	require.True(t, over.Dirty)

	gone := NewPage(tm.ID, 7)
	gone.Dirty = true
	require.ErrorIs(t, sm.WritePage(gone), ErrPageNotFound)
}

func TestStorageManager_RemoveFile(t *testing.T) {
	sm, tm, _ := newTestStorage(t)

	ok, err := sm.File(tm).Exists()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, sm.RemoveFile(tm))
	ok, err = sm.File(tm).Exists()
	require.NoError(t, err)
	require.False(t, ok)

	// removing twice is fine
	require.NoError(t, sm.RemoveFile(tm))
}

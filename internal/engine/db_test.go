package engine

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/storage"
)

var userAttrs = []record.Attribute{
	{Name: "id", Type: record.TypeInteger, PrimaryKey: true},
	{Name: "name", Type: record.TypeVarchar, Length: 12},
	{Name: "email", Type: record.TypeVarchar, Length: 20, Unique: true},
}

func newTestDB(t *testing.T, opts Options) *Database {
	t.Helper()
	if opts.Fs == nil {
		opts.Fs = afero.NewMemMapFs()
	}
	if opts.Dir == "" {
		opts.Dir = "/data"
	}
	if opts.PageSize == 0 {
		opts.PageSize = 96
	}
	db, err := Open(opts)
	require.NoError(t, err)
	return db
}

func newUsers(t *testing.T, db *Database) {
	t.Helper()
	_, err := db.CreateTable("users", userAttrs...)
	require.NoError(t, err)
}

// checkIndex compares the primary-key index with a table scan.
func checkIndex(t *testing.T, db *Database, table string) {
	t.Helper()

	type entry struct {
		key any
		ptr heap.RecordPointer
	}
	var scanned []entry
	require.NoError(t, db.Scan(table, func(ptr heap.RecordPointer, r *record.Record) error {
		scanned = append(scanned, entry{r.Value(0), ptr})
		return nil
	}))

	tree, err := db.Index(table)
	require.NoError(t, err)
	var indexed []entry
	tree.Ascend(func(k any, ptr heap.RecordPointer) bool {
		indexed = append(indexed, entry{k, ptr})
		return true
	})
	require.Equal(t, scanned, indexed)
}

func TestOpen_BadOptions(t *testing.T) {
	_, err := Open(Options{Fs: afero.NewMemMapFs()})
	require.ErrorIs(t, err, ErrBadOptions)

	_, err = Open(Options{Fs: afero.NewMemMapFs(), Dir: "/d", PageSize: 10})
	require.ErrorIs(t, err, ErrBadOptions)

	_, err = Open(Options{Fs: afero.NewMemMapFs(), Dir: "/d", IndexOrder: 2})
	require.ErrorIs(t, err, ErrBadOptions)
}

func TestCreateTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newTestDB(t, Options{Fs: fs})
	newUsers(t, db)

	ok, err := afero.Exists(fs, "/data/users.tbl")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = afero.Exists(fs, "/data/"+catalog.FileName)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = db.CreateTable("USERS", userAttrs...)
	require.ErrorIs(t, err, catalog.ErrTableExists)

	_, err = db.CreateTable("nokey", record.Attribute{Name: "a", Type: record.TypeInteger})
	require.ErrorIs(t, err, record.ErrNoPrimaryKey)

	tables, err := db.Tables()
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "users", tables[0].Name)
}

func TestInsertGetKeepsIndexInSync(t *testing.T) {
	db := newTestDB(t, Options{CachePages: 3, IndexOrder: 3})
	newUsers(t, db)

	keys := rand.New(rand.NewSource(3)).Perm(120)
	for _, k := range keys {
		_, err := db.Insert("users", k, fmt.Sprintf("u%d", k), fmt.Sprintf("u%d@x.io", k))
		require.NoError(t, err)
	}
	checkIndex(t, db, "users")

	pages, err := db.Pages("users")
	require.NoError(t, err)
	assert.Greater(t, len(pages), 10)

	for _, k := range keys {
		r, ok, err := db.Get("users", k)
		require.NoError(t, err)
		require.True(t, ok, "key %d", k)
		assert.Equal(t, fmt.Sprintf("u%d", k), r.Value(1))
	}
	_, ok, err := db.Get("users", 1000)
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := db.Records("users")
	require.NoError(t, err)
	require.Len(t, recs, 120)
	for i, r := range recs {
		assert.Equal(t, int32(i), r.Value(0))
	}
}

func TestInsert_ConstraintLeavesIndexAlone(t *testing.T) {
	db := newTestDB(t, Options{})
	newUsers(t, db)

	_, err := db.Insert("users", 1, "ann", "ann@x.io")
	require.NoError(t, err)

	_, err = db.Insert("users", 1, "bob", "bob@x.io")
	require.ErrorIs(t, err, heap.ErrConstraintViolation)
	_, err = db.Insert("users", 2, "bob", "ann@x.io")
	require.ErrorIs(t, err, heap.ErrConstraintViolation)
	_, err = db.Insert("users", nil, "bob", "bob@x.io")
	require.ErrorIs(t, err, heap.ErrConstraintViolation)
	_, err = db.Insert("users", 2, "bob")
	require.ErrorIs(t, err, record.ErrSchemaMismatch)

	tree, err := db.Index("users")
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
	checkIndex(t, db, "users")

	_, err = db.Insert("nope", 1)
	require.ErrorIs(t, err, catalog.ErrTableNotFound)
}

func TestUpdate(t *testing.T) {
	db := newTestDB(t, Options{CachePages: 2})
	newUsers(t, db)
	for k := range 30 {
		_, err := db.Insert("users", k*2, "n", fmt.Sprintf("e%d", k))
		require.NoError(t, err)
	}

	old, err := db.Update("users", 10, 10, "much longer", "e5")
	require.NoError(t, err)
	assert.Equal(t, "n", old.Value(1))
	r, ok, err := db.Get("users", 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "much longer", r.Value(1))
	checkIndex(t, db, "users")

	_, err = db.Update("users", 10, 31, "moved", "e5")
	require.NoError(t, err)
	checkIndex(t, db, "users")
	_, ok, err = db.Get("users", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	r, ok, err = db.Get("users", 31)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "moved", r.Value(1))

	_, err = db.Update("users", 31, 12, "dup", "e5")
	require.ErrorIs(t, err, heap.ErrConstraintViolation)
	_, err = db.Update("users", 999, 999, "x", "y")
	require.ErrorIs(t, err, heap.ErrRecordNotFound)
	checkIndex(t, db, "users")
}

func TestDelete(t *testing.T) {
	db := newTestDB(t, Options{CachePages: 2, IndexOrder: 4})
	newUsers(t, db)
	for k := range 40 {
		_, err := db.Insert("users", k, "n", fmt.Sprintf("e%d", k))
		require.NoError(t, err)
	}
	before, err := db.Pages("users")
	require.NoError(t, err)

	for k := 0; k < 40; k += 3 {
		old, ok, err := db.Delete("users", k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int32(k), old.Value(0))
	}
	// a whole run of pages goes away
	for k := 10; k < 30; k++ {
		_, _, err := db.Delete("users", k)
		require.NoError(t, err)
	}
	checkIndex(t, db, "users")

	after, err := db.Pages("users")
	require.NoError(t, err)
	assert.Less(t, len(after), len(before))

	_, ok, err := db.Delete("users", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	tbl, err := db.Table("users")
	require.NoError(t, err)
	assert.NotEmpty(t, tbl.FreeSlots)
}

func TestRange(t *testing.T) {
	db := newTestDB(t, Options{IndexOrder: 3})
	newUsers(t, db)
	for k := 0; k < 50; k += 5 {
		_, err := db.Insert("users", k, "n", fmt.Sprintf("e%d", k))
		require.NoError(t, err)
	}

	recs, err := db.Range("users", 12, 31)
	require.NoError(t, err)
	var got []any
	for _, r := range recs {
		got = append(got, r.Value(0))
	}
	assert.Equal(t, []any{int32(15), int32(20), int32(25), int32(30)}, got)

	recs, err = db.Range("users", 40, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = db.Range("users", "a", 10)
	require.ErrorIs(t, err, record.ErrTypeMismatch)
}

func TestAlterColumns(t *testing.T) {
	db := newTestDB(t, Options{CachePages: 3})
	newUsers(t, db)
	for k := range 20 {
		_, err := db.Insert("users", k, "n", fmt.Sprintf("e%d", k))
		require.NoError(t, err)
	}

	require.NoError(t, db.AddColumn("users", record.Attribute{Name: "score", Type: record.TypeDouble}, 1.5))
	checkIndex(t, db, "users")
	r, ok, err := db.Get("users", 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.5, r.Value(3))

	_, err = db.Insert("users", 100, "new", "e100", 2.5)
	require.NoError(t, err)

	require.NoError(t, db.DropColumn("users", "name"))
	checkIndex(t, db, "users")
	r, ok, err = db.Get("users", 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{int32(100), "e100", 2.5}, r.Values)

	err = db.DropColumn("users", "id")
	require.ErrorIs(t, err, heap.ErrInvalidAlter)
	err = db.AddColumn("users", record.Attribute{Name: "must", Type: record.TypeInteger, NotNull: true}, nil)
	require.ErrorIs(t, err, heap.ErrConstraintViolation)

	tbl, err := db.Table("users")
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Schema.NumAttrs())
}

func TestDropTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newTestDB(t, Options{Fs: fs})
	newUsers(t, db)
	_, err := db.Insert("users", 1, "a", "b")
	require.NoError(t, err)
	require.NoError(t, db.Flush())

	ok, err := afero.Exists(fs, "/data/users"+IndexFileSuffix)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.DropTable("users"))
	for _, p := range []string{"/data/users.tbl", "/data/users" + IndexFileSuffix} {
		ok, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.False(t, ok, p)
	}
	_, err = db.Table("users")
	require.ErrorIs(t, err, catalog.ErrTableNotFound)
	require.ErrorIs(t, db.DropTable("users"), catalog.ErrTableNotFound)

	// the name is free again and the new table starts empty
	newUsers(t, db)
	recs, err := db.Records("users")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestClose(t *testing.T) {
	db := newTestDB(t, Options{})
	require.NoError(t, db.Close())

	require.ErrorIs(t, db.Close(), ErrDatabaseClosed)
	_, err := db.Insert("users", 1)
	require.ErrorIs(t, err, ErrDatabaseClosed)
	_, err = db.Tables()
	require.ErrorIs(t, err, ErrDatabaseClosed)
	require.ErrorIs(t, db.Flush(), ErrDatabaseClosed)
}

func TestReopen_RecordsAndIndexSurvive(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Fs: afero.NewOsFs(), Dir: dir, PageSize: 128, CachePages: 4}

	db, err := Open(opts)
	require.NoError(t, err)
	newUsers(t, db)
	for _, k := range rand.New(rand.NewSource(9)).Perm(80) {
		_, err := db.Insert("users", k, "n", fmt.Sprintf("e%d", k))
		require.NoError(t, err)
	}
	for k := 0; k < 80; k += 4 {
		_, _, err := db.Delete("users", k)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	db, err = Open(opts)
	require.NoError(t, err)
	checkIndex(t, db, "users")
	tree, err := db.Index("users")
	require.NoError(t, err)
	assert.Equal(t, 60, tree.Len())
	r, ok, err := db.Get("users", 33)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "e33", r.Value(2))
	require.NoError(t, db.Close())

	// a lost or damaged index is rebuilt from the table
	idx := filepath.Join(dir, "users"+IndexFileSuffix)
	for _, damage := range []func() error{
		func() error { return afero.WriteFile(opts.Fs, idx, []byte("junk"), 0o644) },
		func() error { return opts.Fs.Remove(idx) },
	} {
		require.NoError(t, damage())
		db, err = Open(opts)
		require.NoError(t, err)
		checkIndex(t, db, "users")
		tree, err := db.Index("users")
		require.NoError(t, err)
		assert.Equal(t, 60, tree.Len())
		require.NoError(t, db.Close())
	}
}

func TestPages_MatchDiskLayout(t *testing.T) {
	opts := Options{Fs: afero.NewMemMapFs(), Dir: "/data", PageSize: 96, CachePages: 2}
	db := newTestDB(t, opts)
	newUsers(t, db)
	for k := range 25 {
		_, err := db.Insert("users", 24-k, "name", fmt.Sprintf("e%d", k))
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	db = newTestDB(t, opts)

	pages, err := db.Pages("users")
	require.NoError(t, err)
	for i, p := range pages {
		assert.Equal(t, i, p.ID)
		assert.False(t, p.Overfull(96))
		if i < len(pages)-1 {
			assert.Equal(t, int32(i+1), p.NextPageID)
		} else {
			assert.Equal(t, storage.NoNextPage, p.NextPageID)
		}
	}
}

package storage

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuannm99/novastore/internal/alias/bx"
	"github.com/tuannm99/novastore/internal/record"
)

func newTestSchema(t *testing.T) record.Schema {
	t.Helper()

	s, err := record.NewSchema(
		record.Attribute{Name: "id", Type: record.TypeInteger, PrimaryKey: true},
		record.Attribute{Name: "name", Type: record.TypeVarchar, Length: 12},
		record.Attribute{Name: "ok", Type: record.TypeBoolean},
	)
	require.NoError(t, err)
	return s
}

func newTestRecord(t *testing.T, s record.Schema, id int, name any) *record.Record {
	t.Helper()

	r, err := record.New(s, []any{id, name, id%2 == 0})
	require.NoError(t, err)
	return r
}

func TestPage_SizeTracking(t *testing.T) {
	s := newTestSchema(t)
	p := NewPage(1, 0)
	require.Equal(t, PageOverhead, p.Size())
	require.Equal(t, NoNextPage, p.NextPageID)

	r1 := newTestRecord(t, s, 1, "a")   // 3 + 4 + 5 + 1
	r2 := newTestRecord(t, s, 2, nil)   // 3 + 4 + 1
	r3 := newTestRecord(t, s, 3, "abc") // 3 + 4 + 7 + 1

	p.Append(r1)
	p.Append(r3)
	p.Insert(1, r2)
	require.Equal(t, PageOverhead+13+8+15, p.Size())
	require.Equal(t, []*record.Record{r1, r2, r3}, p.Records)

	old := p.Replace(1, r3)
	require.Same(t, r2, old)
	require.Equal(t, PageOverhead+13+15+15, p.Size())

	p.Remove(0)
	require.Equal(t, PageOverhead+30, p.Size())

	assert.False(t, p.Overfull(p.Size()))
	assert.True(t, p.Overfull(p.Size()-1))
}

func TestEncodeDecodePage_RoundTrip(t *testing.T) {
	s := newTestSchema(t)
	rng := rand.New(rand.NewSource(3))
	const capacity = 512

	for range 50 {
		p := NewPage(0, 4)
		p.NextPageID = 5
		for id := 0; ; id++ {
			name := any(nil)
			if rng.Intn(3) > 0 {
				name = string(rune('a' + rng.Intn(26)))
			}
			r := newTestRecord(t, s, id, name)
			if p.Size()+r.Size() > capacity {
				break
			}
			p.Append(r)
		}

		buf, err := EncodePage(s, p, capacity)
		require.NoError(t, err)
		require.Len(t, buf, capacity)

		got, err := DecodePage(s, buf)
		require.NoError(t, err)
		require.Equal(t, p.Len(), got.Len())
		require.Equal(t, p.Size(), got.Size())
		require.Equal(t, int32(5), got.NextPageID)
		for i := range p.Records {
			require.True(t, p.Records[i].Equal(got.Records[i]), "record %d", i)
		}
	}
}

func TestEncodePage_ExactlyFull(t *testing.T) {
	s, err := record.NewSchema(record.Attribute{Name: "k", Type: record.TypeInteger, PrimaryKey: true})
	require.NoError(t, err)

	p := NewPage(0, 0)
	for _, k := range []int{1, 2} {
		r, err := record.New(s, []any{k})
		require.NoError(t, err)
		p.Append(r)
	}
	// 8 overhead + 2 * 5
	buf, err := EncodePage(s, p, 18)
	require.NoError(t, err)
	require.Len(t, buf, 18)
	require.Equal(t, NoNextPage, bx.I32At(buf, 14))

	_, err = EncodePage(s, p, 17)
	require.ErrorIs(t, err, ErrPageOverfull)
}

func TestDecodePage_Corrupt(t *testing.T) {
	s := newTestSchema(t)

	t.Run("short buffer", func(t *testing.T) {
		_, err := DecodePage(s, []byte{0, 0, 0})
		require.ErrorIs(t, err, ErrCorruptPage)
	})

	t.Run("negative count", func(t *testing.T) {
		buf := make([]byte, 64)
		bx.PutI32(buf, -1)
		_, err := DecodePage(s, buf)
		require.ErrorIs(t, err, ErrCorruptPage)
	})

	t.Run("count reads past buffer", func(t *testing.T) {
		p := NewPage(0, 0)
		p.Append(newTestRecord(t, s, 1, "abcdef"))
		buf, err := EncodePage(s, p, 64)
		require.NoError(t, err)

		bx.PutI32(buf, 5)
		_, err = DecodePage(s, buf)
		require.ErrorIs(t, err, ErrCorruptPage)
	})

	t.Run("huge count", func(t *testing.T) {
		buf := make([]byte, 64)
		bx.PutI32(buf, 1<<30)
		_, err := DecodePage(s, buf)
		require.ErrorIs(t, err, ErrCorruptPage)
	})

	t.Run("zero page decodes empty", func(t *testing.T) {
		p, err := DecodePage(s, make([]byte, 64))
		require.NoError(t, err)
		require.Equal(t, 0, p.Len())
	})
}

func TestPage_DebugString(t *testing.T) {
	s := newTestSchema(t)
	p := NewPage(2, 3)
	p.Append(newTestRecord(t, s, 7, "seven"))

	out := p.DebugString(s, 128)
	assert.Contains(t, out, "=== Page 3 (table 2) ===")
	assert.Contains(t, out, `(7, "seven", false)`)
}

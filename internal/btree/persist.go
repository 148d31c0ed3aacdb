package btree

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/tuannm99/novastore/internal/alias/bx"
	"github.com/tuannm99/novastore/internal/alias/util"
	"github.com/tuannm99/novastore/internal/heap"
)

// KeyCodec converts keys to and from their on-disk form.
type KeyCodec[K any] interface {
	AppendKey(dst []byte, k K) ([]byte, error)
	DecodeKey(b []byte) (K, int, error)
}

// noPointer marks the header entry of an index file.
const noPointer int32 = -1

// Encode writes the tree as a sorted key list:
//
//	int32 keyCount | int32 -1 | int32 -1 | keyCount x (key | int32 page | int32 slot)
//
// The structure is not stored; Decode rebuilds it.
func (t *Tree[K]) Encode(codec KeyCodec[K]) ([]byte, error) {
	buf := make([]byte, 0, 12+t.size*16)
	buf = bx.AppendI32(buf, int32(t.size))
	buf = bx.AppendI32(buf, noPointer)
	buf = bx.AppendI32(buf, noPointer)

	var err error
	t.Ascend(func(k K, ptr heap.RecordPointer) bool {
		buf, err = codec.AppendKey(buf, k)
		if err != nil {
			return false
		}
		buf = bx.AppendI32(buf, int32(ptr.PageID))
		buf = bx.AppendI32(buf, int32(ptr.Slot))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("btree: encode key: %w", err)
	}
	return buf, nil
}

// Decode rebuilds a tree of the given order from Encode output.
func Decode[K any](b []byte, order int, cmp func(a, b K) int, codec KeyCodec[K]) (*Tree[K], error) {
	t, err := New(order, cmp)
	if err != nil {
		return nil, err
	}
	if !bx.Fits(b, 0, 12) {
		return nil, fmt.Errorf("%w: short header", ErrCorruptIndex)
	}
	n := int(bx.I32At(b, 0))
	if n < 0 || bx.I32At(b, 4) != noPointer || bx.I32At(b, 8) != noPointer {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptIndex)
	}

	keys := make([]K, 0, min(n, len(b)))
	ptrs := make([]heap.RecordPointer, 0, min(n, len(b)))
	off := 12
	for i := range n {
		k, used, err := codec.DecodeKey(b[off:])
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorruptIndex, i, err)
		}
		off += used
		if !bx.Fits(b, off, pointerSize) {
			return nil, fmt.Errorf("%w: entry %d: truncated pointer", ErrCorruptIndex, i)
		}
		ptr := heap.RecordPointer{PageID: int(bx.I32At(b, off)), Slot: int(bx.I32At(b, off+4))}
		off += pointerSize
		if i > 0 && cmp(keys[i-1], k) >= 0 {
			return nil, fmt.Errorf("%w: keys out of order at %d", ErrCorruptIndex, i)
		}
		keys = append(keys, k)
		ptrs = append(ptrs, ptr)
	}
	if off != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptIndex, len(b)-off)
	}

	t.build(keys, ptrs)
	return t, nil
}

// build bulk-loads sorted unique keys bottom up, spreading entries evenly so
// every node meets its minimum occupancy.
func (t *Tree[K]) build(keys []K, ptrs []heap.RecordPointer) {
	t.root, t.size, t.height = nil, len(keys), 0
	if len(keys) == 0 {
		return
	}

	level := make([]*node[K], 0, ceilDiv(len(keys), t.order))
	lows := make([]K, 0, cap(level))
	for _, r := range spread(len(keys), t.order) {
		level = append(level, &node[K]{
			leaf: true,
			keys: append([]K(nil), keys[r[0]:r[1]]...),
			ptrs: append([]heap.RecordPointer(nil), ptrs[r[0]:r[1]]...),
		})
		lows = append(lows, keys[r[0]])
	}
	for i := 0; i < len(level)-1; i++ {
		level[i].next = level[i+1]
	}
	t.height = 1

	for len(level) > 1 {
		var (
			up     []*node[K]
			upLows []K
		)
		for _, r := range spread(len(level), t.order+1) {
			n := &node[K]{
				keys:     append([]K(nil), lows[r[0]+1:r[1]]...),
				children: append([]*node[K](nil), level[r[0]:r[1]]...),
			}
			up = append(up, n)
			upLows = append(upLows, lows[r[0]])
		}
		level, lows = up, upLows
		t.height++
	}
	t.root = level[0]
}

// spread cuts n items into ceil(n/most) runs whose lengths differ by at
// most one.
func spread(n, most int) [][2]int {
	parts := ceilDiv(n, most)
	out := make([][2]int, 0, parts)
	base, extra := n/parts, n%parts
	lo := 0
	for i := range parts {
		size := base
		if i < extra {
			size++
		}
		out = append(out, [2]int{lo, lo + size})
		lo += size
	}
	return out
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Save writes the encoded tree to path atomically.
func (t *Tree[K]) Save(fsys afero.Fs, path string, codec KeyCodec[K]) error {
	data, err := t.Encode(codec)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(fsys, path, data, util.FileMode0644); err != nil {
		return fmt.Errorf("btree: save %s: %w", path, err)
	}
	slog.Debug("btree.save", "path", path, "keys", t.size, "height", t.height)
	return nil
}

// Load reads a tree saved with Save. It returns (nil, false, nil) when the
// file does not exist.
func Load[K any](fsys afero.Fs, path string, order int, cmp func(a, b K) int, codec KeyCodec[K]) (*Tree[K], bool, error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("btree: load %s: %w", path, err)
	}
	t, err := Decode(data, order, cmp, codec)
	if err != nil {
		return nil, false, fmt.Errorf("btree: load %s: %w", path, err)
	}
	slog.Debug("btree.load", "path", path, "keys", t.size, "height", t.height)
	return t, true, nil
}

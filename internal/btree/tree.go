package btree

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/tuannm99/novastore/internal/heap"
)

// Tree is an in-memory B+Tree from unique keys to record pointers.
//
// order is the maximum number of keys in a node. Every leaf except a root
// leaf holds at least ceil(order/2) keys and every internal node except the
// root at least floor(order/2). Leaves are chained left to right.
type Tree[K any] struct {
	order  int
	cmp    func(a, b K) int
	root   *node[K]
	size   int
	height int
}

// New returns an empty tree. cmp defines the key order.
func New[K any](order int, cmp func(a, b K) int) (*Tree[K], error) {
	if order < MinOrder {
		return nil, fmt.Errorf("%w: got %d", ErrBadOrder, order)
	}
	return &Tree[K]{order: order, cmp: cmp}, nil
}

func (t *Tree[K]) Order() int { return t.order }

// Len is the number of keys.
func (t *Tree[K]) Len() int { return t.size }

// Height is the number of levels; 0 for an empty tree.
func (t *Tree[K]) Height() int { return t.height }

func (t *Tree[K]) minLeaf() int     { return (t.order + 1) / 2 }
func (t *Tree[K]) minInternal() int { return t.order / 2 }

// Search returns the pointer stored for key.
func (t *Tree[K]) Search(key K) (heap.RecordPointer, bool) {
	if t.root == nil {
		return heap.RecordPointer{}, false
	}
	leaf := t.findLeaf(key)
	i, found := leaf.find(key, t.cmp)
	if !found {
		return heap.RecordPointer{}, false
	}
	return leaf.ptrs[i], true
}

func (t *Tree[K]) findLeaf(key K) *node[K] {
	n := t.root
	for !n.leaf {
		n = n.children[n.route(key, t.cmp)]
	}
	return n
}

// Insert stores ptr under key. An existing key has its pointer replaced.
func (t *Tree[K]) Insert(key K, ptr heap.RecordPointer) {
	if t.root == nil {
		t.root = &node[K]{leaf: true, keys: []K{key}, ptrs: []heap.RecordPointer{ptr}}
		t.size, t.height = 1, 1
		return
	}

	sep, right := t.insert(t.root, key, ptr)
	if right == nil {
		return
	}
	t.root = &node[K]{
		keys:     []K{sep},
		children: []*node[K]{t.root, right},
	}
	t.height++
	slog.Debug("btree.root_split", "height", t.height, "keys", t.size)
}

// insert returns the separator and new right sibling when n was split.
func (t *Tree[K]) insert(n *node[K], key K, ptr heap.RecordPointer) (K, *node[K]) {
	var zero K

	if n.leaf {
		i, found := n.find(key, t.cmp)
		if found {
			n.ptrs[i] = ptr
			return zero, nil
		}
		n.keys = slices.Insert(n.keys, i, key)
		n.ptrs = slices.Insert(n.ptrs, i, ptr)
		t.size++
		if len(n.keys) <= t.order {
			return zero, nil
		}
		return t.splitLeaf(n)
	}

	i := n.route(key, t.cmp)
	sep, right := t.insert(n.children[i], key, ptr)
	if right == nil {
		return zero, nil
	}
	n.keys = slices.Insert(n.keys, i, sep)
	n.children = slices.Insert(n.children, i+1, right)
	if len(n.keys) <= t.order {
		return zero, nil
	}
	return t.splitInternal(n)
}

// splitLeaf moves the upper half of n to a new leaf. The new leaf's first
// key is copied up as the separator.
func (t *Tree[K]) splitLeaf(n *node[K]) (K, *node[K]) {
	mid := len(n.keys) / 2
	right := &node[K]{
		leaf: true,
		keys: slices.Clone(n.keys[mid:]),
		ptrs: slices.Clone(n.ptrs[mid:]),
		next: n.next,
	}
	n.keys = slices.Clip(n.keys[:mid])
	n.ptrs = slices.Clip(n.ptrs[:mid])
	n.next = right
	return right.keys[0], right
}

// splitInternal moves the keys after the middle one to a new node. The
// middle key moves up and is kept in neither half.
func (t *Tree[K]) splitInternal(n *node[K]) (K, *node[K]) {
	mid := len(n.keys) / 2
	sep := n.keys[mid]
	right := &node[K]{
		keys:     slices.Clone(n.keys[mid+1:]),
		children: slices.Clone(n.children[mid+1:]),
	}
	clear(n.children[mid+1:])
	n.keys = slices.Clip(n.keys[:mid])
	n.children = slices.Clip(n.children[:mid+1])
	return sep, right
}

// Delete removes key and returns the pointer it held.
func (t *Tree[K]) Delete(key K) (heap.RecordPointer, bool) {
	if t.root == nil {
		return heap.RecordPointer{}, false
	}
	ptr, ok := t.delete(t.root, key)
	if !ok {
		return heap.RecordPointer{}, false
	}
	t.size--

	switch {
	case !t.root.leaf && len(t.root.keys) == 0:
		t.root = t.root.children[0]
		t.height--
		slog.Debug("btree.root_collapse", "height", t.height, "keys", t.size)
	case t.root.leaf && len(t.root.keys) == 0:
		t.root = nil
		t.height = 0
	}
	return ptr, true
}

func (t *Tree[K]) delete(n *node[K], key K) (heap.RecordPointer, bool) {
	if n.leaf {
		i, found := n.find(key, t.cmp)
		if !found {
			return heap.RecordPointer{}, false
		}
		ptr := n.ptrs[i]
		n.keys = slices.Delete(n.keys, i, i+1)
		n.ptrs = slices.Delete(n.ptrs, i, i+1)
		return ptr, true
	}

	i := n.route(key, t.cmp)
	ptr, ok := t.delete(n.children[i], key)
	if !ok {
		return ptr, false
	}
	if t.underflow(n.children[i]) {
		t.rebalance(n, i)
	}
	return ptr, true
}

func (t *Tree[K]) underflow(n *node[K]) bool {
	if n.leaf {
		return len(n.keys) < t.minLeaf()
	}
	return len(n.keys) < t.minInternal()
}

func (t *Tree[K]) surplus(n *node[K]) bool {
	if n.leaf {
		return len(n.keys) > t.minLeaf()
	}
	return len(n.keys) > t.minInternal()
}

// Leaf is a snapshot of one leaf node.
type Leaf[K any] struct {
	Keys     []K
	Pointers []heap.RecordPointer
}

// Leaves returns every leaf from left to right, following the leaf chain.
func (t *Tree[K]) Leaves() []Leaf[K] {
	var out []Leaf[K]
	for n := t.firstLeaf(); n != nil; n = n.next {
		out = append(out, Leaf[K]{
			Keys:     slices.Clone(n.keys),
			Pointers: slices.Clone(n.ptrs),
		})
	}
	return out
}

func (t *Tree[K]) firstLeaf() *node[K] {
	n := t.root
	if n == nil {
		return nil
	}
	for !n.leaf {
		n = n.children[0]
	}
	return n
}

// Ascend calls fn for every key in ascending order until fn returns false.
func (t *Tree[K]) Ascend(fn func(key K, ptr heap.RecordPointer) bool) {
	for n := t.firstLeaf(); n != nil; n = n.next {
		for i, k := range n.keys {
			if !fn(k, n.ptrs[i]) {
				return
			}
		}
	}
}

// Range calls fn for every key in [lo, hi] in ascending order until fn
// returns false.
func (t *Tree[K]) Range(lo, hi K, fn func(key K, ptr heap.RecordPointer) bool) {
	if t.root == nil || t.cmp(lo, hi) > 0 {
		return
	}
	n := t.findLeaf(lo)
	i, _ := n.find(lo, t.cmp)
	for ; n != nil; n, i = n.next, 0 {
		for ; i < len(n.keys); i++ {
			if t.cmp(n.keys[i], hi) > 0 {
				return
			}
			if !fn(n.keys[i], n.ptrs[i]) {
				return
			}
		}
	}
}

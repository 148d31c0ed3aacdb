package btree

import (
	"slices"

	"github.com/tuannm99/novastore/internal/heap"
)

// node is either a leaf (keys + ptrs + next) or an internal node
// (keys + len(keys)+1 children). Child i holds the keys in
// [keys[i-1], keys[i]).
type node[K any] struct {
	leaf     bool
	keys     []K
	children []*node[K]
	ptrs     []heap.RecordPointer
	next     *node[K]
}

// find is a binary search for key in n.keys.
func (n *node[K]) find(key K, cmp func(a, b K) int) (int, bool) {
	return slices.BinarySearchFunc(n.keys, key, cmp)
}

// route picks the child for key: the first index whose separator is > key.
func (n *node[K]) route(key K, cmp func(a, b K) int) int {
	i, found := n.find(key, cmp)
	if found {
		i++
	}
	return i
}

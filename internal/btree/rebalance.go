package btree

import (
	"slices"
)

// rebalance fixes an underflowing child of parent at index i: borrow from
// the left sibling if it has a key to spare, else from the right one, else
// merge with a sibling. The parent may underflow in turn; its own parent
// deals with that on the way up.
func (t *Tree[K]) rebalance(parent *node[K], i int) {
	child := parent.children[i]

	if i > 0 {
		if left := parent.children[i-1]; t.surplus(left) {
			t.borrowFromLeft(parent, child, left, i)
			return
		}
	}
	if i < len(parent.children)-1 {
		if right := parent.children[i+1]; t.surplus(right) {
			t.borrowFromRight(parent, child, right, i)
			return
		}
	}

	if i > 0 {
		t.mergeNodes(parent, parent.children[i-1], child, i-1)
		return
	}
	t.mergeNodes(parent, child, parent.children[i+1], i)
}

func (t *Tree[K]) borrowFromLeft(parent, child, left *node[K], i int) {
	last := len(left.keys) - 1

	if child.leaf {
		// the left sibling's last entry moves over and becomes the separator
		child.keys = slices.Insert(child.keys, 0, left.keys[last])
		child.ptrs = slices.Insert(child.ptrs, 0, left.ptrs[last])
		left.keys = left.keys[:last]
		left.ptrs = left.ptrs[:last]
		parent.keys[i-1] = child.keys[0]
		return
	}

	// rotate through the parent: separator down, left's last key up
	lastChild := len(left.children) - 1
	child.keys = slices.Insert(child.keys, 0, parent.keys[i-1])
	child.children = slices.Insert(child.children, 0, left.children[lastChild])
	parent.keys[i-1] = left.keys[last]
	left.keys = left.keys[:last]
	left.children[lastChild] = nil
	left.children = left.children[:lastChild]
}

func (t *Tree[K]) borrowFromRight(parent, child, right *node[K], i int) {
	if child.leaf {
		child.keys = append(child.keys, right.keys[0])
		child.ptrs = append(child.ptrs, right.ptrs[0])
		right.keys = slices.Delete(right.keys, 0, 1)
		right.ptrs = slices.Delete(right.ptrs, 0, 1)
		parent.keys[i] = right.keys[0]
		return
	}

	child.keys = append(child.keys, parent.keys[i])
	child.children = append(child.children, right.children[0])
	parent.keys[i] = right.keys[0]
	right.keys = slices.Delete(right.keys, 0, 1)
	right.children = slices.Delete(right.children, 0, 1)
}

// mergeNodes folds right into left and drops the separator at parent index
// li together with the pointer to right.
func (t *Tree[K]) mergeNodes(parent, left, right *node[K], li int) {
	if left.leaf {
		left.keys = append(left.keys, right.keys...)
		left.ptrs = append(left.ptrs, right.ptrs...)
		left.next = right.next
	} else {
		left.keys = append(left.keys, parent.keys[li])
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
	}

	parent.keys = slices.Delete(parent.keys, li, li+1)
	parent.children = slices.Delete(parent.children, li+1, li+2)
}

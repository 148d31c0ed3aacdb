package btree

import "errors"

var (
	ErrBadOrder     = errors.New("btree: order must be at least 3")
	ErrCorruptIndex = errors.New("btree: corrupt index file")
)

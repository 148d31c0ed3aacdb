package btree

import "github.com/tuannm99/novastore/internal/storage"

// pointerSize is an encoded RecordPointer: two int32.
const pointerSize = 8

const MinOrder = 3

// OrderFor returns the largest order whose node of keySize-byte keys and
// their pointers fits in one page of pageSize bytes.
func OrderFor(pageSize, keySize int) int {
	if keySize <= 0 {
		keySize = 1
	}
	free := pageSize - storage.PageOverhead
	return max(free/(keySize+pointerSize), MinOrder)
}

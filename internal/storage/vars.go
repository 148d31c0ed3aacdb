package storage

import (
	"errors"
)

const (
	// HeaderSize is the data file header: int32 count of physical slots.
	HeaderSize = 4

	// PageOverhead is the fixed part of an encoded page: int32 record count
	// plus the int32 next-page trailer.
	PageOverhead = 8

	// NoNextPage marks the last page of a table in the trailer.
	NoNextPage int32 = -1

	MinPageCapacity = 64
)

var (
	ErrPageNotFound = errors.New("storage: page not found")
	ErrCorruptPage  = errors.New("storage: page is corrupted")
	ErrIO           = errors.New("storage: I/O error")
	ErrPageOverfull = errors.New("storage: page content exceeds capacity")
)

// stand for bytes helper
//
// Every on-disk integer in novastore is big-endian, fixed width.
package bx

import (
	"encoding/binary"
	"math"
)

var BE = binary.BigEndian

// --- read ---
func I32(b []byte) int32   { return int32(BE.Uint32(b)) }
func F64(b []byte) float64 { return math.Float64frombits(BE.Uint64(b)) }

// --- write ---
func PutI32(b []byte, v int32)   { BE.PutUint32(b, uint32(v)) }
func PutF64(b []byte, v float64) { BE.PutUint64(b, math.Float64bits(v)) }

// --- At (offset) ---
func I32At(b []byte, off int) int32       { return I32(b[off:]) }
func PutI32At(b []byte, off int, v int32) { PutI32(b[off:], v) }

// --- append ---
func AppendI32(b []byte, v int32) []byte   { return BE.AppendUint32(b, uint32(v)) }
func AppendF64(b []byte, v float64) []byte { return BE.AppendUint64(b, math.Float64bits(v)) }

// Fits reports whether n bytes can be read from b starting at off.
func Fits(b []byte, off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(b)
}

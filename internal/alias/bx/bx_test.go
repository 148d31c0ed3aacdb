package bx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBigEndianReadWrite verifies that the signed helpers round-trip and
// lay bytes out most-significant first.
func TestBigEndianReadWrite(t *testing.T) {
	{
		b := make([]byte, 4)
		var v int32 = 0x01020304

		PutI32(b, v)
		// BE: 01 02 03 04
		assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, b)
		assert.Equal(t, v, I32(b))
	}

	{
		b := make([]byte, 4)
		PutI32(b, -1)
		assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, b)
		assert.Equal(t, int32(-1), I32(b))
	}

	{
		b := make([]byte, 8)
		PutF64(b, math.Pi)
		assert.Equal(t, math.Pi, F64(b))
	}
}

func TestAtAndAppend(t *testing.T) {
	buf := make([]byte, 12)

	PutI32At(buf, 0, 7)
	PutI32At(buf, 8, math.MinInt32)

	assert.Equal(t, int32(7), I32At(buf, 0))
	assert.Equal(t, int32(0), I32At(buf, 4))
	assert.Equal(t, int32(math.MinInt32), I32At(buf, 8))

	out := AppendI32(nil, 42)
	out = AppendF64(out, -2.5)
	assert.Len(t, out, 12)
	assert.Equal(t, int32(42), I32(out[0:4]))
	assert.Equal(t, -2.5, F64(out[4:12]))
}

func TestFits(t *testing.T) {
	b := make([]byte, 8)
	assert.True(t, Fits(b, 0, 8))
	assert.True(t, Fits(b, 4, 4))
	assert.False(t, Fits(b, 5, 4))
	assert.False(t, Fits(b, -1, 1))
	assert.False(t, Fits(b, 0, -1))
}

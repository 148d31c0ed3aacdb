package record

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/tuannm99/novastore/internal/alias/bx"
)

var (
	ErrBadBuffer       = errors.New("rowcodec: buffer underflow/overflow")
	ErrUnsupportedType = errors.New("rowcodec: unsupported type")
)

// ---- EncodeRecord(schema, record) -> []byte ----
// Format:
// [nullmap: 1 byte per attribute, 1 => NULL] | [value0?] [value1?] ...
//
//	integer  int32 BE            4
//	double   IEEE-754 BE         8
//	boolean  0/1                 1
//	char(N)  raw, zero padded    N
//	varchar  int32 BE len + UTF-8
func EncodeRecord(s Schema, r *Record) ([]byte, error) {
	return AppendRecord(make([]byte, 0, r.Size()), s, r)
}

func AppendRecord(dst []byte, s Schema, r *Record) ([]byte, error) {
	nc := s.NumAttrs()
	if len(r.Values) != nc || len(r.Nulls) != nc {
		return nil, ErrSchemaMismatch
	}
	for i := range nc {
		if r.Nulls[i] {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	}

	var err error
	for i, a := range s.Attrs {
		if r.Nulls[i] {
			continue
		}
		dst, err = AppendValue(dst, a, r.Values[i])
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// AppendValue encodes one non-null value of attribute a.
func AppendValue(dst []byte, a Attribute, v any) ([]byte, error) {
	v, err := Coerce(a, v)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: cannot encode null %s", ErrSchemaMismatch, a.Name)
	}

	switch a.Type {
	case TypeInteger:
		return bx.AppendI32(dst, v.(int32)), nil
	case TypeDouble:
		return bx.AppendF64(dst, v.(float64)), nil
	case TypeBoolean:
		if v.(bool) {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case TypeChar:
		str := v.(string)
		dst = append(dst, str...)
		for range a.Length - len(str) {
			dst = append(dst, 0)
		}
		return dst, nil
	case TypeVarchar:
		str := v.(string)
		if len(str) > math.MaxInt32 {
			return nil, ErrValueTooLong
		}
		dst = bx.AppendI32(dst, int32(len(str)))
		return append(dst, str...), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// ---- DecodeRecord(schema, buf) -> record, bytes consumed ----
func DecodeRecord(s Schema, buf []byte) (*Record, int, error) {
	nc := s.NumAttrs()
	if len(buf) < nc {
		return nil, 0, ErrBadBuffer
	}

	r := &Record{
		Values: make([]any, nc),
		Nulls:  make([]bool, nc),
	}
	for i := range nc {
		switch buf[i] {
		case 0:
		case 1:
			r.Nulls[i] = true
		default:
			return nil, 0, fmt.Errorf("%w: null flag %d for %s", ErrBadBuffer, buf[i], s.Attrs[i].Name)
		}
	}

	off := nc
	for i, a := range s.Attrs {
		if r.Nulls[i] {
			continue
		}
		v, n, err := DecodeValue(a, buf[off:])
		if err != nil {
			return nil, 0, err
		}
		r.Values[i] = v
		off += n
	}
	r.size = off
	return r, off, nil
}

// DecodeValue is the inverse of AppendValue; it returns the value and the
// number of bytes consumed.
func DecodeValue(a Attribute, buf []byte) (any, int, error) {
	switch a.Type {
	case TypeInteger:
		if !bx.Fits(buf, 0, 4) {
			return nil, 0, ErrBadBuffer
		}
		return bx.I32(buf), 4, nil

	case TypeDouble:
		if !bx.Fits(buf, 0, 8) {
			return nil, 0, ErrBadBuffer
		}
		return bx.F64(buf), 8, nil

	case TypeBoolean:
		if !bx.Fits(buf, 0, 1) {
			return nil, 0, ErrBadBuffer
		}
		switch buf[0] {
		case 0:
			return false, 1, nil
		case 1:
			return true, 1, nil
		}
		return nil, 0, fmt.Errorf("%w: boolean byte %d", ErrBadBuffer, buf[0])

	case TypeChar:
		if !bx.Fits(buf, 0, a.Length) {
			return nil, 0, ErrBadBuffer
		}
		raw := bytes.TrimRight(buf[:a.Length], "\x00")
		return string(raw), a.Length, nil

	case TypeVarchar:
		if !bx.Fits(buf, 0, 4) {
			return nil, 0, ErrBadBuffer
		}
		l := int(bx.I32(buf))
		if !bx.Fits(buf, 4, l) {
			return nil, 0, ErrBadBuffer
		}
		return string(buf[4 : 4+l]), 4 + l, nil

	default:
		return nil, 0, ErrUnsupportedType
	}
}

// KeyCodec encodes index keys with the attribute's value encoding.
type KeyCodec struct {
	Attr Attribute
}

func (c KeyCodec) AppendKey(dst []byte, k any) ([]byte, error) {
	return AppendValue(dst, c.Attr, k)
}

func (c KeyCodec) DecodeKey(b []byte) (any, int, error) {
	return DecodeValue(c.Attr, b)
}

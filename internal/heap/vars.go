package heap

import (
	"errors"
	"fmt"
)

var (
	ErrConstraintViolation = errors.New("heap: constraint violation")
	ErrRecordTooLarge      = errors.New("heap: record does not fit in a page")
	ErrRecordNotFound      = errors.New("heap: record not found")
	ErrInvalidAlter        = errors.New("heap: invalid alter")
	ErrSplitTooSmall       = errors.New("heap: page has fewer than two records to split")

	errStop = errors.New("heap: stop scan")
)

type ConstraintKind uint8

const (
	NotNull ConstraintKind = iota + 1
	Unique
	PrimaryKey
)

func (k ConstraintKind) String() string {
	switch k {
	case NotNull:
		return "not null"
	case Unique:
		return "unique"
	case PrimaryKey:
		return "primary key"
	default:
		return "unknown"
	}
}

// ConstraintError reports the attribute and value that a statement would
// have violated. errors.Is(err, ErrConstraintViolation) holds for it.
type ConstraintError struct {
	Table string
	Attr  string
	Kind  ConstraintKind
	Value any
}

func (e *ConstraintError) Error() string {
	if e.Kind == NotNull {
		return fmt.Sprintf("heap: %s.%s must not be null", e.Table, e.Attr)
	}
	return fmt.Sprintf("heap: duplicate %s value %v for %s.%s", e.Kind, e.Value, e.Table, e.Attr)
}

func (e *ConstraintError) Unwrap() error { return ErrConstraintViolation }

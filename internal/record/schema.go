package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Type uint8

const (
	TypeInteger Type = iota + 1 // int32
	TypeDouble                  // float64
	TypeBoolean
	TypeChar    // fixed N bytes
	TypeVarchar // up to N runes, length-prefixed
)

var (
	ErrUnknownType      = errors.New("record: unknown attribute type")
	ErrBadAttribute     = errors.New("record: invalid attribute")
	ErrDuplicateAttr    = errors.New("record: duplicate attribute name")
	ErrNoPrimaryKey     = errors.New("record: schema has no primary key")
	ErrManyPrimaryKeys  = errors.New("record: schema has more than one primary key")
	ErrAttributeMissing = errors.New("record: attribute not found")
)

func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeDouble:
		return "double"
	case TypeBoolean:
		return "boolean"
	case TypeChar:
		return "char"
	case TypeVarchar:
		return "varchar"
	default:
		return "unknown"
	}
}

// ParseType accepts "integer", "int", "double", "boolean", "bool",
// "char(N)" and "varchar(N)" and returns the type with its length.
func ParseType(s string) (Type, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "integer", "int":
		return TypeInteger, 0, nil
	case "double":
		return TypeDouble, 0, nil
	case "boolean", "bool":
		return TypeBoolean, 0, nil
	}

	for _, c := range []struct {
		prefix string
		typ    Type
	}{{"varchar(", TypeVarchar}, {"char(", TypeChar}} {
		if !strings.HasPrefix(s, c.prefix) || !strings.HasSuffix(s, ")") {
			continue
		}
		n, err := strconv.Atoi(s[len(c.prefix) : len(s)-1])
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("%w: bad length in %q", ErrBadAttribute, s)
		}
		return c.typ, n, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

type Attribute struct {
	Name       string `json:"name"`
	Type       Type   `json:"type"`
	Length     int    `json:"length,omitempty"`
	NotNull    bool   `json:"not_null,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Unique     bool   `json:"unique,omitempty"`
}

// Normalize applies the implied flags: a primary key is always not null and
// unique.
func (a Attribute) Normalize() Attribute {
	if a.PrimaryKey {
		a.NotNull = true
		a.Unique = true
	}
	return a
}

func (a Attribute) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrBadAttribute)
	}
	switch a.Type {
	case TypeInteger, TypeDouble, TypeBoolean:
		if a.Length != 0 {
			return fmt.Errorf("%w: %s %s takes no length", ErrBadAttribute, a.Name, a.Type)
		}
	case TypeChar, TypeVarchar:
		if a.Length <= 0 {
			return fmt.Errorf("%w: %s %s needs a positive length", ErrBadAttribute, a.Name, a.Type)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownType, a.Name)
	}
	return nil
}

// TypeName renders the SQL-ish type, e.g. "varchar(32)".
func (a Attribute) TypeName() string {
	if a.Type == TypeChar || a.Type == TypeVarchar {
		return fmt.Sprintf("%s(%d)", a.Type, a.Length)
	}
	return a.Type.String()
}

func (a Attribute) String() string {
	var b strings.Builder
	b.WriteString(a.Name)
	b.WriteByte(' ')
	b.WriteString(a.TypeName())
	switch {
	case a.PrimaryKey:
		b.WriteString(" primarykey")
	default:
		if a.NotNull {
			b.WriteString(" notnull")
		}
		if a.Unique {
			b.WriteString(" unique")
		}
	}
	return b.String()
}

// MaxSize is the largest encoded size a non-null value of a can take.
func (a Attribute) MaxSize() int {
	switch a.Type {
	case TypeInteger:
		return 4
	case TypeDouble:
		return 8
	case TypeBoolean:
		return 1
	case TypeChar:
		return a.Length
	case TypeVarchar:
		return 4 + a.Length*4 // worst case UTF-8
	}
	return 0
}

type Schema struct {
	Attrs []Attribute `json:"attrs"`
}

func NewSchema(attrs ...Attribute) (Schema, error) {
	s := Schema{Attrs: make([]Attribute, 0, len(attrs))}
	for _, a := range attrs {
		s.Attrs = append(s.Attrs, a.Normalize())
	}
	return s, s.Validate()
}

func (s Schema) NumAttrs() int { return len(s.Attrs) }

// Validate checks names, types and the single-primary-key rule.
func (s Schema) Validate() error {
	if len(s.Attrs) == 0 {
		return fmt.Errorf("%w: schema has no attributes", ErrBadAttribute)
	}
	seen := make(map[string]struct{}, len(s.Attrs))
	pks := 0
	for _, a := range s.Attrs {
		if err := a.Validate(); err != nil {
			return err
		}
		name := strings.ToLower(a.Name)
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAttr, a.Name)
		}
		seen[name] = struct{}{}
		if a.PrimaryKey {
			pks++
		}
	}
	switch {
	case pks == 0:
		return ErrNoPrimaryKey
	case pks > 1:
		return ErrManyPrimaryKeys
	}
	return nil
}

// Index returns the position of the named attribute (case-insensitive) or -1.
func (s Schema) Index(name string) int {
	for i, a := range s.Attrs {
		if strings.EqualFold(a.Name, name) {
			return i
		}
	}
	return -1
}

// PrimaryKey returns the position of the primary key attribute or -1.
func (s Schema) PrimaryKey() int {
	for i, a := range s.Attrs {
		if a.PrimaryKey {
			return i
		}
	}
	return -1
}

// With returns a copy of s with a appended.
func (s Schema) With(a Attribute) Schema {
	attrs := make([]Attribute, 0, len(s.Attrs)+1)
	attrs = append(attrs, s.Attrs...)
	attrs = append(attrs, a.Normalize())
	return Schema{Attrs: attrs}
}

// Without returns a copy of s without the attribute at i.
func (s Schema) Without(i int) Schema {
	attrs := make([]Attribute, 0, len(s.Attrs))
	attrs = append(attrs, s.Attrs[:i]...)
	attrs = append(attrs, s.Attrs[i+1:]...)
	return Schema{Attrs: attrs}
}

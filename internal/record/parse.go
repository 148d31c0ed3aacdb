package record

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// ParseValue turns a textual literal into a value for a. "null" (any case)
// yields nil; strings may be wrapped in single or double quotes.
func ParseValue(a Attribute, s string) (any, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return nil, nil
	}

	var (
		v   any
		err error
	)
	switch a.Type {
	case TypeInteger:
		v, err = cast.ToInt32E(s)
	case TypeDouble:
		v, err = cast.ToFloat64E(s)
	case TypeBoolean:
		v, err = cast.ToBoolE(s)
	case TypeChar, TypeVarchar:
		v = unquote(s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, a.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTypeMismatch, a.Name, a.TypeName(), err)
	}
	return Coerce(a, v)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

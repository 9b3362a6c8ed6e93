package querysync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// ToArray coerces a scalar into a one-element string array. Arrays pass
// through as []string; empty values become nil.
func ToArray(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = fmt.Sprint(e)
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return []string{fmt.Sprint(t)}
	}
}

// ToInt parses a string into an int, leaving unparsable values unchanged.
func ToInt(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return v
	}
	return n
}

// ToBool parses a string into a bool, leaving unparsable values unchanged.
func ToBool(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return v
	}
	return b
}

// Formatters maps the names used in screen files to formatters.
var Formatters = map[string]grid.Formatter{
	"array": ToArray,
	"int":   ToInt,
	"bool":  ToBool,
}

// LookupFormatter returns the named formatter.
func LookupFormatter(name string) (grid.Formatter, error) {
	fn, ok := Formatters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown query formatter %q", name)
	}
	return fn, nil
}

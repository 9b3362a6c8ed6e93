package querysync

// codec.go converts between a grid.Query and URL query parameters.
//
// Scalars are written with strconv formatting. Arrays follow the configured
// ArrayFormat. Fields listed as JSON fields (sort_columns by default) carry
// structured values and are written as compact JSON.

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// ArrayFormat selects how array values appear in the URL.
type ArrayFormat string

const (
	// ArrayBrackets writes k[]=a&k[]=b and keeps single-element arrays
	// arrays on read.
	ArrayBrackets ArrayFormat = "brackets"
	// ArrayRepeat writes k=a&k=b.
	ArrayRepeat ArrayFormat = "repeat"
	// ArrayComma writes k=a,b. Only ArrayFields are split on read.
	ArrayComma ArrayFormat = "comma"
)

// ParseArrayFormat validates a configured array format name.
func ParseArrayFormat(s string) (ArrayFormat, error) {
	switch f := ArrayFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ArrayBrackets, ArrayRepeat, ArrayComma:
		return f, nil
	case "":
		return ArrayBrackets, nil
	default:
		return "", fmt.Errorf("unknown array format %q", s)
	}
}

// Codec encodes and decodes queries for one table.
type Codec struct {
	Format     ArrayFormat
	JSONFields []string
	// ArrayFields are the multi-valued fields. With ArrayComma they are the
	// only values split on commas; every other value reads back whole.
	ArrayFields []string
	QueryFormat map[string]grid.Formatter
}

// Encode applies the query formatters and writes every non-empty value
// into url.Values. A value that cannot be represented fails the whole
// encode so the caller can skip the URL write.
func (c Codec) Encode(q grid.Query) (url.Values, error) {
	q = grid.ApplyQueryFormat(q, c.QueryFormat)
	out := url.Values{}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		v := q[k]
		if grid.IsEmptyValue(v) {
			continue
		}
		if slices.Contains(c.JSONFields, k) {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", k, err)
			}
			out.Set(k, string(b))
			continue
		}

		if list, ok := asList(v); ok {
			strs := make([]string, 0, len(list))
			for _, e := range list {
				s, err := scalarString(e)
				if err != nil {
					return nil, fmt.Errorf("encode %s: %w", k, err)
				}
				strs = append(strs, s)
			}
			c.setArray(out, k, strs)
			continue
		}

		s, err := scalarString(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		out.Set(k, s)
	}
	return out, nil
}

func (c Codec) setArray(out url.Values, k string, strs []string) {
	switch c.format() {
	case ArrayRepeat:
		out[k] = strs
	case ArrayComma:
		out.Set(k, strings.Join(strs, ","))
	default:
		out[k+"[]"] = strs
	}
}

// Decode reads url values into a query and applies the query formatters.
// accept filters the field names that belong to the query; nil accepts
// every name.
func (c Codec) Decode(values url.Values, accept func(field string) bool) grid.Query {
	q := grid.Query{}
	for rawKey, vals := range values {
		if len(vals) == 0 {
			continue
		}
		key, bracketed := strings.CutSuffix(rawKey, "[]")
		if accept != nil && !accept(key) {
			continue
		}

		switch {
		case slices.Contains(c.JSONFields, key):
			var v any
			if err := json.Unmarshal([]byte(vals[0]), &v); err == nil {
				q[key] = v
			}
		case bracketed:
			q[key] = slices.Clone(vals)
		case len(vals) > 1:
			q[key] = slices.Clone(vals)
		case c.format() == ArrayComma && slices.Contains(c.ArrayFields, key):
			q[key] = strings.Split(vals[0], ",")
		default:
			q[key] = vals[0]
		}
	}
	return grid.ApplyQueryFormat(q, c.QueryFormat)
}

// ManagedParams returns every raw URL parameter name a field may occupy.
func ManagedParams(field string) []string {
	return []string{field, field + "[]"}
}

func (c Codec) format() ArrayFormat {
	if c.Format == "" {
		return ArrayBrackets
	}
	return c.Format
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(t).Int(), 10), nil
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(t).Uint(), 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", fmt.Errorf("value of type %T is not URL-serializable", v)
	}
}

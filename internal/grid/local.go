package grid

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// KeywordField is the query field local sources treat as a free-text
// search across every row field.
const KeywordField = "keyword"

// SortColumnsField is the query field carrying the sort wire format.
const SortColumnsField = "sort_columns"

// FilterRows keeps rows whose field value matches one of the selected
// values for every non-empty filter.
func FilterRows(rows []Row, filters Filters) []Row {
	if len(filters) == 0 {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if rowMatchesFilters(row, filters) {
			out = append(out, row)
		}
	}
	return out
}

func rowMatchesFilters(row Row, filters Filters) bool {
	for field, values := range filters {
		if len(values) == 0 {
			continue
		}
		cell := fmt.Sprint(row[field])
		if !slices.ContainsFunc(values, func(v any) bool { return fmt.Sprint(v) == cell }) {
			return false
		}
	}
	return true
}

// MatchQuery keeps rows matching the query. The keyword field searches
// every cell case-insensitively; other fields present on the row match by
// case-insensitive substring for scalars and membership for arrays. Fields
// unknown to the rows are ignored.
func MatchQuery(rows []Row, q Query) []Row {
	if len(q) == 0 {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if rowMatchesQuery(row, q) {
			out = append(out, row)
		}
	}
	return out
}

func rowMatchesQuery(row Row, q Query) bool {
	for field, want := range q {
		if field == SortColumnsField || IsEmptyValue(want) {
			continue
		}
		if field == KeywordField {
			if !rowContains(row, fmt.Sprint(want)) {
				return false
			}
			continue
		}
		cell, ok := row[field]
		if !ok {
			continue
		}
		if !valueMatches(cell, want) {
			return false
		}
	}
	return true
}

func rowContains(row Row, needle string) bool {
	needle = strings.ToLower(needle)
	for _, v := range row {
		if strings.Contains(strings.ToLower(fmt.Sprint(v)), needle) {
			return true
		}
	}
	return false
}

func valueMatches(cell, want any) bool {
	cellStr := fmt.Sprint(cell)
	switch w := want.(type) {
	case []string:
		return len(w) == 0 || slices.Contains(w, cellStr)
	case []any:
		return len(w) == 0 || slices.ContainsFunc(w, func(v any) bool { return fmt.Sprint(v) == cellStr })
	case string:
		return strings.Contains(strings.ToLower(cellStr), strings.ToLower(w))
	default:
		return fmt.Sprint(w) == cellStr
	}
}

// SortRows returns a sorted copy. Numeric cells compare numerically,
// everything else as strings; nil sorts first.
func SortRows(rows []Row, specs []SortSpec) []Row {
	out := slices.Clone(rows)
	if len(specs) == 0 {
		return out
	}
	slices.SortStableFunc(out, func(a, b Row) int {
		for _, s := range specs {
			c := compareCells(a[s.Column], b[s.Column])
			if s.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return out
}

func compareCells(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return cmp.Compare(af, bf)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// PageRows returns the rows of page current.
func PageRows(rows []Row, current, pageSize int) []Row {
	current, pageSize, _ = normalizePagination(current, pageSize, 0)
	start := (current - 1) * pageSize
	if start >= len(rows) {
		return []Row{}
	}
	end := min(start+pageSize, len(rows))
	return rows[start:end]
}

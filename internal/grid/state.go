package grid

import (
	"maps"
	"slices"
)

// Query is the authoritative query object for a table. The URL is a derived
// view of it, never the source of truth.
type Query map[string]any

// Filters maps a field to the values selected for it.
type Filters map[string][]any

// SortSpec is a single entry of the sort_columns wire format.
type SortSpec struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// Pagination holds the page position of a table.
type Pagination struct {
	Current  int `json:"current"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// State is the shared table state. It is only ever changed through a
// Store; readers receive copies.
type State struct {
	Query           Query          `json:"query"`
	Filters         Filters        `json:"filters"`
	Sort            []SortSpec     `json:"sort"`
	Pagination      Pagination     `json:"pagination"`
	SelectedRowKeys []string       `json:"selectedRowKeys"`
	Plugins         map[string]any `json:"plugins"`
	ReloadSeq       uint64         `json:"reloadSeq"`
}

// Clone returns a deep copy of q.
func (q Query) Clone() Query {
	if q == nil {
		return Query{}
	}
	out := make(Query, len(q))
	for k, v := range q {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of f.
func (f Filters) Clone() Filters {
	if f == nil {
		return Filters{}
	}
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = slices.Clone(v)
	}
	return out
}

// Clone returns a deep copy of s. Plugin sub-state values are copied
// shallowly; plugins store immutable values there.
func (s State) Clone() State {
	out := s
	out.Query = s.Query.Clone()
	out.Filters = s.Filters.Clone()
	out.Sort = slices.Clone(s.Sort)
	out.SelectedRowKeys = slices.Clone(s.SelectedRowKeys)
	out.Plugins = maps.Clone(s.Plugins)
	if out.Plugins == nil {
		out.Plugins = map[string]any{}
	}
	return out
}

// PluginState returns the sub-state stored for a plugin.
func (s State) PluginState(name Name) (any, bool) {
	v, ok := s.Plugins[string(name)]
	return v, ok
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []int:
		return slices.Clone(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// IsEmptyValue reports whether v carries no filter or query information:
// nil, "", or an empty slice.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case []int:
		return len(t) == 0
	default:
		return false
	}
}

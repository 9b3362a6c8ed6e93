package plugins

import (
	"slices"
	"sync"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// Sorter turns UI sorters into sort state and the sort_columns query
// field: [{column, desc}]. When the query changes from elsewhere, such as
// a URL read, the sort state follows sort_columns.
type Sorter struct {
	mu    sync.Mutex
	unsub func()
}

func NewSorter() *Sorter { return &Sorter{} }

func (*Sorter) Metadata() grid.Metadata {
	return grid.Metadata{
		Name:     grid.PluginSorter,
		Version:  "1.0.0",
		Priority: 80,
		Enabled:  true,
	}
}

func (s *Sorter) Setup(pc *grid.PluginContext) error {
	unsub := pc.Store.Subscribe(func(st grid.State, a grid.Action) {
		if _, ok := a.(grid.SetQuery); !ok {
			return
		}
		specs := ParseSortColumns(st.Query[grid.SortColumnsField])
		if !slices.Equal(specs, st.Sort) {
			pc.Helpers.SetSort(specs)
		}
	})

	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()

	// The query may already carry a sort when setup runs.
	st := pc.State()
	if specs := ParseSortColumns(st.Query[grid.SortColumnsField]); len(specs) > 0 {
		pc.Helpers.SetSort(specs)
	}
	return nil
}

func (s *Sorter) Uninstall(*grid.PluginContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	return nil
}

func (*Sorter) OnSorterChange(pc *grid.PluginContext, sorter grid.SorterInfo) error {
	specs := SortSpecs(sorter)
	pc.Helpers.SetSort(specs)

	if len(specs) == 0 {
		pc.Helpers.SetQuery(grid.Query{grid.SortColumnsField: nil})
		return nil
	}
	wire := make([]any, len(specs))
	for i, s := range specs {
		wire[i] = map[string]any{"column": s.Column, "desc": s.Desc}
	}
	pc.Helpers.SetQuery(grid.Query{grid.SortColumnsField: wire})
	return nil
}

// SortSpecs drops sorters without a field or an order.
func SortSpecs(sorter grid.SorterInfo) []grid.SortSpec {
	var out []grid.SortSpec
	for _, s := range sorter {
		if s.Field == "" || s.Order == grid.SortNone {
			continue
		}
		out = append(out, grid.SortSpec{Column: s.Field, Desc: s.Order == grid.SortDescend})
	}
	return out
}

// ParseSortColumns reads the sort_columns query value back into specs.
// Unknown shapes are ignored.
func ParseSortColumns(v any) []grid.SortSpec {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []grid.SortSpec
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		col, _ := m["column"].(string)
		if col == "" {
			continue
		}
		desc, _ := m["desc"].(bool)
		out = append(out, grid.SortSpec{Column: col, Desc: desc})
	}
	return out
}

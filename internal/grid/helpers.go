package grid

import (
	"slices"
	"sync"
)

// Helpers is the fixed vocabulary of state mutators. Plugins and hosts
// never write State directly.
type Helpers struct {
	store *Store
	pc    *PluginContext

	mu           sync.RWMutex
	reload       []reloadSink
	nextSink     uint64
	resetFilters func(resetEmptyData bool)
	columnResize func(column string, width int)
}

type reloadSink struct {
	id uint64
	fn func()
}

func newHelpers(pc *PluginContext) *Helpers {
	return &Helpers{store: pc.Store, pc: pc}
}

// SetQuery merges q into the query. Fields mapped to nil are removed.
func (h *Helpers) SetQuery(q Query) {
	h.store.Dispatch(SetQuery{Query: q})
}

// ResetQuery replaces the query wholesale. Only reset flows use it.
func (h *Helpers) ResetQuery(q Query) {
	h.store.Dispatch(SetQuery{Query: q, Replace: true})
}

// SetFilters replaces the filters map.
func (h *Helpers) SetFilters(f Filters) {
	h.store.Dispatch(SetFilters{Filters: f})
}

// SetCurrent moves to page n.
func (h *Helpers) SetCurrent(n int) {
	h.store.Dispatch(SetPagination{Current: &n})
}

// SetPageSize changes the page size.
func (h *Helpers) SetPageSize(n int) {
	h.store.Dispatch(SetPagination{PageSize: &n})
}

// SetTotal records the total row count reported by the data source.
func (h *Helpers) SetTotal(n int) {
	h.store.Dispatch(SetPagination{Total: &n})
}

// SetSort replaces the sort specification.
func (h *Helpers) SetSort(sort []SortSpec) {
	h.store.Dispatch(SetSort{Sort: sort})
}

// SetSelectedRowKeys replaces the selection.
func (h *Helpers) SetSelectedRowKeys(keys []string) {
	h.store.Dispatch(SetSelection{Keys: keys})
}

// SetPluginState stores a plugin's sub-state.
func (h *Helpers) SetPluginState(name Name, v any) {
	h.store.Dispatch(SetPluginState{Plugin: name, Value: v})
}

// SetState shallow-merges a partial state.
func (h *Helpers) SetState(p Patch) {
	h.store.Dispatch(p)
}

// Reload requests a refetch. The reload sequence is bumped first so
// subscribers see the request, then registered reload sinks run.
func (h *Helpers) Reload() {
	h.store.Dispatch(RequestReload{})

	h.mu.RLock()
	sinks := slices.Clone(h.reload)
	h.mu.RUnlock()
	for _, sink := range sinks {
		sink.fn()
	}
}

// ResetFilterValues resets the query and filters. When a reset sink is
// registered (the query-sync plugin registers one) it handles the reset so
// the URL stays consistent with the reset button.
func (h *Helpers) ResetFilterValues(resetEmptyData bool) {
	h.mu.RLock()
	sink := h.resetFilters
	h.mu.RUnlock()

	if sink != nil {
		sink(resetEmptyData)
		return
	}
	h.DefaultReset(resetEmptyData)
}

// DefaultReset clears the query (or restores the init query when
// resetEmptyData is false), clears filters, returns to page 1 and reloads.
func (h *Helpers) DefaultReset(resetEmptyData bool) {
	next := Query{}
	if !resetEmptyData {
		next = h.pc.Props().InitQuery.Clone()
	}
	h.ResetQuery(next)
	h.SetFilters(Filters{})
	h.SetCurrent(1)
	h.Reload()
}

// SetColumnWidth routes a resize to the registered column-width sink.
func (h *Helpers) SetColumnWidth(column string, width int) {
	h.mu.RLock()
	sink := h.columnResize
	h.mu.RUnlock()
	if sink != nil {
		sink(column, width)
	}
}

// OnReload adds a reload sink and returns a function removing it.
func (h *Helpers) OnReload(fn func()) func() {
	h.mu.Lock()
	h.nextSink++
	id := h.nextSink
	h.reload = append(h.reload, reloadSink{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.reload = slices.DeleteFunc(h.reload, func(s reloadSink) bool {
				return s.id == id
			})
		})
	}
}

// ReloadSinkCount returns the number of registered reload sinks.
func (h *Helpers) ReloadSinkCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.reload)
}

// OnResetFilters installs the reset sink. Passing nil restores the default.
func (h *Helpers) OnResetFilters(fn func(resetEmptyData bool)) {
	h.mu.Lock()
	h.resetFilters = fn
	h.mu.Unlock()
}

// OnColumnResize installs the column resize sink.
func (h *Helpers) OnColumnResize(fn func(column string, width int)) {
	h.mu.Lock()
	h.columnResize = fn
	h.mu.Unlock()
}

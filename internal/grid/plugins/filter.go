package plugins

import (
	"sync"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// Filter owns the memoized filter panel and mirrors column filters into
// the query so remote sources and the URL see them.
type Filter struct {
	builder grid.FilterPanelBuilder

	mu       sync.Mutex
	mirrored map[string]struct{}
}

func NewFilter() *Filter {
	return &Filter{mirrored: map[string]struct{}{}}
}

func (*Filter) Metadata() grid.Metadata {
	return grid.Metadata{
		Name:     grid.PluginFilter,
		Version:  "1.0.0",
		Priority: 70,
		Enabled:  true,
	}
}

func (f *Filter) Install(*grid.PluginContext) error {
	f.builder.Reset()
	return nil
}

func (f *Filter) Uninstall(*grid.PluginContext) error {
	f.builder.Reset()
	f.mu.Lock()
	f.mirrored = map[string]struct{}{}
	f.mu.Unlock()
	return nil
}

func (f *Filter) FilterFields(pc *grid.PluginContext) ([]grid.FieldItem, error) {
	return f.builder.Build(pc)
}

// OnFiltersChange writes each filter into the query, formatted through
// the host's QueryFormat. Fields filtered previously but absent now are
// removed from the query.
func (f *Filter) OnFiltersChange(pc *grid.PluginContext, filters grid.Filters) error {
	format := pc.Props().QueryFormat
	patch := grid.Query{}

	f.mu.Lock()
	for field := range f.mirrored {
		if _, ok := filters[field]; !ok {
			patch[field] = nil
		}
	}
	next := make(map[string]struct{}, len(filters))
	for field, vals := range filters {
		next[field] = struct{}{}
		var v any = vals
		if len(vals) == 0 {
			v = nil
		} else if fn := format[field]; fn != nil {
			v = fn(vals)
		}
		patch[field] = v
	}
	f.mirrored = next
	f.mu.Unlock()

	if len(patch) > 0 {
		pc.Helpers.SetQuery(patch)
	}
	return nil
}

// Stats exposes the filter panel memo counters.
func (f *Filter) Stats() (hits, misses int) {
	return f.builder.Stats()
}

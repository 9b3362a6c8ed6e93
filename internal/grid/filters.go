package grid

import (
	"fmt"
	"runtime/debug"
)

// Option is one choice of a select-like filter field.
type Option struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// FieldItem is one field of the filter panel.
type FieldItem struct {
	Field       string         `json:"field"`
	Label       string         `json:"label"`
	Type        string         `json:"type"`
	Value       any            `json:"value,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Multiple    bool           `json:"multiple,omitempty"`
	Options     []Option       `json:"options,omitempty"`
	Props       map[string]any `json:"props,omitempty"`

	OnChange func(value any) `json:"-"`
}

// FilterPanelBuilder memoizes the host's filter field list. The list is
// only regenerated when the serialized query or the HandleFilters function
// changes.
type FilterPanelBuilder struct {
	memo Memo[[]FieldItem]
}

// Build returns the filter fields for pc, or nil when the host declares no
// filter builder.
func (b *FilterPanelBuilder) Build(pc *PluginContext) ([]FieldItem, error) {
	props := pc.Props()
	if props.HandleFilters == nil {
		return nil, nil
	}
	query := pc.State().Query

	compute := func() ([]FieldItem, error) {
		change := FilterChangeAdapter(pc)
		items := props.HandleFilters(FilterArgs{
			Query:        query.Clone(),
			HandleChange: change,
			Props:        props.HandleFiltersProps,
		})
		for i := range items {
			field := items[i].Field
			items[i].OnChange = func(v any) { change(field, v) }
			if v, ok := query[field]; ok && items[i].Value == nil {
				items[i].Value = v
			}
		}
		return items, nil
	}

	key, err := StructuralKey(query, props.HandleFilters)
	if err != nil {
		pc.Logger.Warn("filter panel not memoized", "error", err)
		return compute()
	}
	return b.memo.Get(key, compute)
}

// Reset clears the memoized field list.
func (b *FilterPanelBuilder) Reset() {
	b.memo.Reset()
}

// Stats exposes memo hit and miss counts.
func (b *FilterPanelBuilder) Stats() (hits, misses int) {
	return b.memo.Stats()
}

// FilterChangeAdapter wraps a filter field change: the value is merged into
// the query (empty values remove the field), the page resets to 1 and a
// reload is requested.
func FilterChangeAdapter(pc *PluginContext) func(field string, value any) {
	return func(field string, value any) {
		if IsEmptyValue(value) {
			value = nil
		}
		pc.Helpers.SetQuery(Query{field: value})
		pc.Helpers.SetCurrent(1)
		pc.Helpers.Reload()
	}
}

// BuildFilterPanel asks the filter plugin for its fields. Failures are
// logged and yield no filter panel.
func BuildFilterPanel(r *Registry, pc *PluginContext) (items []FieldItem) {
	defer func() {
		if rec := recover(); rec != nil {
			defaultLogger(pc).Error("filter panel failed",
				"error", fmt.Errorf("panic: %v", rec),
				"stack", string(debug.Stack()),
			)
			items = nil
		}
	}()

	provider, ok := Capability[FilterProvider](r, PluginFilter)
	if !ok {
		return nil
	}
	out, err := provider.FilterFields(pc)
	if err != nil {
		defaultLogger(pc).Error("filter panel failed", "error", err)
		return nil
	}
	return out
}

// ResolveTableProps returns the host's table props, evaluating the function
// form when present. A panicking function yields the static props.
func ResolveTableProps(pc *PluginContext) (out map[string]any) {
	props := pc.Props()
	if props.TablePropsFunc == nil {
		return props.TableProps
	}
	defer func() {
		if rec := recover(); rec != nil {
			pc.Logger.Error("table props failed", "error", fmt.Errorf("panic: %v", rec))
			out = props.TableProps
		}
	}()
	return props.TablePropsFunc(pc)
}

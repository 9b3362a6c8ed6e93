package grid

import (
	"errors"
	"reflect"
)

// ChangeAction discriminates a grid interaction.
type ChangeAction string

const (
	ActionSort     ChangeAction = "sort"
	ActionPaginate ChangeAction = "paginate"
	ActionFilter   ChangeAction = "filter"
)

// ChangeExtra carries the interaction kind.
type ChangeExtra struct {
	Action ChangeAction
}

// PaginationInfo is the pagination part of an interaction.
type PaginationInfo struct {
	Current  int
	PageSize int
}

// Sorter is one column sort coming from the UI.
type Sorter struct {
	Field string
	Order SortOrder
}

// SorterInfo is the raw sorter shape: one entry for single-column sorting,
// several for multi-column sorting.
type SorterInfo []Sorter

// OnChange routes a grid interaction to the plugins owning it and requests
// a reload. Unknown actions are no-ops. Handler failures are logged by the
// registry and returned joined; state written before the failure stays.
func OnChange(r *Registry, pagination PaginationInfo, sorter SorterInfo, filtersInfo map[string]any, extra ChangeExtra) error {
	pc := r.Context()

	var errs []error
	switch extra.Action {
	case ActionSort:
		if h, ok := Capability[SortHandler](r, PluginSorter); ok {
			errs = append(errs, r.safeCall(PluginSorter, "onSorterChange", func() error {
				return h.OnSorterChange(pc, sorter)
			}))
		}

	case ActionPaginate:
		if pagination.Current > 0 {
			pc.Helpers.SetCurrent(pagination.Current)
		}
		if pagination.PageSize > 0 {
			pc.Helpers.SetPageSize(pagination.PageSize)
		}
		if h, ok := Capability[PaginationHandler](r, PluginPagination); ok {
			errs = append(errs, r.safeCall(PluginPagination, "onPaginationChange", func() error {
				return h.OnPaginationChange(pc, pagination)
			}))
		}
		if h, ok := Capability[PageSizeObserver](r, PluginColumnWidth); ok {
			size := pc.State().Pagination.PageSize
			errs = append(errs, r.safeCall(PluginColumnWidth, "onPageSizeChange", func() error {
				return h.OnPageSizeChange(pc, size)
			}))
		}

	case ActionFilter:
		filters := NormalizeFilters(filtersInfo)
		pc.Helpers.SetFilters(filters)
		pc.Helpers.SetCurrent(1)
		if h, ok := Capability[FilterHandler](r, PluginFilter); ok {
			errs = append(errs, r.safeCall(PluginFilter, "onFiltersChange", func() error {
				return h.OnFiltersChange(pc, filters)
			}))
		}

	default:
		return nil
	}

	pc.Helpers.Reload()
	return errors.Join(errs...)
}

// NormalizeFilters keeps only array-valued entries. Scalars and nil are
// dropped; typed slices are converted to []any.
func NormalizeFilters(in map[string]any) Filters {
	out := Filters{}
	for field, v := range in {
		switch t := v.(type) {
		case []any:
			out[field] = append([]any{}, t...)
		case []string:
			vals := make([]any, len(t))
			for i, s := range t {
				vals[i] = s
			}
			out[field] = vals
		default:
			rv := reflect.ValueOf(v)
			if !rv.IsValid() || rv.Kind() != reflect.Slice {
				continue
			}
			vals := make([]any, rv.Len())
			for i := range vals {
				vals[i] = rv.Index(i).Interface()
			}
			out[field] = vals
		}
	}
	return out
}

package grid

import (
	"fmt"
	"runtime/debug"
)

// SortOrder is the UI sort direction of a column.
type SortOrder string

const (
	SortAscend  SortOrder = "ascend"
	SortDescend SortOrder = "descend"
	SortNone    SortOrder = ""
)

// Column describes one grid column.
type Column struct {
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	DataIndex  string    `json:"dataIndex,omitempty"`
	Type       string    `json:"type,omitempty"`
	Width      int       `json:"width,omitempty"`
	MinWidth   int       `json:"minWidth,omitempty"`
	Align      string    `json:"align,omitempty"`
	Fixed      string    `json:"fixed,omitempty"`
	Sortable   bool      `json:"sortable,omitempty"`
	SortOrder  SortOrder `json:"sortOrder,omitempty"`
	Filterable bool      `json:"filterable,omitempty"`
	Editable   bool      `json:"editable,omitempty"`
	Hidden     bool      `json:"hidden,omitempty"`
}

// Field returns the row field the column reads.
func (c Column) Field() string {
	if c.DataIndex != "" {
		return c.DataIndex
	}
	return c.Key
}

// GetProcessedColumns asks the columns plugin for its columns. A nil result
// falls back to base. Failures never propagate: they are logged with the
// shape of the inputs and the base columns are returned.
func GetProcessedColumns(r *Registry, pc *PluginContext, base []Column) (cols []Column) {
	defer func() {
		if rec := recover(); rec != nil {
			logColumnsFailure(r, pc, base, fmt.Errorf("panic: %v", rec), string(debug.Stack()))
			cols = fallbackColumns(base)
		}
	}()

	provider, ok := Capability[ColumnsProvider](r, PluginColumns)
	if !ok {
		return fallbackColumns(base)
	}

	out, err := provider.Columns(pc)
	if err != nil {
		logColumnsFailure(r, pc, base, err, "")
		return fallbackColumns(base)
	}
	if out == nil {
		return fallbackColumns(base)
	}
	return out
}

func fallbackColumns(base []Column) []Column {
	if base == nil {
		return []Column{}
	}
	return base
}

func logColumnsFailure(r *Registry, pc *PluginContext, base []Column, err error, stack string) {
	logger := defaultLogger(pc)
	logger.Error("column processing failed",
		"error", err,
		"has_registry", r != nil,
		"has_context", pc != nil,
		"base_columns_nil", base == nil,
		"base_columns", len(base),
		"stack", stack,
	)
}

// RowKey derives a row's stable key, from a field or a function.
type RowKey struct {
	Field string
	Func  func(row Row) string
}

// Of returns the key of row at index. Rows lacking a derivable key get a
// synthetic index-based key, which is not stable across reorderings.
func (k RowKey) Of(row Row, index int) string {
	if k.Func != nil {
		if key := k.Func(row); key != "" {
			return key
		}
	}
	field := k.Field
	if field == "" && k.Func == nil {
		field = "id"
	}
	if field != "" {
		if v, ok := row[field]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("table-row-%d", index)
}

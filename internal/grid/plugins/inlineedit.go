package plugins

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

var (
	// ErrNotEditing is returned by change and commit without a started edit.
	ErrNotEditing = errors.New("no row is being edited")
	// ErrFieldNotEditable is returned by change for a field outside the
	// editable set.
	ErrFieldNotEditable = errors.New("field is not editable")
)

// EditState is the inline-edit sub-state.
type EditState struct {
	RowKey string         `json:"rowKey"`
	Values map[string]any `json:"values"`
}

// InlineEdit edits one row at a time and commits through the host's
// Operations.Update.
type InlineEdit struct {
	fields []string

	mu      sync.Mutex
	editing *EditState
}

// NewInlineEdit makes the listed columns editable.
func NewInlineEdit(fields ...string) *InlineEdit {
	return &InlineEdit{fields: fields}
}

func (*InlineEdit) Metadata() grid.Metadata {
	return grid.Metadata{
		Name:         grid.PluginInlineEdit,
		Version:      "1.0.0",
		Priority:     30,
		Enabled:      true,
		Dependencies: []grid.Name{grid.PluginColumns},
	}
}

func (e *InlineEdit) Uninstall(pc *grid.PluginContext) error {
	e.mu.Lock()
	e.editing = nil
	e.mu.Unlock()
	pc.Helpers.SetPluginState(grid.PluginInlineEdit, nil)
	return nil
}

func (e *InlineEdit) DecorateColumns(_ *grid.PluginContext, cols []grid.Column) []grid.Column {
	for i := range cols {
		if slices.Contains(e.fields, cols[i].Field()) {
			cols[i].Editable = true
		}
	}
	return cols
}

// Editing returns the row being edited, if any.
func (e *InlineEdit) Editing() (EditState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.editing == nil {
		return EditState{}, false
	}
	return EditState{RowKey: e.editing.RowKey, Values: maps.Clone(e.editing.Values)}, true
}

func (e *InlineEdit) Hooks() map[string]grid.HookFunc {
	return map[string]grid.HookFunc{
		"start": func(pc *grid.PluginContext, args ...any) (any, error) {
			key, err := stringArg(args, 0)
			if err != nil {
				return nil, fmt.Errorf("start: %w", err)
			}
			e.set(pc, &EditState{RowKey: key, Values: map[string]any{}})
			return nil, nil
		},
		"change": func(pc *grid.PluginContext, args ...any) (any, error) {
			field, err := stringArg(args, 0)
			if err != nil {
				return nil, fmt.Errorf("change: %w", err)
			}
			if !slices.Contains(e.fields, field) {
				return nil, fmt.Errorf("change %q: %w", field, ErrFieldNotEditable)
			}
			var value any
			if len(args) > 1 {
				value = args[1]
			}

			e.mu.Lock()
			if e.editing == nil {
				e.mu.Unlock()
				return nil, ErrNotEditing
			}
			next := &EditState{RowKey: e.editing.RowKey, Values: maps.Clone(e.editing.Values)}
			next.Values[field] = value
			e.mu.Unlock()

			e.set(pc, next)
			return nil, nil
		},
		"commit": func(pc *grid.PluginContext, args ...any) (any, error) {
			ctx := context.Background()
			if len(args) > 0 {
				if c, ok := args[0].(context.Context); ok {
					ctx = c
				}
			}
			cur, ok := e.Editing()
			if !ok {
				return nil, ErrNotEditing
			}
			update := pc.Props().Operations.Update
			if update == nil {
				return nil, fmt.Errorf("commit: table %s: %w", pc.Props().TableID, grid.ErrUnsupported)
			}
			if err := update(ctx, cur.RowKey, cur.Values); err != nil {
				return nil, fmt.Errorf("commit %s: %w", cur.RowKey, err)
			}
			e.set(pc, nil)
			pc.Helpers.Reload()
			return cur.RowKey, nil
		},
		"cancel": func(pc *grid.PluginContext, _ ...any) (any, error) {
			e.set(pc, nil)
			return nil, nil
		},
	}
}

func (e *InlineEdit) set(pc *grid.PluginContext, st *EditState) {
	e.mu.Lock()
	e.editing = st
	e.mu.Unlock()

	if st == nil {
		pc.Helpers.SetPluginState(grid.PluginInlineEdit, nil)
		return
	}
	pc.Helpers.SetPluginState(grid.PluginInlineEdit, EditState{RowKey: st.RowKey, Values: maps.Clone(st.Values)})
}

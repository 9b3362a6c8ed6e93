package plugins

import (
	"fmt"
	"slices"
	"sync"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// SelectionOptions configure row selection.
type SelectionOptions struct {
	// Type is "checkbox" (default) or "radio".
	Type string
	// Preserve keeps the selection across filter changes.
	Preserve bool
}

// Selection tracks the selected row keys.
type Selection struct {
	opts SelectionOptions

	mu    sync.Mutex
	unsub func()
}

func NewSelection(opts SelectionOptions) *Selection {
	if opts.Type == "" {
		opts.Type = "checkbox"
	}
	return &Selection{opts: opts}
}

func (*Selection) Metadata() grid.Metadata {
	return grid.Metadata{
		Name:     grid.PluginSelection,
		Version:  "1.0.0",
		Priority: 40,
		Enabled:  true,
	}
}

func (s *Selection) Setup(pc *grid.PluginContext) error {
	if s.opts.Preserve {
		return nil
	}
	unsub := pc.Store.Subscribe(func(st grid.State, a grid.Action) {
		if _, ok := a.(grid.SetFilters); ok && len(st.SelectedRowKeys) > 0 {
			pc.Helpers.SetSelectedRowKeys(nil)
		}
	})
	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()
	return nil
}

func (s *Selection) Uninstall(pc *grid.PluginContext) error {
	s.mu.Lock()
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.mu.Unlock()
	pc.Helpers.SetSelectedRowKeys(nil)
	return nil
}

func (s *Selection) RowSelection(pc *grid.PluginContext) *grid.RowSelection {
	return &grid.RowSelection{
		Type:            s.opts.Type,
		SelectedRowKeys: pc.State().SelectedRowKeys,
		Preserve:        s.opts.Preserve,
	}
}

func (s *Selection) Hooks() map[string]grid.HookFunc {
	return map[string]grid.HookFunc{
		"toggle": func(pc *grid.PluginContext, args ...any) (any, error) {
			key, err := stringArg(args, 0)
			if err != nil {
				return nil, fmt.Errorf("toggle: %w", err)
			}
			keys := pc.State().SelectedRowKeys
			switch {
			case slices.Contains(keys, key):
				keys = slices.DeleteFunc(keys, func(k string) bool { return k == key })
			case s.opts.Type == "radio":
				keys = []string{key}
			default:
				keys = append(keys, key)
			}
			pc.Helpers.SetSelectedRowKeys(keys)
			return keys, nil
		},
		"selectAll": func(pc *grid.PluginContext, args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("selectAll: want row keys")
			}
			keys, ok := args[0].([]string)
			if !ok {
				return nil, fmt.Errorf("selectAll: row keys must be []string, got %T", args[0])
			}
			pc.Helpers.SetSelectedRowKeys(keys)
			return keys, nil
		},
		"clear": func(pc *grid.PluginContext, _ ...any) (any, error) {
			pc.Helpers.SetSelectedRowKeys(nil)
			return nil, nil
		},
	}
}

func (s *Selection) Renderers() map[string]grid.RenderFunc {
	return map[string]grid.RenderFunc{
		"summary": func(pc *grid.PluginContext) any {
			n := len(pc.State().SelectedRowKeys)
			if n == 0 {
				return nil
			}
			return fmt.Sprintf("已选择 %d 项", n)
		},
	}
}

func stringArg(args []any, i int) (string, error) {
	if len(args) <= i {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %d must be a non-empty string, got %T", i, args[i])
	}
	return s, nil
}

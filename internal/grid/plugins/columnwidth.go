package plugins

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/JonMunkholm/opsgrid/internal/grid"
	"github.com/JonMunkholm/opsgrid/internal/widthstore"
)

// Column width defaults.
const (
	DefaultWidthKeyPrefix = "cwp:"
	DefaultMinColumnWidth = 60
	defaultStoreTimeout   = 2 * time.Second
)

// ColumnWidthOptions configure the column-width plugin.
type ColumnWidthOptions struct {
	Store    widthstore.Store
	Prefix   string
	MinWidth int

	// PerPageSize keys widths by page size as well, so each page size
	// remembers its own layout.
	PerPageSize bool

	Timeout time.Duration
}

// WidthState is the plugin's sub-state.
type WidthState struct {
	TableID string         `json:"tableId"`
	Key     string         `json:"key"`
	Widths  map[string]int `json:"widths"`
}

// ColumnWidth recalls and persists user-adjusted column widths.
type ColumnWidth struct {
	opts ColumnWidthOptions

	mu     sync.Mutex
	key    string
	widths map[string]int
	unsub  func()
}

func NewColumnWidth(opts ColumnWidthOptions) *ColumnWidth {
	if opts.Prefix == "" {
		opts.Prefix = DefaultWidthKeyPrefix
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = DefaultMinColumnWidth
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultStoreTimeout
	}
	if opts.Store == nil {
		opts.Store = widthstore.NewMemory()
	}
	return &ColumnWidth{opts: opts, widths: map[string]int{}}
}

func (*ColumnWidth) Metadata() grid.Metadata {
	return grid.Metadata{
		Name:         grid.PluginColumnWidth,
		Version:      "1.0.0",
		Priority:     90,
		Enabled:      true,
		Dependencies: []grid.Name{grid.PluginColumns},
	}
}

// StorageKey returns the key widths are stored under.
func (c *ColumnWidth) StorageKey(tableID string, pageSize int) string {
	key := c.opts.Prefix + tableID
	if c.opts.PerPageSize && pageSize > 0 {
		key = fmt.Sprintf("%s:ps%d", key, pageSize)
	}
	return key
}

func (c *ColumnWidth) Setup(pc *grid.PluginContext) error {
	pc.Helpers.OnColumnResize(func(column string, width int) {
		if err := c.Resize(pc, column, width); err != nil {
			pc.Logger.Warn("column width not saved", "column", column, "error", err)
		}
	})

	// The page size can change without an interaction, e.g. when the URL
	// is restored after setup.
	if c.opts.PerPageSize {
		unsub := pc.Store.Subscribe(func(st grid.State, _ grid.Action) {
			if err := c.follow(pc, st.Pagination.PageSize); err != nil {
				pc.Logger.Warn("column widths not reloaded", "page_size", st.Pagination.PageSize, "error", err)
			}
		})
		c.mu.Lock()
		c.unsub = unsub
		c.mu.Unlock()
	}
	return c.reload(pc, pc.State().Pagination.PageSize)
}

func (c *ColumnWidth) Uninstall(pc *grid.PluginContext) error {
	c.mu.Lock()
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.mu.Unlock()
	pc.Helpers.OnColumnResize(nil)
	pc.Helpers.SetPluginState(grid.PluginColumnWidth, nil)
	return nil
}

// Update reloads widths when the host switched to another table ID.
func (c *ColumnWidth) Update(pc *grid.PluginContext) error {
	return c.follow(pc, pc.State().Pagination.PageSize)
}

// OnPageSizeChange swaps in the widths of the new page size when widths
// are kept per page size.
func (c *ColumnWidth) OnPageSizeChange(pc *grid.PluginContext, pageSize int) error {
	if !c.opts.PerPageSize {
		return nil
	}
	return c.follow(pc, pageSize)
}

// follow reloads when pageSize maps to another storage key.
func (c *ColumnWidth) follow(pc *grid.PluginContext, pageSize int) error {
	key := c.StorageKey(pc.Props().TableID, pageSize)
	c.mu.Lock()
	same := key == c.key
	c.mu.Unlock()
	if same {
		return nil
	}
	return c.reload(pc, pageSize)
}

// Resize records a new width for column, clamped to the minimum, and
// saves the table's widths.
func (c *ColumnWidth) Resize(pc *grid.PluginContext, column string, width int) error {
	if column == "" {
		return fmt.Errorf("resize: empty column")
	}
	width = max(width, c.opts.MinWidth)

	c.mu.Lock()
	if c.key == "" {
		c.key = c.StorageKey(pc.Props().TableID, pc.State().Pagination.PageSize)
	}
	c.widths[column] = width
	key := c.key
	snapshot := maps.Clone(c.widths)
	c.mu.Unlock()

	c.publish(pc, key, snapshot)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()
	return c.opts.Store.Save(ctx, key, snapshot)
}

// Widths returns a copy of the current widths.
func (c *ColumnWidth) Widths() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.widths)
}

func (c *ColumnWidth) DecorateColumns(_ *grid.PluginContext, cols []grid.Column) []grid.Column {
	widths := c.Widths()
	for i := range cols {
		if cols[i].MinWidth < c.opts.MinWidth {
			cols[i].MinWidth = c.opts.MinWidth
		}
		if w, ok := widths[cols[i].Key]; ok {
			cols[i].Width = w
		}
	}
	return cols
}

func (c *ColumnWidth) Hooks() map[string]grid.HookFunc {
	return map[string]grid.HookFunc{
		"resize": func(pc *grid.PluginContext, args ...any) (any, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("resize: want column and width")
			}
			column, _ := args[0].(string)
			width, ok := args[1].(int)
			if !ok {
				return nil, fmt.Errorf("resize: width must be an int, got %T", args[1])
			}
			return nil, c.Resize(pc, column, width)
		},
		"reset": func(pc *grid.PluginContext, _ ...any) (any, error) {
			c.mu.Lock()
			if c.key == "" {
				c.key = c.StorageKey(pc.Props().TableID, pc.State().Pagination.PageSize)
			}
			key := c.key
			c.widths = map[string]int{}
			c.mu.Unlock()
			c.publish(pc, key, map[string]int{})

			ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
			defer cancel()
			return nil, c.opts.Store.Delete(ctx, key)
		},
	}
}

func (c *ColumnWidth) reload(pc *grid.PluginContext, pageSize int) error {
	key := c.StorageKey(pc.Props().TableID, pageSize)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()
	widths, err := c.opts.Store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load column widths: %w", err)
	}

	c.mu.Lock()
	c.key = key
	c.widths = widths
	c.mu.Unlock()

	c.publish(pc, key, maps.Clone(widths))
	return nil
}

func (c *ColumnWidth) publish(pc *grid.PluginContext, key string, widths map[string]int) {
	pc.Helpers.SetPluginState(grid.PluginColumnWidth, WidthState{
		TableID: pc.Props().TableID,
		Key:     key,
		Widths:  widths,
	})
}

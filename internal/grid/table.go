package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// RowSelection is the selection fragment handed to the table view.
type RowSelection struct {
	Type            string   `json:"type"`
	SelectedRowKeys []string `json:"selectedRowKeys"`
	Preserve        bool     `json:"preserveSelectedRowKeys"`
}

// View is everything the visual table needs for one render pass.
type View struct {
	TableID    string
	Columns    []Column
	Pagination PaginationConfig
	Filters    []FieldItem
	Rows       []Row
	RowKeys    []string
	Selection  *RowSelection
	TableProps map[string]any
	State      State
	Err        error
}

// Table hosts a registry for one table mount. Hosts call Mount once, then
// SetProps/OnChange/Load/View as interactions arrive, and Close on
// disposal.
type Table struct {
	registry *Registry
	pc       *PluginContext

	mu       sync.Mutex
	rows     []Row
	stale    bool
	loaded   bool
	loadErr  error
	unreload func()
}

// NewTable builds the plugin context from props and registers plugins.
// Registration failures are logged; the table still works without the
// refused plugin.
func NewTable(props Props, logger *slog.Logger, plugins ...Plugin) *Table {
	pc := NewPluginContext(props, logger)
	t := &Table{
		registry: NewRegistry(pc),
		pc:       pc,
		stale:    true,
	}
	t.unreload = pc.Helpers.OnReload(t.markStale)

	for _, p := range plugins {
		if err := t.registry.Register(p); err != nil {
			pc.Logger.Error("plugin registration failed", "error", err)
		}
	}
	return t
}

// Registry returns the table's plugin registry.
func (t *Table) Registry() *Registry { return t.registry }

// Context returns the table's plugin context.
func (t *Table) Context() *PluginContext { return t.pc }

// Mount runs the queued plugin setups. Work plugins start during setup
// stops early when ctx ends.
func (t *Table) Mount(ctx context.Context) {
	t.pc.setMountContext(ctx)
	t.registry.Setup()
}

// SetProps replaces the host props and runs plugin updates.
func (t *Table) SetProps(p Props) {
	t.pc.SetProps(p)
	t.registry.Update()
}

// OnChange dispatches a grid interaction.
func (t *Table) OnChange(pagination PaginationInfo, sorter SorterInfo, filters map[string]any, extra ChangeExtra) error {
	return OnChange(t.registry, pagination, sorter, filters, extra)
}

func (t *Table) markStale() {
	t.mu.Lock()
	t.stale = true
	t.mu.Unlock()
}

// Load fetches rows when a reload was requested since the last load.
// Manual local sources only load through Refresh.
func (t *Table) Load(ctx context.Context) error {
	return t.load(ctx, false)
}

// Refresh requests a reload and fetches immediately.
func (t *Table) Refresh(ctx context.Context) error {
	t.pc.Helpers.Reload()
	return t.load(ctx, true)
}

func (t *Table) load(ctx context.Context, explicit bool) error {
	t.mu.Lock()
	needed := t.stale || !t.loaded
	t.mu.Unlock()
	if !needed {
		return nil
	}

	props := t.pc.Props()
	state := t.pc.State()

	var (
		rows  []Row
		total int
		err   error
	)
	switch src := props.DataSource.(type) {
	case RemoteSource:
		if src.Ready != nil && !src.Ready() {
			return nil
		}
		rows, total, err = t.fetchRemote(ctx, src, props, state)
	case LocalSource:
		if src.Manual && !explicit {
			return nil
		}
		rows, total = t.sliceLocal(src.DataList, state)
	case nil:
		rows, total = []Row{}, 0
	default:
		err = fmt.Errorf("unsupported data source %T", src)
	}

	t.mu.Lock()
	t.loadErr = err
	if err == nil {
		t.rows = rows
		t.stale = false
		t.loaded = true
	}
	t.mu.Unlock()
	if err != nil {
		return err
	}

	if state.Pagination.Total != total {
		t.pc.Helpers.SetTotal(total)
	}
	return nil
}

func (t *Table) fetchRemote(ctx context.Context, src RemoteSource, props Props, state State) ([]Row, int, error) {
	if src.Request == nil {
		return nil, 0, fmt.Errorf("table %s: remote source has no request function", props.TableID)
	}
	req := Request{
		Query:    ApplyQueryFormat(state.Query, props.QueryFormat),
		Filters:  state.Filters.Clone(),
		Sort:     append([]SortSpec(nil), state.Sort...),
		Current:  state.Pagination.Current,
		PageSize: state.Pagination.PageSize,
	}
	page, err := src.Request(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("table %s: request: %w", props.TableID, err)
	}
	if src.IsServerPagination {
		return page.Rows, page.Total, nil
	}
	all := SortRows(FilterRows(page.Rows, state.Filters), state.Sort)
	return PageRows(all, state.Pagination.Current, state.Pagination.PageSize), len(all), nil
}

func (t *Table) sliceLocal(data []Row, state State) ([]Row, int) {
	all := MatchQuery(data, state.Query)
	all = FilterRows(all, state.Filters)
	all = SortRows(all, state.Sort)
	return PageRows(all, state.Pagination.Current, state.Pagination.PageSize), len(all)
}

// Rows returns the rows of the last successful load.
func (t *Table) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows
}

// View assembles the render fragments: columns, then pagination, then the
// filter panel.
func (t *Table) View(base []Column) View {
	props := t.pc.Props()
	rows := t.Rows()

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = props.RowKey.Of(row, i)
	}

	var selection *RowSelection
	if sp, ok := Capability[SelectionProvider](t.registry, PluginSelection); ok {
		selection = sp.RowSelection(t.pc)
	}

	t.mu.Lock()
	loadErr := t.loadErr
	t.mu.Unlock()

	return View{
		TableID:    props.TableID,
		Columns:    GetProcessedColumns(t.registry, t.pc, base),
		Pagination: BuildPaginationConfig(t.registry, t.pc, nil),
		Filters:    BuildFilterPanel(t.registry, t.pc),
		Rows:       rows,
		RowKeys:    keys,
		Selection:  selection,
		TableProps: ResolveTableProps(t.pc),
		State:      t.pc.State(),
		Err:        loadErr,
	}
}

// ErrUnsupported is returned by a write the host supplied no callback for.
var ErrUnsupported = errors.New("operation not supported")

// TableOperations is the imperative write surface used by CRUD flows. Each
// successful write refreshes the table.
type TableOperations struct {
	t *Table
}

// Operations returns the table's write surface.
func (t *Table) Operations() TableOperations {
	return TableOperations{t: t}
}

// Delete removes rows by key.
func (o TableOperations) Delete(ctx context.Context, keys []string) error {
	fn := o.t.pc.Props().Operations.Delete
	if fn == nil {
		return fmt.Errorf("table %s: delete: %w", o.t.pc.Props().TableID, ErrUnsupported)
	}
	if err := fn(ctx, keys); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	o.t.pc.Helpers.SetSelectedRowKeys(nil)
	return o.t.Refresh(ctx)
}

// Update writes values to the row with key.
func (o TableOperations) Update(ctx context.Context, key string, values map[string]any) error {
	fn := o.t.pc.Props().Operations.Update
	if fn == nil {
		return fmt.Errorf("table %s: update: %w", o.t.pc.Props().TableID, ErrUnsupported)
	}
	if err := fn(ctx, key, values); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return o.t.Refresh(ctx)
}

// Create inserts a row and returns its key.
func (o TableOperations) Create(ctx context.Context, values map[string]any) (string, error) {
	fn := o.t.pc.Props().Operations.Create
	if fn == nil {
		return "", fmt.Errorf("table %s: create: %w", o.t.pc.Props().TableID, ErrUnsupported)
	}
	key, err := fn(ctx, values)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	return key, o.t.Refresh(ctx)
}

// Close uninstalls every plugin and detaches the table's reload sink.
func (t *Table) Close() {
	t.registry.Close()
	if t.unreload != nil {
		t.unreload()
	}
}

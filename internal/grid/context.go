package grid

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Row is a single business record. Rows from the Postgres data source are
// keyed by column name, as are rows declared in screen files.
type Row map[string]any

// Formatter converts a query value before it is written to the URL or sent
// to a data source.
type Formatter func(v any) any

// ColumnsArgs is passed to a host's column builder.
type ColumnsArgs struct {
	State State
	Props map[string]any
}

// FilterArgs is passed to a host's filter builder. HandleChange merges a
// single field into the query.
type FilterArgs struct {
	Query        Query
	HandleChange func(field string, value any)
	Props        map[string]any
}

// Request is what a remote data source receives for one fetch.
type Request struct {
	Query    Query
	Filters  Filters
	Sort     []SortSpec
	Current  int
	PageSize int
}

// Page is one fetched slice of rows.
type Page struct {
	Rows  []Row
	Total int
}

// DataSource is either a RemoteSource or a LocalSource.
type DataSource interface {
	dataSource()
}

// RemoteSource fetches rows through Request. When IsServerPagination is
// false the request returns every row and the table pages locally.
type RemoteSource struct {
	Request            func(ctx context.Context, req Request) (Page, error)
	Ready              func() bool // nil means always ready
	IsServerPagination bool
}

func (RemoteSource) dataSource() {}

// LocalSource serves a static row list. Manual sources only load on an
// explicit Refresh.
type LocalSource struct {
	DataList []Row
	Manual   bool
}

func (LocalSource) dataSource() {}

// Operations are the host's write callbacks reachable from the table's
// imperative surface.
type Operations struct {
	Delete func(ctx context.Context, keys []string) error
	Update func(ctx context.Context, key string, values map[string]any) error
	Create func(ctx context.Context, values map[string]any) (string, error)
}

// Props is the read-only configuration supplied by the host. It is
// replaced wholesale, never merged.
type Props struct {
	TableID string

	HandleColumns      func(args ColumnsArgs) []Column
	HandleColumnsProps map[string]any
	HandleFilters      func(args FilterArgs) []FieldItem
	HandleFiltersProps map[string]any

	TableProps     map[string]any
	TablePropsFunc func(pc *PluginContext) map[string]any

	RowKey     RowKey
	DataSource DataSource
	Operations Operations

	QueryFormat map[string]Formatter
	InitQuery   Query

	SyncQueryOnSearchParams bool
	UseActiveKeyHook        bool
	ActiveKeyTopic          string

	Pagination      *PaginationOverride
	DefaultPageSize int
}

// PluginContext is the shared context handed to every plugin. State is only
// changed through Helpers.
type PluginContext struct {
	ID      string
	Store   *Store
	Helpers *Helpers
	Logger  *slog.Logger

	mu       sync.RWMutex
	props    Props
	registry *Registry
	mountCtx context.Context
}

// NewPluginContext creates a context whose initial state is derived from
// props: the init query, page 1 and the default page size.
func NewPluginContext(props Props, logger *slog.Logger) *PluginContext {
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := props.DefaultPageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	store := NewStore(State{
		Query:      props.InitQuery.Clone(),
		Filters:    Filters{},
		Pagination: Pagination{Current: 1, PageSize: pageSize},
	})

	pc := &PluginContext{
		ID:     uuid.NewString(),
		Store:  store,
		Logger: logger.With("table_id", props.TableID),
		props:  props,
	}
	pc.Helpers = newHelpers(pc)
	return pc
}

// Props returns the current host props.
func (pc *PluginContext) Props() Props {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.props
}

// SetProps replaces the props wholesale.
func (pc *PluginContext) SetProps(p Props) {
	pc.mu.Lock()
	pc.props = p
	pc.mu.Unlock()
}

// State returns a copy of the current table state.
func (pc *PluginContext) State() State {
	return pc.Store.State()
}

// MountContext is the context the table was mounted with. Plugins tie
// setup work that outlives Setup, such as delayed reads, to it.
func (pc *PluginContext) MountContext() context.Context {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if pc.mountCtx == nil {
		return context.Background()
	}
	return pc.mountCtx
}

func (pc *PluginContext) setMountContext(ctx context.Context) {
	pc.mu.Lock()
	pc.mountCtx = ctx
	pc.mu.Unlock()
}

// Registry returns the registry that owns this context, or nil before the
// context is attached.
func (pc *PluginContext) Registry() *Registry {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.registry
}

func (pc *PluginContext) attach(r *Registry) {
	pc.mu.Lock()
	pc.registry = r
	pc.mu.Unlock()
}

// FormatQuery applies the QueryFormat formatters to a copy of q.
func (pc *PluginContext) FormatQuery(q Query) Query {
	return ApplyQueryFormat(q, pc.Props().QueryFormat)
}

// ApplyQueryFormat applies formatters to a copy of q. Fields without a
// formatter are copied as-is.
func ApplyQueryFormat(q Query, format map[string]Formatter) Query {
	out := q.Clone()
	for field, fn := range format {
		if fn == nil {
			continue
		}
		v, ok := out[field]
		if !ok {
			continue
		}
		out[field] = fn(v)
	}
	return out
}

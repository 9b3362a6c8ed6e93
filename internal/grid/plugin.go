package grid

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Name identifies a plugin within a registry.
type Name string

// Built-in plugin names.
const (
	PluginColumns     Name = "table-columns"
	PluginPagination  Name = "table-pagination"
	PluginFilter      Name = "table-filter"
	PluginSorter      Name = "table-sorter"
	PluginQuerySync   Name = "query-sync"
	PluginColumnWidth Name = "column-width-persistence"
	PluginSelection   Name = "row-selection"
	PluginInlineEdit  Name = "inline-edit"
)

var (
	ErrPluginNotFound    = errors.New("plugin not found")
	ErrPluginInactive    = errors.New("plugin is not active")
	ErrHookNotFound      = errors.New("plugin hook not found")
	ErrConflict          = errors.New("plugin conflicts with a registered plugin")
	ErrMissingDependency = errors.New("plugin dependency not registered")
)

// Metadata describes a plugin's identity and ordering constraints.
type Metadata struct {
	Name    Name   `validate:"required"`
	Version string `validate:"required,semver"`

	// Priority breaks ties inside the render pipeline; higher wins.
	Priority int

	// Enabled plugins start active, disabled ones register inactive.
	Enabled bool

	Dependencies []Name `validate:"dive,required"`
	Conflicts    []Name `validate:"dive,required"`
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
)

func metadataValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// Validate checks that the metadata is usable for registration.
func (m Metadata) Validate() error {
	if err := metadataValidator().Struct(m); err != nil {
		return fmt.Errorf("plugin %q metadata: %w", m.Name, err)
	}
	return nil
}

// Plugin is the minimal contract every plugin satisfies. Lifecycle and
// capability behavior is added by implementing the optional interfaces
// below.
type Plugin interface {
	Metadata() Metadata
}

// Installer runs synchronously when the plugin is registered.
type Installer interface {
	Install(pc *PluginContext) error
}

// SetupHook runs once after registration, when the registry is set up.
type SetupHook interface {
	Setup(pc *PluginContext) error
}

// Updater runs on every props change of the host table.
type Updater interface {
	Update(pc *PluginContext) error
}

// Uninstaller runs before the plugin is removed from the registry.
type Uninstaller interface {
	Uninstall(pc *PluginContext) error
}

// Activator runs when a deactivated plugin is re-enabled.
type Activator interface {
	Activate(pc *PluginContext) error
}

// Deactivator runs when the plugin's contribution is suspended.
type Deactivator interface {
	Deactivate(pc *PluginContext) error
}

// HookFunc is an imperative method exposed by name.
type HookFunc func(pc *PluginContext, args ...any) (any, error)

// HookProvider exposes named imperative methods reachable via Registry.Use.
type HookProvider interface {
	Hooks() map[string]HookFunc
}

// RenderFunc produces a UI fragment for a named slot, or nil.
type RenderFunc func(pc *PluginContext) any

// RenderProvider exposes named render slots.
type RenderProvider interface {
	Renderers() map[string]RenderFunc
}

// ColumnsProvider supplies the processed column list. A nil slice with a
// nil error means "no opinion"; the pipeline falls back to base columns.
type ColumnsProvider interface {
	Columns(pc *PluginContext) ([]Column, error)
}

// ColumnDecorator adjusts columns produced by a ColumnsProvider.
type ColumnDecorator interface {
	DecorateColumns(pc *PluginContext, cols []Column) []Column
}

// PaginationProvider supplies a full pagination config. Returning nil
// leaves the default config in place.
type PaginationProvider interface {
	PaginationConfig(pc *PluginContext) (*PaginationConfig, error)
}

// FilterProvider supplies the filter panel fields.
type FilterProvider interface {
	FilterFields(pc *PluginContext) ([]FieldItem, error)
}

// SortHandler turns a UI sorter into sort state.
type SortHandler interface {
	OnSorterChange(pc *PluginContext, sorter SorterInfo) error
}

// PaginationHandler is notified after page or page size changed.
type PaginationHandler interface {
	OnPaginationChange(pc *PluginContext, info PaginationInfo) error
}

// PageSizeObserver is notified after a paginate interaction.
type PageSizeObserver interface {
	OnPageSizeChange(pc *PluginContext, pageSize int) error
}

// FilterHandler is notified after the filters were written.
type FilterHandler interface {
	OnFiltersChange(pc *PluginContext, filters Filters) error
}

// SelectionProvider supplies the row selection config.
type SelectionProvider interface {
	RowSelection(pc *PluginContext) *RowSelection
}

// Status is the lifecycle position of a registered plugin.
type Status string

const (
	StatusInstalled   Status = "installed"
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusFailed      Status = "failed"
	StatusUninstalled Status = "uninstalled"
)

// PluginError records a failing plugin hook. Panics are converted into a
// PluginError carrying the stack.
type PluginError struct {
	Plugin Name
	Hook   string
	Err    error
	Stack  string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

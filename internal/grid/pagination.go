package grid

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
)

// DefaultPageSize is used when neither props nor state carry a usable size.
const DefaultPageSize = 10

// DefaultPageSizeOptions are offered by the size changer.
var DefaultPageSizeOptions = []int{10, 20, 50, 100}

// PaginationConfig is the pagination fragment handed to the table view.
type PaginationConfig struct {
	Current         int   `json:"current"`
	PageSize        int   `json:"pageSize"`
	Total           int   `json:"total"`
	PageSizeOptions []int `json:"pageSizeOptions,omitempty"`
	ShowSizeChanger bool  `json:"showSizeChanger"`
	Hidden          bool  `json:"hidden,omitempty"`

	ShowTotal func(cfg PaginationConfig) string `json:"-"`
}

// Pages returns ceil(total / pageSize).
func (c PaginationConfig) Pages() int {
	_, pageSize, total := normalizePagination(c.Current, c.PageSize, c.Total)
	return pageCount(total, pageSize)
}

// Range returns the 1-based first and last row index shown on the page.
func (c PaginationConfig) Range() (start, end int) {
	current, pageSize, total := normalizePagination(c.Current, c.PageSize, c.Total)
	return pageRange(current, pageSize, total)
}

// TotalText renders ShowTotal, or "" when unset.
func (c PaginationConfig) TotalText() string {
	if c.ShowTotal == nil {
		return ""
	}
	return c.ShowTotal(c)
}

// PaginationOverride is the host's pagination object. Set fields win over
// the synthesized defaults.
type PaginationOverride struct {
	PageSizeOptions []int
	ShowSizeChanger *bool
	Hidden          *bool
	ShowTotal       func(cfg PaginationConfig) string
}

// FormatShowTotal renders the default total text:
// 第{start}-{end}条，共{total}条（{pages}页），{pageSize}条/页
func FormatShowTotal(current, pageSize, total int) string {
	current, pageSize, total = normalizePagination(current, pageSize, total)
	start, end := pageRange(current, pageSize, total)
	return fmt.Sprintf("第%d-%d条，共%d条（%d页），%d条/页",
		start, end, total, pageCount(total, pageSize), pageSize)
}

func defaultShowTotal(cfg PaginationConfig) string {
	return FormatShowTotal(cfg.Current, cfg.PageSize, cfg.Total)
}

func normalizePagination(current, pageSize, total int) (int, int, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if current <= 0 {
		current = 1
	}
	if total < 0 {
		total = 0
	}
	return current, pageSize, total
}

func pageCount(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func pageRange(current, pageSize, total int) (int, int) {
	start := (current-1)*pageSize + 1
	end := min(current*pageSize, total)
	if end < 0 {
		end = 0
	}
	if start > end {
		start = end
	}
	return max(start, 0), end
}

// BuildPaginationConfig returns the plugin's config verbatim when it
// supplies one. Otherwise a default config is built from state and the
// caller's override (or props.Pagination when caller is nil) is merged on
// top.
func BuildPaginationConfig(r *Registry, pc *PluginContext, caller *PaginationOverride) PaginationConfig {
	if cfg := pluginPagination(r, pc); cfg != nil {
		return *cfg
	}

	var p Pagination
	if pc != nil {
		p = pc.State().Pagination
		if caller == nil {
			caller = pc.Props().Pagination
		}
	}
	current, pageSize, total := normalizePagination(p.Current, p.PageSize, p.Total)

	cfg := PaginationConfig{
		Current:         current,
		PageSize:        pageSize,
		Total:           total,
		PageSizeOptions: slices.Clone(DefaultPageSizeOptions),
		ShowSizeChanger: true,
		ShowTotal:       defaultShowTotal,
	}

	if caller != nil {
		if caller.PageSizeOptions != nil {
			cfg.PageSizeOptions = slices.Clone(caller.PageSizeOptions)
		}
		if caller.ShowSizeChanger != nil {
			cfg.ShowSizeChanger = *caller.ShowSizeChanger
		}
		if caller.Hidden != nil {
			cfg.Hidden = *caller.Hidden
		}
		if caller.ShowTotal != nil {
			cfg.ShowTotal = caller.ShowTotal
		}
	}
	return cfg
}

func pluginPagination(r *Registry, pc *PluginContext) (cfg *PaginationConfig) {
	defer func() {
		if rec := recover(); rec != nil {
			defaultLogger(pc).Error("pagination plugin failed",
				"error", fmt.Errorf("panic: %v", rec),
				"stack", string(debug.Stack()),
			)
			cfg = nil
		}
	}()

	provider, ok := Capability[PaginationProvider](r, PluginPagination)
	if !ok {
		return nil
	}
	out, err := provider.PaginationConfig(pc)
	if err != nil {
		defaultLogger(pc).Error("pagination plugin failed", "error", err)
		return nil
	}
	return out
}

func defaultLogger(pc *PluginContext) *slog.Logger {
	if pc != nil && pc.Logger != nil {
		return pc.Logger
	}
	return slog.Default()
}

package plugins

import (
	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// PaginationOptions configure the pagination plugin.
type PaginationOptions struct {
	// Full makes the plugin own the pagination config. Otherwise it only
	// observes interactions and the default config is used.
	Full     bool
	Override *grid.PaginationOverride
}

// PaginationStatus is the plugin's sub-state.
type PaginationStatus struct {
	LastCurrent  int `json:"lastCurrent"`
	LastPageSize int `json:"lastPageSize"`
}

// Pagination supplies the pagination bar config.
type Pagination struct {
	opts PaginationOptions
}

func NewPagination(opts PaginationOptions) *Pagination {
	return &Pagination{opts: opts}
}

func (*Pagination) Metadata() grid.Metadata {
	return grid.Metadata{
		Name:     grid.PluginPagination,
		Version:  "1.0.0",
		Priority: 60,
		Enabled:  true,
	}
}

func (p *Pagination) PaginationConfig(pc *grid.PluginContext) (*grid.PaginationConfig, error) {
	if !p.opts.Full {
		return nil, nil
	}
	st := pc.State().Pagination
	cfg := grid.PaginationConfig{
		Current:         max(st.Current, 1),
		PageSize:        st.PageSize,
		Total:           max(st.Total, 0),
		PageSizeOptions: grid.DefaultPageSizeOptions,
		ShowSizeChanger: true,
		ShowTotal: func(c grid.PaginationConfig) string {
			return grid.FormatShowTotal(c.Current, c.PageSize, c.Total)
		},
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = grid.DefaultPageSize
	}
	if o := p.opts.Override; o != nil {
		if len(o.PageSizeOptions) > 0 {
			cfg.PageSizeOptions = o.PageSizeOptions
		}
		if o.ShowSizeChanger != nil {
			cfg.ShowSizeChanger = *o.ShowSizeChanger
		}
		if o.Hidden != nil {
			cfg.Hidden = *o.Hidden
		}
		if o.ShowTotal != nil {
			cfg.ShowTotal = o.ShowTotal
		}
	}
	return &cfg, nil
}

func (p *Pagination) OnPaginationChange(pc *grid.PluginContext, info grid.PaginationInfo) error {
	pc.Helpers.SetPluginState(grid.PluginPagination, PaginationStatus{
		LastCurrent:  info.Current,
		LastPageSize: info.PageSize,
	})
	return nil
}

func (p *Pagination) Uninstall(pc *grid.PluginContext) error {
	pc.Helpers.SetPluginState(grid.PluginPagination, nil)
	return nil
}

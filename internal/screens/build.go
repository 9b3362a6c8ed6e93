package screens

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/opsgrid/internal/activekey"
	"github.com/JonMunkholm/opsgrid/internal/datasource"
	"github.com/JonMunkholm/opsgrid/internal/grid"
	"github.com/JonMunkholm/opsgrid/internal/grid/plugins"
	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
	"github.com/JonMunkholm/opsgrid/internal/widthstore"
)

// ErrNoDatabase is returned when a postgres screen is built without a DB.
var ErrNoDatabase = errors.New("screen needs a database")

// Deps are the shared services a screen is built against.
type Deps struct {
	DB datasource.DB

	// Location is the request URL. Nil disables query sync for every screen.
	Location    *querysync.Location
	ArrayFormat querysync.ArrayFormat

	Broker         *activekey.Broker
	ActiveKeyDelay time.Duration

	Widths         widthstore.Store
	WidthPrefix    string
	MinColumnWidth int

	DefaultPageSize int
}

// Built is a screen ready to mount as a grid table.
type Built struct {
	Screen  Screen
	Props   grid.Props
	Columns []grid.Column
	Plugins []grid.Plugin
}

// Table mounts the built screen.
func (b Built) Table(logger *slog.Logger) *grid.Table {
	return grid.NewTable(b.Props, logger, b.Plugins...)
}

// Build translates a screen into grid props and its plugin set.
func Build(s Screen, deps Deps) (Built, error) {
	columns := baseColumns(s)

	queryFormat := make(map[string]grid.Formatter, len(s.QueryFormat))
	for field, name := range s.QueryFormat {
		fn, err := querysync.LookupFormatter(name)
		if err != nil {
			return Built{}, fmt.Errorf("screen %s: query_format.%s: %w", s.ID, field, err)
		}
		queryFormat[field] = fn
	}

	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = deps.DefaultPageSize
	}

	props := grid.Props{
		TableID: s.ID,
		HandleColumns: func(grid.ColumnsArgs) []grid.Column {
			return slices.Clone(columns)
		},
		HandleFilters:           filterBuilder(s.Filters),
		RowKey:                  grid.RowKey{Field: s.RowKey},
		QueryFormat:             queryFormat,
		InitQuery:               grid.Query(maps.Clone(s.InitQuery)),
		SyncQueryOnSearchParams: s.SyncQuery && deps.Location != nil,
		UseActiveKeyHook:        s.ActiveKey != "",
		ActiveKeyTopic:          s.ActiveKey,
		DefaultPageSize:         pageSize,
	}
	if props.InitQuery == nil {
		props.InitQuery = grid.Query{}
	}

	switch s.Source.Kind {
	case SourcePostgres:
		if deps.DB == nil {
			return Built{}, fmt.Errorf("screen %s: %w", s.ID, ErrNoDatabase)
		}
		src, err := datasource.NewPostgres(deps.DB, datasource.PostgresOptions{
			Table:    s.Source.Table,
			KeyField: s.RowKey,
			Columns:  sourceColumns(s.Columns),
		})
		if err != nil {
			return Built{}, fmt.Errorf("screen %s: %w", s.ID, err)
		}
		props.DataSource = src.Source()
		props.Operations = src.Operations()
	case SourceStatic:
		rows := make([]grid.Row, len(s.Source.Rows))
		for i, r := range s.Source.Rows {
			rows[i] = grid.Row(maps.Clone(r))
		}
		props.DataSource = grid.LocalSource{DataList: rows}
	default:
		return Built{}, fmt.Errorf("screen %s: unknown source kind %q", s.ID, s.Source.Kind)
	}

	pd := plugins.Deps{
		Editable: s.Editable,
	}
	if props.SyncQueryOnSearchParams {
		pd.Location = deps.Location
		pd.QuerySync = querysync.Options{
			Codec: querysync.Codec{
				Format:      deps.ArrayFormat,
				JSONFields:  []string{grid.SortColumnsField},
				ArrayFields: arrayFields(s),
				QueryFormat: queryFormat,
			},
			Fields:         queryFields(s),
			SyncPagination: s.SyncPagination,
			ActiveKeyDelay: deps.ActiveKeyDelay,
			Broker:         deps.Broker,
		}
	}
	if deps.Widths != nil {
		pd.Widths = &plugins.ColumnWidthOptions{
			Store:       deps.Widths,
			Prefix:      deps.WidthPrefix,
			MinWidth:    deps.MinColumnWidth,
			PerPageSize: s.WidthPerPageSize,
		}
	}
	if s.Selection != "" {
		pd.Selection = &plugins.SelectionOptions{Type: s.Selection}
	}

	return Built{
		Screen:  s,
		Props:   props,
		Columns: columns,
		Plugins: plugins.Defaults(pd),
	}, nil
}

func baseColumns(s Screen) []grid.Column {
	out := make([]grid.Column, len(s.Columns))
	for i, c := range s.Columns {
		title := c.Title
		if title == "" {
			title = c.Key
		}
		out[i] = grid.Column{
			Key:        c.Key,
			Title:      title,
			DataIndex:  c.Key,
			Type:       c.Type,
			Width:      c.Width,
			Align:      c.Align,
			Sortable:   c.Sortable,
			Filterable: c.Filterable,
			Hidden:     c.Hidden,
		}
	}
	return out
}

func sourceColumns(defs []ColumnDef) []datasource.Column {
	out := make([]datasource.Column, len(defs))
	for i, c := range defs {
		out[i] = datasource.Column{Field: c.Key, DBColumn: c.DBColumn, Searchable: c.Searchable}
	}
	return out
}

// queryFields is the allowlist of URL parameters read into the query.
func queryFields(s Screen) []string {
	fields := []string{grid.KeywordField, grid.SortColumnsField}
	for _, f := range s.Filters {
		fields = append(fields, f.Field)
	}
	for _, c := range s.Columns {
		if c.Filterable {
			fields = append(fields, c.Key)
		}
	}
	for k := range s.InitQuery {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	return slices.Compact(fields)
}

// arrayFields lists the multi-valued query fields: column filters, multiple
// select filters and fields formatted as arrays.
func arrayFields(s Screen) []string {
	var fields []string
	for _, c := range s.Columns {
		if c.Filterable {
			fields = append(fields, c.Key)
		}
	}
	for _, f := range s.Filters {
		if f.Multiple {
			fields = append(fields, f.Field)
		}
	}
	for field, name := range s.QueryFormat {
		if strings.EqualFold(name, "array") {
			fields = append(fields, field)
		}
	}
	slices.Sort(fields)
	return slices.Compact(fields)
}

func filterBuilder(defs []FilterDef) func(grid.FilterArgs) []grid.FieldItem {
	if len(defs) == 0 {
		return nil
	}
	return func(args grid.FilterArgs) []grid.FieldItem {
		items := make([]grid.FieldItem, len(defs))
		for i, d := range defs {
			label := d.Label
			if label == "" {
				label = d.Field
			}
			typ := d.Type
			if typ == "" {
				typ = "input"
			}
			opts := make([]grid.Option, len(d.Options))
			for j, o := range d.Options {
				opts[j] = grid.Option{Label: o.Label, Value: o.Value}
			}
			field := d.Field
			items[i] = grid.FieldItem{
				Field:       field,
				Label:       label,
				Type:        typ,
				Value:       args.Query[field],
				Placeholder: d.Placeholder,
				Multiple:    d.Multiple,
				Options:     opts,
				OnChange: func(v any) {
					if args.HandleChange != nil {
						args.HandleChange(field, v)
					}
				},
			}
		}
		return items
	}
}

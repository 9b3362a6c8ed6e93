package plugins

import (
	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// Columns builds the column list from the host's HandleColumns, applies
// every active ColumnDecorator in priority order and marks sorted columns.
type Columns struct{}

func NewColumns() *Columns { return &Columns{} }

func (*Columns) Metadata() grid.Metadata {
	return grid.Metadata{
		Name:     grid.PluginColumns,
		Version:  "1.0.0",
		Priority: 100,
		Enabled:  true,
	}
}

// Columns returns nil when the host declares no column builder, leaving
// the base columns in place.
func (c *Columns) Columns(pc *grid.PluginContext) ([]grid.Column, error) {
	props := pc.Props()
	if props.HandleColumns == nil {
		return nil, nil
	}
	state := pc.State()

	cols := props.HandleColumns(grid.ColumnsArgs{
		State: state,
		Props: props.HandleColumnsProps,
	})
	if cols == nil {
		return nil, nil
	}
	cols = append([]grid.Column(nil), cols...)

	if r := pc.Registry(); r != nil {
		for _, d := range grid.CapabilitiesOf[grid.ColumnDecorator](r) {
			cols = d.DecorateColumns(pc, cols)
		}
	}
	return markSortOrder(cols, state.Sort), nil
}

func markSortOrder(cols []grid.Column, sort []grid.SortSpec) []grid.Column {
	if len(sort) == 0 {
		return cols
	}
	order := make(map[string]grid.SortOrder, len(sort))
	for _, s := range sort {
		if s.Desc {
			order[s.Column] = grid.SortDescend
		} else {
			order[s.Column] = grid.SortAscend
		}
	}
	for i := range cols {
		if o, ok := order[cols[i].Field()]; ok {
			cols[i].SortOrder = o
		}
	}
	return cols
}

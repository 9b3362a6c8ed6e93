package plugins

import (
	"github.com/JonMunkholm/opsgrid/internal/grid"
	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
)

// Deps carries what the default plugin set needs from the host.
type Deps struct {
	// Location is the request URL. A nil Location disables query sync.
	Location  *querysync.Location
	QuerySync querysync.Options

	// Widths enables column-width persistence when non-nil.
	Widths *ColumnWidthOptions

	Pagination PaginationOptions

	// Selection enables row selection when non-nil.
	Selection *SelectionOptions

	// Editable lists the inline-editable fields; empty disables editing.
	Editable []string
}

// Defaults returns the standard plugin set for a table screen.
func Defaults(deps Deps) []grid.Plugin {
	out := []grid.Plugin{
		NewColumns(),
		NewSorter(),
		NewFilter(),
		NewPagination(deps.Pagination),
	}
	if deps.Location != nil {
		out = append(out, NewQuerySync(deps.Location, deps.QuerySync))
	}
	if deps.Widths != nil {
		out = append(out, NewColumnWidth(*deps.Widths))
	}
	if deps.Selection != nil {
		out = append(out, NewSelection(*deps.Selection))
	}
	if len(deps.Editable) > 0 {
		out = append(out, NewInlineEdit(deps.Editable...))
	}
	return out
}

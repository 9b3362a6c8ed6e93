package components

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

func render(t *testing.T, m GridModel) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Grid(m).Render(context.Background(), &buf))
	return buf.String()
}

func TestGrid_RendersRowsAndEscapes(t *testing.T) {
	body := render(t, GridModel{
		ScreenID: "orders",
		View: grid.View{
			Columns: []grid.Column{
				{Key: "name", Title: "Name", Sortable: true, SortOrder: grid.SortAscend, Width: 80, Editable: true},
				{Key: "secret", Title: "Secret", Hidden: true},
			},
			Rows:       []grid.Row{{"name": "<b>acme</b>", "secret": "x"}},
			RowKeys:    []string{"1"},
			Pagination: grid.PaginationConfig{Current: 1, PageSize: 10, Total: 1},
		},
	})

	assert.Contains(t, body, `<section id="grid-orders" class="grid">`)
	assert.Contains(t, body, `<tr data-key="1">`)
	assert.Contains(t, body, `<td data-editable="true">&lt;b&gt;acme&lt;/b&gt;</td>`)
	assert.Contains(t, body, "Name ▲")
	assert.Contains(t, body, "width:80px")
	assert.NotContains(t, body, "Secret")
	assert.Contains(t, body, `<span class="current">1 / 1</span>`)
}

func TestGrid_EmptyAndError(t *testing.T) {
	body := render(t, GridModel{
		ScreenID: "orders",
		View: grid.View{
			Columns:    []grid.Column{{Key: "a", Title: "A"}, {Key: "b", Title: "B"}},
			Err:        errors.New("source unavailable"),
			Pagination: grid.PaginationConfig{Hidden: true},
		},
	})

	assert.Contains(t, body, `role="alert">source unavailable</div>`)
	assert.Contains(t, body, `<td colspan="2" class="empty">No data</td>`)
	assert.NotContains(t, body, `class="pagination"`)
}

func TestGrid_SelectionAndFilters(t *testing.T) {
	body := render(t, GridModel{
		ScreenID:   "orders",
		Href:       "/screens/orders?region=emea",
		Filterable: []grid.Column{{Key: "owner", Title: "Owner"}},
		View: grid.View{
			Columns:   []grid.Column{{Key: "name", Title: "Name"}},
			Rows:      []grid.Row{{"name": "a"}, {"name": "b"}},
			RowKeys:   []string{"1", "2"},
			Selection: &grid.RowSelection{Type: "checkbox", SelectedRowKeys: []string{"2"}},
			Filters: []grid.FieldItem{
				{Field: "status", Label: "Status", Type: "select", Value: "open",
					Options: []grid.Option{{Label: "Open", Value: "open"}, {Label: "Closed", Value: "closed"}}},
			},
			State:      grid.State{Filters: grid.Filters{"owner": {"lee", "dana"}}},
			Pagination: grid.PaginationConfig{Hidden: true},
		},
	})

	assert.Contains(t, body, `value="2" checked>`)
	assert.NotContains(t, body, `value="1" checked`)
	assert.Contains(t, body, `<option value="open" selected>Open</option>`)
	assert.Contains(t, body, `name="f.owner" value="lee,dana"`)
	assert.Contains(t, body, `hx-get="/screens/orders?region=emea&amp;_action=reset"`)
}

package screens

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/opsgrid/internal/grid"
	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
	"github.com/JonMunkholm/opsgrid/internal/widthstore"
)

const sampleYAML = `
screens:
  - id: regions
    title: Regions
    row_key: code
    page_size: 2
    sync_query: true
    selection: radio
    source:
      kind: static
      rows:
        - { code: EMEA, name: Europe, owner: dana }
        - { code: AMER, name: Americas, owner: lee }
        - { code: APAC, name: Asia Pacific, owner: dana }
    columns:
      - { key: code, title: Code, sortable: true }
      - { key: name }
      - { key: owner, filterable: true }
    filters:
      - { field: owner, label: Owner, type: select, options: [{label: Dana, value: dana}] }
    query_format:
      owner: array
    init_query:
      owner: dana
    editable: [name]
  - id: orders
    title: Orders
    row_key: id
    source: { kind: postgres, table: orders }
    columns:
      - { key: id }
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	all := c.All()
	assert.Equal(t, "regions", all[0].ID)
	assert.Equal(t, "orders", all[1].ID)

	s, err := c.Get("regions")
	require.NoError(t, err)
	assert.Equal(t, "code", s.RowKey)
	assert.Len(t, s.Source.Rows, 3)

	_, err = c.Get("nope")
	require.ErrorIs(t, err, ErrUnknownScreen)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad yaml",
			yaml:    "screens: [",
			wantErr: "parse screens",
		},
		{
			name:    "no screens",
			yaml:    "screens: []",
			wantErr: "screens failed validation for tag 'min'",
		},
		{
			name: "bad id",
			yaml: `
screens:
  - { id: "Bad Id", title: x, row_key: a, source: {kind: static}, columns: [{key: a}] }`,
			wantErr: "tag 'screen_id'",
		},
		{
			name: "postgres without table",
			yaml: `
screens:
  - { id: a, title: x, row_key: a, source: {kind: postgres}, columns: [{key: a}] }`,
			wantErr: "tag 'required_if'",
		},
		{
			name: "row key not a column",
			yaml: `
screens:
  - { id: a, title: x, row_key: id, source: {kind: static}, columns: [{key: a}] }`,
			wantErr: `row_key "id" is not a column`,
		},
		{
			name: "duplicate id",
			yaml: `
screens:
  - { id: a, title: x, row_key: a, source: {kind: static}, columns: [{key: a}] }
  - { id: a, title: y, row_key: a, source: {kind: static}, columns: [{key: a}] }`,
			wantErr: "duplicate id",
		},
		{
			name: "unknown formatter",
			yaml: `
screens:
  - { id: a, title: x, row_key: a, source: {kind: static}, columns: [{key: a}], query_format: {a: money} }`,
			wantErr: "query_format.a",
		},
		{
			name: "editable not a column",
			yaml: `
screens:
  - { id: a, title: x, row_key: a, source: {kind: static}, columns: [{key: a}], editable: [b] }`,
			wantErr: `editable field "b"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_RepositorySample(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "screens.yaml"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.Len(), 1)
}

func TestBuild_Static(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	s, _ := c.Get("regions")

	u, _ := url.Parse("/screens/regions?owner[]=lee")
	b, err := Build(s, Deps{
		Location:        querysync.NewLocation(u),
		Widths:          widthstore.NewMemory(),
		DefaultPageSize: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, "regions", b.Props.TableID)
	assert.Equal(t, 2, b.Props.DefaultPageSize)
	assert.True(t, b.Props.SyncQueryOnSearchParams)
	assert.Equal(t, grid.Query{"owner": "dana"}, b.Props.InitQuery)
	assert.IsType(t, grid.LocalSource{}, b.Props.DataSource)
	assert.Equal(t, "Code", b.Columns[0].Title)
	assert.Equal(t, "name", b.Columns[1].Title, "title defaults to key")

	names := make([]grid.Name, len(b.Plugins))
	for i, p := range b.Plugins {
		names[i] = p.Metadata().Name
	}
	assert.ElementsMatch(t, []grid.Name{
		grid.PluginColumns, grid.PluginSorter, grid.PluginFilter, grid.PluginPagination,
		grid.PluginQuerySync, grid.PluginColumnWidth, grid.PluginSelection, grid.PluginInlineEdit,
	}, names)

	table := b.Table(discardLogger())
	t.Cleanup(table.Close)
	table.Mount(context.Background())
	require.NoError(t, table.Load(context.Background()))

	st := table.Context().State()
	assert.Equal(t, []string{"lee"}, st.Query["owner"], "the URL wins over init_query")
	rows := table.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "AMER", rows[0]["code"])
}

func TestBuild_FilterFields(t *testing.T) {
	c, _ := Parse([]byte(sampleYAML))
	s, _ := c.Get("regions")
	b, err := Build(s, Deps{})
	require.NoError(t, err)

	var changed []any
	items := b.Props.HandleFilters(grid.FilterArgs{
		Query:        grid.Query{"owner": "dana"},
		HandleChange: func(field string, v any) { changed = append(changed, field, v) },
	})
	require.Len(t, items, 1)
	assert.Equal(t, "select", items[0].Type)
	assert.Equal(t, "dana", items[0].Value)
	assert.Equal(t, []grid.Option{{Label: "Dana", Value: "dana"}}, items[0].Options)

	items[0].OnChange("lee")
	assert.Equal(t, []any{"owner", "lee"}, changed)
}

func TestBuild_PostgresNeedsDB(t *testing.T) {
	c, _ := Parse([]byte(sampleYAML))
	s, _ := c.Get("orders")

	_, err := Build(s, Deps{})
	require.ErrorIs(t, err, ErrNoDatabase)
}

func TestBuild_NoLocationDisablesSync(t *testing.T) {
	c, _ := Parse([]byte(sampleYAML))
	s, _ := c.Get("regions")

	b, err := Build(s, Deps{})
	require.NoError(t, err)
	assert.False(t, b.Props.SyncQueryOnSearchParams)
	for _, p := range b.Plugins {
		assert.NotEqual(t, grid.PluginQuerySync, p.Metadata().Name)
		assert.NotEqual(t, grid.PluginColumnWidth, p.Metadata().Name)
	}
}

func TestQueryFields(t *testing.T) {
	c, _ := Parse([]byte(sampleYAML))
	s, _ := c.Get("regions")
	assert.Equal(t, []string{"keyword", "owner", "sort_columns"}, queryFields(s))
}

func TestArrayFields(t *testing.T) {
	c, _ := Parse([]byte(sampleYAML))
	s, _ := c.Get("regions")
	assert.Equal(t, []string{"owner"}, arrayFields(s))
}

func TestBuild_CommaFormatKeepsFreeText(t *testing.T) {
	c, _ := Parse([]byte(sampleYAML))
	s, _ := c.Get("regions")

	u, _ := url.Parse("/screens/regions?keyword=asia%2C+pacific&owner=lee%2Cdana")
	b, err := Build(s, Deps{
		Location:        querysync.NewLocation(u),
		ArrayFormat:     querysync.ArrayComma,
		DefaultPageSize: 10,
	})
	require.NoError(t, err)

	table := b.Table(discardLogger())
	t.Cleanup(table.Close)
	table.Mount(context.Background())

	st := table.Context().State()
	assert.Equal(t, "asia, pacific", st.Query["keyword"])
	assert.Equal(t, []string{"lee", "dana"}, st.Query["owner"])
}

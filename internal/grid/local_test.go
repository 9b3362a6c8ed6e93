package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var sampleRows = []Row{
	{"id": 1, "name": "Acme", "status": "open", "amount": 120.5},
	{"id": 2, "name": "Globex", "status": "closed", "amount": 80},
	{"id": 3, "name": "Initech", "status": "open", "amount": nil},
	{"id": 4, "name": "acme east", "status": "pending", "amount": 300},
}

func ids(rows []Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r["id"]
	}
	return out
}

func TestMatchQuery(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []any
	}{
		{"empty", Query{}, []any{1, 2, 3, 4}},
		{"keyword", Query{KeywordField: "ACME"}, []any{1, 4}},
		{"substring", Query{"name": "glob"}, []any{2}},
		{"array membership", Query{"status": []string{"open", "pending"}}, []any{1, 3, 4}},
		{"unknown field ignored", Query{"owner": "bob"}, []any{1, 2, 3, 4}},
		{"sort columns ignored", Query{SortColumnsField: []any{}}, []any{1, 2, 3, 4}},
		{"empty value ignored", Query{"status": ""}, []any{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(MatchQuery(sampleRows, tt.query)))
		})
	}
}

func TestFilterRows(t *testing.T) {
	got := FilterRows(sampleRows, Filters{"status": {"open"}, "name": {}})
	assert.Equal(t, []any{1, 3}, ids(got))
	assert.Len(t, FilterRows(sampleRows, nil), 4)
}

func TestSortRows(t *testing.T) {
	asc := SortRows(sampleRows, []SortSpec{{Column: "amount"}})
	assert.Equal(t, []any{3, 2, 1, 4}, ids(asc))

	desc := SortRows(sampleRows, []SortSpec{{Column: "status", Desc: true}, {Column: "id"}})
	assert.Equal(t, []any{4, 1, 3, 2}, ids(desc))

	assert.Equal(t, []any{1, 2, 3, 4}, ids(sampleRows), "input is not reordered")
}

func TestPageRows(t *testing.T) {
	assert.Equal(t, []any{3, 4}, ids(PageRows(sampleRows, 2, 2)))
	assert.Empty(t, PageRows(sampleRows, 5, 2))
	assert.Len(t, PageRows(sampleRows, 0, 0), 4)
}

func TestRowKeyOf(t *testing.T) {
	row := Row{"id": 7, "code": "X-1"}
	assert.Equal(t, "7", RowKey{}.Of(row, 0))
	assert.Equal(t, "X-1", RowKey{Field: "code"}.Of(row, 0))
	assert.Equal(t, "f", RowKey{Func: func(Row) string { return "f" }}.Of(row, 0))
	assert.Equal(t, "table-row-3", RowKey{Field: "missing"}.Of(row, 3))
}

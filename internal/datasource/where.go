package datasource

import (
	"fmt"
	"strings"
)

// WhereBuilder accumulates parameterized WHERE conditions joined by AND.
// Placeholders are numbered in the order conditions are added.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends an equality condition.
func (wb *WhereBuilder) Add(column string, value any) {
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", quoteIdentifier(column), wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddIn appends an IN condition. A single value collapses to equality and
// no values adds nothing.
func (wb *WhereBuilder) AddIn(column string, values []any) {
	switch len(values) {
	case 0:
		return
	case 1:
		wb.Add(column, values[0])
		return
	}

	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", wb.argIndex)
		wb.args = append(wb.args, v)
		wb.argIndex++
	}
	wb.conditions = append(wb.conditions,
		fmt.Sprintf("%s IN (%s)", quoteIdentifier(column), strings.Join(placeholders, ", ")))
}

// AddSearch appends a case-insensitive substring match of query against any
// of columns. A blank query or no columns adds nothing.
func (wb *WhereBuilder) AddSearch(query string, columns []string) {
	query = strings.TrimSpace(query)
	if query == "" || len(columns) == 0 {
		return
	}

	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s::text ILIKE $%d", quoteIdentifier(col), wb.argIndex)
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
	wb.args = append(wb.args, "%"+escapeLike(query)+"%")
	wb.argIndex++
}

// Build returns the clause with a leading " WHERE ", or "" and nil args when
// nothing was added.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex is the number of the next free placeholder.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// toDBColumnName converts a display name to a column name.
// "Order ID" -> "order_id"
func toDBColumnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

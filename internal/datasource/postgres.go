// Package datasource serves grid tables from Postgres.
//
// A Postgres source translates a grid request (query, filters, sort and
// page) into a count query and a page query against one table, and backs
// the table's delete, update and create operations.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// maxSortLevels caps how many sort specs reach ORDER BY.
const maxSortLevels = 2

var (
	ErrNotFound    = errors.New("row not found")
	ErrNoColumns   = errors.New("no writable columns")
	ErrInvalidSpec = errors.New("invalid postgres source")
)

// DB is the subset of pgxpool.Pool the source needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Column maps a grid field to a table column.
type Column struct {
	Field      string
	DBColumn   string // defaults to the snake_cased field
	Searchable bool   // matched by the keyword field
}

// PostgresOptions describe the table behind a source.
type PostgresOptions struct {
	Table    string
	KeyField string
	Columns  []Column
}

// Postgres is a server-paginated data source over a single table.
type Postgres struct {
	db      DB
	table   string
	key     Column
	columns []Column
	byField map[string]Column
}

// NewPostgres validates opts and returns a source.
func NewPostgres(db DB, opts PostgresOptions) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil db", ErrInvalidSpec)
	}
	if strings.TrimSpace(opts.Table) == "" {
		return nil, fmt.Errorf("%w: table is required", ErrInvalidSpec)
	}
	if len(opts.Columns) == 0 {
		return nil, fmt.Errorf("%w: table %s has no columns", ErrInvalidSpec, opts.Table)
	}

	p := &Postgres{
		db:      db,
		table:   opts.Table,
		byField: make(map[string]Column, len(opts.Columns)),
	}
	for _, c := range opts.Columns {
		if c.Field == "" {
			return nil, fmt.Errorf("%w: column without field", ErrInvalidSpec)
		}
		if c.DBColumn == "" {
			c.DBColumn = toDBColumnName(c.Field)
		}
		if _, dup := p.byField[c.Field]; dup {
			return nil, fmt.Errorf("%w: duplicate field %s", ErrInvalidSpec, c.Field)
		}
		p.byField[c.Field] = c
		p.columns = append(p.columns, c)
	}

	key, ok := p.byField[opts.KeyField]
	if !ok {
		return nil, fmt.Errorf("%w: key field %q is not a column", ErrInvalidSpec, opts.KeyField)
	}
	p.key = key
	return p, nil
}

// Source returns the grid remote source backed by p.
func (p *Postgres) Source() grid.RemoteSource {
	return grid.RemoteSource{Request: p.Request, IsServerPagination: true}
}

// Operations returns the grid write callbacks backed by p.
func (p *Postgres) Operations() grid.Operations {
	return grid.Operations{Delete: p.Delete, Update: p.Update, Create: p.Create}
}

// Request fetches one page and the total matching row count.
func (p *Postgres) Request(ctx context.Context, req grid.Request) (grid.Page, error) {
	plan := p.plan(req)

	var total int64
	if err := p.db.QueryRow(ctx, plan.countSQL, plan.countArgs...).Scan(&total); err != nil {
		return grid.Page{}, fmt.Errorf("count %s: %w", p.table, err)
	}

	rows, err := p.db.Query(ctx, plan.pageSQL, plan.pageArgs...)
	if err != nil {
		return grid.Page{}, fmt.Errorf("query %s: %w", p.table, err)
	}
	defer rows.Close()

	out := []grid.Row{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return grid.Page{}, fmt.Errorf("read row values: %w", err)
		}
		row := make(grid.Row, len(p.columns))
		for i, col := range p.columns {
			if i < len(values) {
				row[col.Field] = normalizeValue(values[i])
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return grid.Page{}, fmt.Errorf("rows error: %w", err)
	}

	return grid.Page{Rows: out, Total: int(total)}, nil
}

// Delete removes the rows whose key is in keys.
func (p *Postgres) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	sql, args := p.deleteStatement(keys)
	if _, err := p.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete from %s: %w", p.table, err)
	}
	return nil
}

// Update writes the known, non-key fields of values to the row with key.
func (p *Postgres) Update(ctx context.Context, key string, values map[string]any) error {
	sql, args, err := p.updateStatement(key, values)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", p.table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s key %s: %w", p.table, key, ErrNotFound)
	}
	return nil
}

// Create inserts a row and returns its key. A missing key is generated.
func (p *Postgres) Create(ctx context.Context, values map[string]any) (string, error) {
	sql, args, key, err := p.insertStatement(values)
	if err != nil {
		return "", err
	}
	if _, err := p.db.Exec(ctx, sql, args...); err != nil {
		return "", fmt.Errorf("insert into %s: %w", p.table, err)
	}
	return key, nil
}

type queryPlan struct {
	countSQL  string
	countArgs []any
	pageSQL   string
	pageArgs  []any
}

func (p *Postgres) plan(req grid.Request) queryPlan {
	wb := NewWhereBuilder()

	for _, field := range slices.Sorted(maps.Keys(req.Query)) {
		v := req.Query[field]
		if field == grid.SortColumnsField || grid.IsEmptyValue(v) {
			continue
		}
		if field == grid.KeywordField {
			wb.AddSearch(fmt.Sprint(v), p.searchColumns())
			continue
		}
		col, ok := p.byField[field]
		if !ok {
			continue
		}
		if list, ok := toList(v); ok {
			wb.AddIn(col.DBColumn, list)
			continue
		}
		wb.Add(col.DBColumn, v)
	}

	for _, field := range slices.Sorted(maps.Keys(req.Filters)) {
		col, ok := p.byField[field]
		if !ok {
			continue
		}
		wb.AddIn(col.DBColumn, req.Filters[field])
	}

	where, args := wb.Build()
	table := quoteIdentifier(p.table)

	current := max(req.Current, 1)
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = grid.DefaultPageSize
	}
	offset := (current - 1) * pageSize

	quoted := make([]string, len(p.columns))
	for i, c := range p.columns {
		quoted[i] = quoteIdentifier(c.DBColumn)
	}

	argIndex := wb.NextArgIndex()
	pageSQL := fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(quoted, ", "),
		table,
		where,
		p.orderBy(req.Sort),
		argIndex,
		argIndex+1,
	)

	return queryPlan{
		countSQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where),
		countArgs: args,
		pageSQL:   pageSQL,
		pageArgs:  append(slices.Clone(args), pageSize, offset),
	}
}

// orderBy keeps sorts on known fields, up to maxSortLevels, and always ends
// with the key column so pages are stable.
func (p *Postgres) orderBy(sorts []grid.SortSpec) string {
	var parts []string
	seen := map[string]bool{}
	for _, s := range sorts {
		col, ok := p.byField[s.Column]
		if !ok || seen[col.DBColumn] {
			continue
		}
		dir := "asc"
		if s.Desc {
			dir = "desc"
		}
		parts = append(parts, quoteIdentifier(col.DBColumn)+" "+dir)
		seen[col.DBColumn] = true
		if len(parts) >= maxSortLevels {
			break
		}
	}
	if !seen[p.key.DBColumn] {
		parts = append(parts, quoteIdentifier(p.key.DBColumn)+" asc")
	}
	return strings.Join(parts, ", ")
}

func (p *Postgres) searchColumns() []string {
	var cols []string
	for _, c := range p.columns {
		if c.Searchable {
			cols = append(cols, c.DBColumn)
		}
	}
	return cols
}

func (p *Postgres) deleteStatement(keys []string) (string, []any) {
	wb := NewWhereBuilder()
	list := make([]any, len(keys))
	for i, k := range keys {
		list[i] = k
	}
	wb.AddIn(p.key.DBColumn, list)
	where, args := wb.Build()
	return fmt.Sprintf("DELETE FROM %s%s", quoteIdentifier(p.table), where), args
}

func (p *Postgres) updateStatement(key string, values map[string]any) (string, []any, error) {
	var (
		sets []string
		args []any
	)
	for _, field := range slices.Sorted(maps.Keys(values)) {
		col, ok := p.byField[field]
		if !ok || col.Field == p.key.Field {
			continue
		}
		args = append(args, values[field])
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdentifier(col.DBColumn), len(args)))
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("update %s: %w", p.table, ErrNoColumns)
	}
	args = append(args, key)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		quoteIdentifier(p.table),
		strings.Join(sets, ", "),
		quoteIdentifier(p.key.DBColumn),
		len(args),
	)
	return sql, args, nil
}

func (p *Postgres) insertStatement(values map[string]any) (string, []any, string, error) {
	row := make(map[string]any, len(values)+1)
	for field, v := range values {
		if _, ok := p.byField[field]; ok {
			row[field] = v
		}
	}
	if len(row) == 0 {
		return "", nil, "", fmt.Errorf("insert into %s: %w", p.table, ErrNoColumns)
	}

	key := ""
	if v, ok := row[p.key.Field]; ok && !grid.IsEmptyValue(v) {
		key = fmt.Sprint(v)
	} else {
		key = uuid.NewString()
		row[p.key.Field] = key
	}

	var (
		cols         []string
		placeholders []string
		args         []any
	)
	for _, field := range slices.Sorted(maps.Keys(row)) {
		args = append(args, row[field])
		cols = append(cols, quoteIdentifier(p.byField[field].DBColumn))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(p.table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	return sql, args, key, nil
}

func toList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// normalizeValue turns driver values into what the grid renders.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t.UTC().Format(time.RFC3339)
	}
	return v
}

// Package components renders the console's HTML with templ components.
//
// The grid partial is generated from grid.templ (run templ generate after
// editing it). The page chrome and small fragments are templ.ComponentFunc
// values; every dynamic string they write goes through templ.EscapeString.
package components

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// HTMXScript is where the page loads htmx from.
const HTMXScript = "https://unpkg.com/htmx.org@1.9.12"

// ScreenLink is one entry of the dashboard.
type ScreenLink struct {
	ID    string
	Title string
}

// GridModel is what the grid partial renders.
type GridModel struct {
	ScreenID string
	Title    string
	// Href is the screen's synchronized URL. Interaction links extend it so
	// the current query survives the round trip.
	Href       string
	View       grid.View
	Filterable []grid.Column
}

// htmlWriter accumulates the first write error so components read as a
// straight sequence of writes.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *htmlWriter) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

func esc(s string) string {
	return templ.EscapeString(s)
}

// Layout wraps body in the page chrome.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.rawf(`<title>%s · opsgrid</title>`, esc(title))
		h.rawf(`<script src="%s"></script></head><body>`, HTMXScript)
		h.raw(`<nav><a href="/">opsgrid</a></nav><main>`)
		if h.err != nil {
			return h.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		h.raw(`</main></body></html>`)
		return h.err
	})
}

// Dashboard lists the configured screens.
func Dashboard(links []ScreenLink) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<h1>Screens</h1><ul class="screens">`)
		for _, l := range links {
			h.rawf(`<li><a href="/screens/%s">%s</a></li>`, esc(url.PathEscape(l.ID)), esc(l.Title))
		}
		h.raw(`</ul>`)
		return h.err
	})
}

// ScreenPage is the full page for one screen.
func ScreenPage(m GridModel) templ.Component {
	return Layout(m.Title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.rawf(`<h1>%s</h1>`, esc(m.Title))
		if h.err != nil {
			return h.err
		}
		return Grid(m).Render(ctx, w)
	}))
}

// ErrorAlert is the htmx error fragment.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.rawf(`<div class="alert alert-error" role="alert"><p>%s</p>`, esc(message))
		if action != "" {
			h.rawf(`<p class="action">%s</p>`, esc(action))
		}
		h.rawf(`<small>%s</small></div>`, esc(code))
		return h.err
	})
}

// withParams appends name/value pairs to a path that may already carry a
// query string.
func withParams(base string, pairs ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + v.Encode()
}

func joinValues(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	default:
		return fmt.Sprint(t)
	}
}

func (m GridModel) base() string {
	if m.Href != "" {
		return m.Href
	}
	return "/screens/" + url.PathEscape(m.ScreenID)
}

func (m GridModel) target() string {
	return "#grid-" + m.ScreenID
}

func (m GridModel) sortHref(col grid.Column) string {
	return withParams(m.base(), "_action", "sort", "_field", col.Field(), "_order", string(nextOrder(col.SortOrder)))
}

func (m GridModel) rowKey(i int) string {
	if i < len(m.View.RowKeys) {
		return m.View.RowKeys[i]
	}
	return ""
}

func (m GridModel) isSelected(key string) bool {
	return m.View.Selection != nil && slices.Contains(m.View.Selection.SelectedRowKeys, key)
}

// columnFilterValue prefers the column filter and falls back to the search
// query for the same field.
func (m GridModel) columnFilterValue(col grid.Column) string {
	field := col.Field()
	if v := joinValues(m.View.State.Filters[field]); v != "" {
		return v
	}
	return joinValues(m.View.State.Query[field])
}

func visibleColumns(cols []grid.Column) []grid.Column {
	out := make([]grid.Column, 0, len(cols))
	for _, c := range cols {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

func widthAttrs(col grid.Column) templ.Attributes {
	if col.Width <= 0 {
		return templ.Attributes{}
	}
	return templ.Attributes{"style": "width:" + strconv.Itoa(col.Width) + "px"}
}

func cellText(row grid.Row, col grid.Column) string {
	if v, ok := row[col.Field()]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func optionValue(o grid.Option) string {
	return fmt.Sprint(o.Value)
}

func fieldText(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func pageHref(base string, p grid.PaginationConfig, page int) string {
	return withParams(base, "_action", "paginate", "_page", strconv.Itoa(page), "_size", strconv.Itoa(p.PageSize))
}

func nextOrder(o grid.SortOrder) grid.SortOrder {
	switch o {
	case grid.SortAscend:
		return grid.SortDescend
	case grid.SortDescend:
		return grid.SortNone
	default:
		return grid.SortAscend
	}
}

func sortMark(o grid.SortOrder) string {
	switch o {
	case grid.SortAscend:
		return " ▲"
	case grid.SortDescend:
		return " ▼"
	}
	return ""
}

func valueSelected(current any, v string) bool {
	switch c := current.(type) {
	case nil:
		return false
	case []string:
		return slices.Contains(c, v)
	case []any:
		for _, e := range c {
			if fmt.Sprint(e) == v {
				return true
			}
		}
		return false
	default:
		return fmt.Sprint(c) == v
	}
}

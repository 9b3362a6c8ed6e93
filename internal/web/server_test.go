package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/opsgrid/internal/activekey"
	"github.com/JonMunkholm/opsgrid/internal/config"
	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
	"github.com/JonMunkholm/opsgrid/internal/screens"
	"github.com/JonMunkholm/opsgrid/internal/widthstore"
)

const testScreens = `
screens:
  - id: regions
    title: Regions
    row_key: code
    page_size: 10
    sync_query: true
    source:
      kind: static
      rows:
        - { code: EMEA, name: Europe, owner: dana }
        - { code: AMER, name: Americas, owner: lee }
        - { code: APAC, name: Asia Pacific, owner: sam }
    columns:
      - { key: code, title: Code, sortable: true }
      - { key: name, title: Name, sortable: true }
      - { key: owner, title: Owner, filterable: true }
    filters:
      - { field: keyword, label: Search }
    editable: [name]
  - id: plain
    title: Plain
    row_key: code
    source:
      kind: static
      rows:
        - { code: A }
    columns:
      - { key: code }
  - id: tabs
    title: Tabs
    row_key: code
    active_key: tabs-topic
    source:
      kind: static
      rows:
        - { code: A }
    columns:
      - { key: code }
`

type testEnv struct {
	server *Server
	widths *widthstore.Memory
	broker *activekey.Broker
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	catalog, err := screens.Parse([]byte(testScreens))
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Grid:   config.GridConfig{DefaultPageSize: 10, MinColumnWidth: 60},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	env := &testEnv{
		widths: widthstore.NewMemory(),
		broker: activekey.NewBroker(),
	}
	env.server = NewServer(cfg, catalog, screens.Deps{
		ArrayFormat:     querysync.ArrayBrackets,
		Broker:          env.broker,
		Widths:          env.widths,
		WidthPrefix:     "cwp:",
		MinColumnWidth:  cfg.Grid.MinColumnWidth,
		DefaultPageSize: cfg.Grid.DefaultPageSize,
	})
	t.Cleanup(func() { _ = env.server.Shutdown(t.Context()) })
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func htmx(t *testing.T, e *testEnv, target string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodGet, target, "", "HX-Request", "true")
}

// ============ Page Tests ============

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/screens/regions"`)
	assert.Contains(t, rec.Body.String(), "Plain")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestScreen_FullPage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/screens/regions", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<!DOCTYPE html>")
	for _, name := range []string{"Europe", "Americas", "Asia Pacific"} {
		assert.Contains(t, body, name)
	}
	assert.Contains(t, body, `name="q.keyword"`)
	assert.Contains(t, body, `name="f.owner"`)
	assert.Contains(t, body, `data-editable="true"`)
	assert.Empty(t, rec.Header().Get("HX-Push-Url"))
}

func TestScreen_Unknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/screens/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "GRID001")

	rec = htmx(t, env, "/screens/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
}

func TestScreen_Sort(t *testing.T) {
	env := newTestEnv(t)

	rec := htmx(t, env, "/screens/regions?_action=sort&_field=name&_order=descend")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `<section id="grid-regions"`), body)
	assert.Less(t, strings.Index(body, "Europe"), strings.Index(body, "Americas"))

	push := rec.Header().Get("HX-Push-Url")
	assert.True(t, strings.HasPrefix(push, "/screens/regions?"), push)
	assert.Contains(t, push, "sort_columns=")
	assert.NotContains(t, push, "_action")
}

func TestScreen_SortStateSurvivesNextRequest(t *testing.T) {
	env := newTestEnv(t)

	first := htmx(t, env, "/screens/regions?_action=sort&_field=name&_order=descend")
	push := first.Header().Get("HX-Push-Url")
	require.NotEmpty(t, push)

	rec := htmx(t, env, push)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Less(t, strings.Index(body, "Europe"), strings.Index(body, "Americas"))
	assert.Equal(t, push, rec.Header().Get("HX-Push-Url"))
}

func TestScreen_Search(t *testing.T) {
	env := newTestEnv(t)

	rec := htmx(t, env, "/screens/regions?_action=search&q.keyword=asia")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Asia Pacific")
	assert.NotContains(t, rec.Body.String(), "Europe")
	assert.Equal(t, "/screens/regions?keyword=asia", rec.Header().Get("HX-Push-Url"))
}

func TestScreen_ColumnFilter(t *testing.T) {
	env := newTestEnv(t)

	rec := htmx(t, env, "/screens/regions?_action=filter&f.owner=lee")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Americas")
	assert.NotContains(t, rec.Body.String(), "Europe")
	assert.Contains(t, rec.Header().Get("HX-Push-Url"), "owner%5B%5D=lee")
}

func TestScreen_Reset(t *testing.T) {
	env := newTestEnv(t)

	rec := htmx(t, env, "/screens/regions?keyword=asia&_action=reset")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Europe")
	assert.Equal(t, "/screens/regions", rec.Header().Get("HX-Push-Url"))
}

func TestScreen_BadInteraction(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/screens/regions?_action=explode",
		"/screens/regions?_action=sort&_field=name&_order=sideways",
		"/screens/regions?_action=paginate&_page=-1",
	} {
		rec := env.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestScreen_UnsyncedIgnoresURL(t *testing.T) {
	env := newTestEnv(t)

	rec := htmx(t, env, "/screens/plain?keyword=zzz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ">A<")
	assert.Empty(t, rec.Header().Get("HX-Push-Url"))
}

// ============ API Tests ============

func TestAPI_ListScreens(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/screens", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 3)
	assert.Equal(t, "regions", out[0]["id"])
	assert.Equal(t, "static", out[0]["source"])
}

func TestAPI_State(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/screens/regions/state?keyword=emea", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		TableID string           `json:"tableId"`
		URL     string           `json:"url"`
		Rows    []map[string]any `json:"rows"`
		RowKeys []string         `json:"rowKeys"`
		State   struct {
			Query map[string]any `json:"query"`
		} `json:"state"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "regions", out.TableID)
	assert.Equal(t, "/api/screens/regions/state?keyword=emea", out.URL)
	assert.Equal(t, []string{"EMEA"}, out.RowKeys)
	assert.Equal(t, 1, out.Pagination.Total)
	assert.Equal(t, "emea", out.State.Query["keyword"])
}

func TestAPI_ResizeColumn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/screens/regions/columns/name/width", `{"width":20}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Width int `json:"width"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 60, out.Width)

	stored, err := env.widths.Load(t.Context(), "cwp:regions")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"name": 60}, stored)

	page := env.do(t, http.MethodGet, "/screens/regions", "")
	assert.Regexp(t, `<th data-key="name" style="width:60px;?"`, page.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/screens/regions/columns/widths", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	stored, err = env.widths.Load(t.Context(), "cwp:regions")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAPI_ResizeColumn_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/screens/regions/columns/nope/width", `{"width":100}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/screens/regions/columns/name/width", `{"width":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/screens/regions/columns/name/width", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "REQ001", out.Code)
}

func TestAPI_ActiveKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/screens/tabs/active-key", `{"key":"open"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	key, ok := env.broker.Latest("tabs-topic")
	require.True(t, ok)
	assert.Equal(t, "open", key)

	rec = env.do(t, http.MethodPost, "/api/screens/plain/active-key", `{"key":"open"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_Rows_StaticSourceIsReadOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/screens/regions/rows/EMEA", `{"values":{"name":"Europa"}}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/screens/regions/rows/EMEA", `{"values":{"owner":"kim"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "EDIT001")

	rec = env.do(t, http.MethodPut, "/api/screens/plain/rows/A", `{"values":{"code":"B"}}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/screens/regions/rows", `{"values":{"code":"LATAM"}}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/screens/regions/rows/EMEA", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/screens/regions/rows/delete", `{"keys":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RequiresKey(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	rec := env.do(t, http.MethodGet, "/api/screens", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/screens", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Pages stay public.
	rec = env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	})

	for range 2 {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/", "").Code)
	}
	rec := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

// ============ Error Mapping Tests ============

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown screen", screens.ErrUnknownScreen, http.StatusNotFound, "GRID001"},
		{"wrapped bad request", errWrap(errBadRequest), http.StatusBadRequest, "REQ001"},
		{"driver duplicate", errString("ERROR: duplicate key value violates unique constraint"), http.StatusConflict, "DB001"},
		{"unknown", errString("boom"), http.StatusInternalServerError, "ERR000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, msg.Code)
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func errWrap(err error) error {
	return &wrapped{err}
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "outer: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }

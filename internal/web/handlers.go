package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/opsgrid/internal/grid"
	"github.com/JonMunkholm/opsgrid/internal/grid/plugins"
	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
	"github.com/JonMunkholm/opsgrid/internal/logging"
	"github.com/JonMunkholm/opsgrid/internal/screens"
	"github.com/JonMunkholm/opsgrid/internal/web/components"
)

// MaxBodySize bounds JSON request bodies.
const MaxBodySize = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type widthRequest struct {
	Width int `json:"width" validate:"required,min=1,max=4000"`
}

type activeKeyRequest struct {
	Key string `json:"key" validate:"required,max=200"`
}

type rowRequest struct {
	Values map[string]any `json:"values" validate:"required,min=1"`
}

type deleteRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,required"`
}

// screenSession is one mounted table serving one request.
type screenSession struct {
	built  screens.Built
	table  *grid.Table
	loc    *querysync.Location
	logger *slog.Logger
}

// openScreen builds and mounts a screen's table. A nil loc disables query
// sync. It returns once the table has read its URL.
func (s *Server) openScreen(ctx context.Context, id string, loc *querysync.Location) (*screenSession, error) {
	sc, err := s.catalog.Get(id)
	if err != nil {
		return nil, err
	}

	deps := s.deps
	deps.Location = loc
	built, err := screens.Build(sc, deps)
	if err != nil {
		return nil, err
	}

	logger := logging.ForScreen(ctx, id)
	table := built.Table(logger)
	table.Mount(ctx)

	if qs, ok := grid.Capability[*plugins.QuerySync](table.Registry(), grid.PluginQuerySync); ok {
		if engine := qs.Engine(); engine != nil {
			select {
			case <-engine.Ready():
			case <-ctx.Done():
				table.Close()
				return nil, fmt.Errorf("screen %s: wait for query sync: %w", id, ctx.Err())
			}
		}
	}

	return &screenSession{built: built, table: table, loc: loc, logger: logger}, nil
}

func (ss *screenSession) Close() {
	ss.table.Close()
}

// apply routes an interaction into the table.
func (ss *screenSession) apply(in interaction) error {
	t := ss.table
	switch in.action {
	case actionSort:
		return t.OnChange(grid.PaginationInfo{}, grid.SorterInfo{in.sorter}, nil,
			grid.ChangeExtra{Action: grid.ActionSort})
	case actionPaginate:
		return t.OnChange(grid.PaginationInfo{Current: in.page, PageSize: in.size}, nil, nil,
			grid.ChangeExtra{Action: grid.ActionPaginate})
	case actionFilter:
		return t.OnChange(grid.PaginationInfo{}, nil, in.filters,
			grid.ChangeExtra{Action: grid.ActionFilter})
	case actionSearch:
		for _, item := range grid.BuildFilterPanel(t.Registry(), t.Context()) {
			if v, ok := in.search[item.Field]; ok && item.OnChange != nil {
				item.OnChange(v)
			}
		}
	case actionReset:
		t.Context().Helpers.ResetFilterValues(in.resetEmptyData)
	}
	return nil
}

// handleDashboard renders the list of screens.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	all := s.catalog.All()
	links := make([]components.ScreenLink, len(all))
	for i, sc := range all {
		links[i] = components.ScreenLink{ID: sc.ID, Title: sc.Title}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := components.Layout("Screens", components.Dashboard(links)).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render dashboard", "error", err)
	}
}

// handleListScreens returns the configured screens.
func (s *Server) handleListScreens(w http.ResponseWriter, r *http.Request) {
	type screenInfo struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Source    string `json:"source"`
		SyncQuery bool   `json:"syncQuery"`
	}
	all := s.catalog.All()
	out := make([]screenInfo, len(all))
	for i, sc := range all {
		out[i] = screenInfo{ID: sc.ID, Title: sc.Title, Source: sc.Source.Kind, SyncQuery: sc.SyncQuery}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleScreen renders a screen. htmx requests get the grid partial and an
// HX-Push-Url with the synchronized URL.
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "screenID")

	in, err := parseInteraction(r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ss, err := s.openScreen(ctx, id, stateLocation(r.URL))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer ss.Close()

	if err := ss.apply(in); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := ss.table.Load(ctx); err != nil {
		// The view carries the error and renders it inline.
		ss.logger.Error("load rows", "error", err)
	}

	view := ss.table.View(ss.built.Columns)
	model := components.GridModel{
		ScreenID:   id,
		Title:      ss.built.Screen.Title,
		Href:       ss.loc.String(),
		View:       view,
		Filterable: filterableColumns(ss.built.Columns),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	component := components.ScreenPage(model)
	if isHTMX(r) {
		if ss.built.Props.SyncQueryOnSearchParams {
			w.Header().Set("HX-Push-Url", ss.loc.String())
		}
		component = components.Grid(model)
	}
	if err := component.Render(ctx, w); err != nil {
		ss.logger.Error("render screen", "error", err)
		return
	}
	ss.logger.Debug("screen rendered",
		"action", in.action,
		"rows", len(view.Rows),
		"total", view.Pagination.Total,
	)
}

// stateResponse is the JSON form of a screen's current view.
type stateResponse struct {
	TableID    string                `json:"tableId"`
	URL        string                `json:"url"`
	State      grid.State            `json:"state"`
	Pagination grid.PaginationConfig `json:"pagination"`
	Columns    []grid.Column         `json:"columns"`
	Filters    []grid.FieldItem      `json:"filters"`
	Rows       []grid.Row            `json:"rows"`
	RowKeys    []string              `json:"rowKeys"`
	Selection  *grid.RowSelection    `json:"selection,omitempty"`
}

// handleScreenState returns the screen's view for the query on the
// request URL, as JSON.
func (s *Server) handleScreenState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "screenID")

	in, err := parseInteraction(r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ss, err := s.openScreen(ctx, id, stateLocation(r.URL))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer ss.Close()

	if err := ss.apply(in); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := ss.table.Load(ctx); err != nil {
		s.respondError(w, r, err)
		return
	}

	view := ss.table.View(ss.built.Columns)
	writeJSON(w, http.StatusOK, stateResponse{
		TableID:    view.TableID,
		URL:        ss.loc.String(),
		State:      view.State,
		Pagination: view.Pagination,
		Columns:    view.Columns,
		Filters:    view.Filters,
		Rows:       view.Rows,
		RowKeys:    view.RowKeys,
		Selection:  view.Selection,
	})
}

// handleResizeColumn persists a column width.
func (s *Server) handleResizeColumn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "screenID")
	column := chi.URLParam(r, "column")

	var req widthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ss, err := s.openScreen(r.Context(), id, stateLocation(r.URL))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer ss.Close()

	if !slices.ContainsFunc(ss.built.Columns, func(c grid.Column) bool { return c.Key == column }) {
		s.respondError(w, r, fmt.Errorf("screen %s: %w %q", id, errUnknownColumn, column))
		return
	}
	cw, ok := grid.Capability[*plugins.ColumnWidth](ss.table.Registry(), grid.PluginColumnWidth)
	if !ok {
		s.respondError(w, r, fmt.Errorf("screen %s: column widths: %w", id, grid.ErrUnsupported))
		return
	}
	if _, err := ss.table.Registry().Use(grid.PluginColumnWidth, "resize", column, req.Width); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"column": column,
		"width":  cw.Widths()[column],
		"widths": cw.Widths(),
	})
}

// handleResetWidths forgets the screen's stored widths.
func (s *Server) handleResetWidths(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "screenID")

	ss, err := s.openScreen(r.Context(), id, stateLocation(r.URL))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer ss.Close()

	if _, ok := ss.table.Registry().Get(grid.PluginColumnWidth); !ok {
		s.respondError(w, r, fmt.Errorf("screen %s: column widths: %w", id, grid.ErrUnsupported))
		return
	}
	if _, err := ss.table.Registry().Use(grid.PluginColumnWidth, "reset"); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePublishActiveKey publishes the screen's active key, e.g. the tab
// the user just switched to.
func (s *Server) handlePublishActiveKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "screenID")
	sc, err := s.catalog.Get(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if sc.ActiveKey == "" || s.deps.Broker == nil {
		s.respondError(w, r, fmt.Errorf("screen %s: active key: %w", id, grid.ErrUnsupported))
		return
	}

	var req activeKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.deps.Broker.Publish(sc.ActiveKey, req.Key)
	logging.ForScreen(r.Context(), id).Info("active key published", "topic", sc.ActiveKey, "key", req.Key)
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateRow inserts a row.
func (s *Server) handleCreateRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "screenID")

	var req rowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ss, err := s.openScreen(r.Context(), id, nil)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer ss.Close()

	key, err := ss.table.Operations().Create(r.Context(), req.Values)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ss.logger.Info("row created", "key", key)
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// handleUpdateRow edits a row through the inline-edit plugin: start, one
// change per field, commit.
func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "screenID")
	key := chi.URLParam(r, "rowKey")

	var req rowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ss, err := s.openScreen(r.Context(), id, nil)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer ss.Close()

	reg := ss.table.Registry()
	if _, ok := reg.Get(grid.PluginInlineEdit); !ok {
		s.respondError(w, r, fmt.Errorf("screen %s: edit: %w", id, grid.ErrUnsupported))
		return
	}

	if _, err := reg.Use(grid.PluginInlineEdit, "start", key); err != nil {
		s.respondError(w, r, err)
		return
	}
	fields := make([]string, 0, len(req.Values))
	for f := range req.Values {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if _, err := reg.Use(grid.PluginInlineEdit, "change", f, req.Values[f]); err != nil {
			_, _ = reg.Use(grid.PluginInlineEdit, "cancel")
			s.respondError(w, r, err)
			return
		}
	}
	if _, err := reg.Use(grid.PluginInlineEdit, "commit", r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}

	ss.logger.Info("row updated", "key", key, "fields", fields)
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

// handleDeleteRow deletes one row.
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	s.deleteRows(w, r, []string{chi.URLParam(r, "rowKey")})
}

// handleDeleteRows deletes the selected rows.
func (s *Server) handleDeleteRows(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.deleteRows(w, r, req.Keys)
}

func (s *Server) deleteRows(w http.ResponseWriter, r *http.Request, keys []string) {
	id := chi.URLParam(r, "screenID")

	ss, err := s.openScreen(r.Context(), id, nil)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer ss.Close()

	if err := ss.table.Operations().Delete(r.Context(), keys); err != nil {
		s.respondError(w, r, err)
		return
	}
	ss.logger.Info("rows deleted", "count", len(keys))
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads and validates a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed validation for tag '%s'", errBadRequest, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func filterableColumns(cols []grid.Column) []grid.Column {
	var out []grid.Column
	for _, c := range cols {
		if c.Filterable && !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

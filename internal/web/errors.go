package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via mapError to a status and a user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is rendered in appropriate format for the client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/opsgrid/internal/datasource"
	"github.com/JonMunkholm/opsgrid/internal/grid"
	"github.com/JonMunkholm/opsgrid/internal/grid/plugins"
	"github.com/JonMunkholm/opsgrid/internal/screens"
	"github.com/JonMunkholm/opsgrid/internal/web/components"
)

var (
	errBadRequest    = errors.New("invalid request")
	errUnknownColumn = errors.New("unknown column")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// userMessage is what the client sees for an error.
type userMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorRule struct {
	target error
	status int
	msg    userMessage
}

// errorRules map sentinel errors, in match order.
var errorRules = []errorRule{
	{screens.ErrUnknownScreen, http.StatusNotFound, userMessage{
		"Screen not found", "Pick a screen from the dashboard", "GRID001"}},
	{errUnknownColumn, http.StatusNotFound, userMessage{
		"Column not found", "Check the column key against the screen definition", "GRID002"}},
	{datasource.ErrNotFound, http.StatusNotFound, userMessage{
		"Row not found", "Reload the table, the row may have been removed", "GRID003"}},
	{grid.ErrUnsupported, http.StatusMethodNotAllowed, userMessage{
		"This screen does not support that operation", "", "GRID004"}},
	{plugins.ErrFieldNotEditable, http.StatusBadRequest, userMessage{
		"That field cannot be edited", "Only the screen's editable columns can change", "EDIT001"}},
	{plugins.ErrNotEditing, http.StatusConflict, userMessage{
		"No row is being edited", "Start the edit again", "EDIT002"}},
	{datasource.ErrNoColumns, http.StatusBadRequest, userMessage{
		"Nothing to save", "Send at least one known column", "EDIT003"}},
	{errBadRequest, http.StatusBadRequest, userMessage{
		"The request could not be understood", "Check the request parameters", "REQ001"}},
	{screens.ErrNoDatabase, http.StatusServiceUnavailable, userMessage{
		"This screen's database is not configured", "Set DATABASE_URL and restart the server", "DB010"}},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, userMessage{
		"The request timed out", "Please try again in a few moments", "DB006"}},
}

type errorPattern struct {
	pattern string
	status  int
	msg     userMessage
}

// errorPatterns match driver errors that carry no sentinel (case-insensitive).
var errorPatterns = []errorPattern{
	{"duplicate key", http.StatusConflict, userMessage{
		"A record with this key already exists", "Use a different key", "DB001"}},
	{"violates unique", http.StatusConflict, userMessage{
		"This value must be unique but already exists", "Check for duplicate values", "DB002"}},
	{"violates foreign key", http.StatusConflict, userMessage{
		"Referenced record does not exist", "Create the referenced record first", "DB003"}},
	{"connection refused", http.StatusServiceUnavailable, userMessage{
		"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", http.StatusServiceUnavailable, userMessage{
		"Database connection was interrupted", "Please try again", "DB005"}},
}

var defaultMessage = userMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again. If the problem persists, contact support",
	Code:    "ERR000",
}

// mapError picks the status and user message for err.
func mapError(err error) (int, userMessage) {
	for _, rule := range errorRules {
		if errors.Is(err, rule.target) {
			return rule.status, rule.msg
		}
	}
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.status, ep.msg
		}
	}
	return http.StatusInternalServerError, defaultMessage
}

// respondError logs the technical error server-side and returns a
// user-friendly response based on the request type (HTMX, JSON, or HTML).
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	switch {
	case isHTMX(r):
		renderErrorPartial(w, r, msg, status)
	case wantsJSON(r):
		respondErrorJSON(w, msg, status)
	default:
		http.Error(w, msg.Message+" ("+msg.Code+")", status)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg userMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg userMessage, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = components.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}

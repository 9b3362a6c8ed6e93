// Package querysync keeps a table's query and the request URL in sync.
//
// On open the engine reads the URL once, merges it over the init query and
// the current query (URL wins), and from then on mirrors every query change
// back into the URL. Only parameters the engine owns are rewritten; any
// other parameter on the page is left alone.
package querysync

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/opsgrid/internal/activekey"
	"github.com/JonMunkholm/opsgrid/internal/grid"
)

// Phase is the engine's position in its lifecycle.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseSynced       Phase = "synced"
	PhaseClosed       Phase = "closed"
)

// URL parameters used for pagination when SyncPagination is on.
const (
	ParamCurrent  = "current"
	ParamPageSize = "pageSize"
)

// unwritten never equals an encoded query, forcing the first write.
const unwritten = "\x00"

// Status is the engine's plugin sub-state.
type Status struct {
	Phase     Phase  `json:"phase"`
	ActiveKey string `json:"activeKey,omitempty"`
}

// Options configure an Engine.
type Options struct {
	Codec Codec

	// Fields restricts which URL parameters are read into the query. Empty
	// means every parameter that is not reserved for interactions.
	Fields []string

	// SyncPagination mirrors current and pageSize as well.
	SyncPagination bool

	// ActiveKeyDelay postpones the URL read when the table uses an active
	// key, giving the key's owner time to publish.
	ActiveKeyDelay time.Duration
	Broker         *activekey.Broker
}

// Engine synchronizes one table with one Location.
type Engine struct {
	pc     *grid.PluginContext
	loc    *Location
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	phase     Phase
	activeKey string
	managed   map[string]struct{}
	last      string

	timer       *time.Timer
	unsubscribe func()
	cancelKey   func()
	stopCtx     func() bool

	ready     chan struct{}
	readyOnce sync.Once
}

// NewEngine creates an idle engine.
func NewEngine(pc *grid.PluginContext, loc *Location, opts Options) *Engine {
	if loc == nil {
		loc = NewLocation(nil)
	}
	return &Engine{
		pc:      pc,
		loc:     loc,
		opts:    opts,
		logger:  pc.Logger.With("component", "query_sync"),
		phase:   PhaseIdle,
		managed: map[string]struct{}{},
		ready:   make(chan struct{}),
	}
}

// Open starts synchronization. When sync is disabled the engine is synced
// immediately and never touches the URL. Cancelling ctx before a delayed
// read fires abandons the read.
func (e *Engine) Open(ctx context.Context) {
	props := e.pc.Props()

	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.mu.Unlock()
		return
	}
	if !props.SyncQueryOnSearchParams {
		e.phase = PhaseSynced
		e.mu.Unlock()
		e.markReady()
		e.publishStatus()
		return
	}

	e.phase = PhaseInitializing
	e.unsubscribe = e.pc.Store.Subscribe(e.onState)

	delayed := props.UseActiveKeyHook && e.opts.Broker != nil
	if delayed {
		topic := props.ActiveKeyTopic
		if topic == "" {
			topic = props.TableID
		}
		if key, ok := e.opts.Broker.Latest(topic); ok {
			e.activeKey = key
		}
		ch, cancel := e.opts.Broker.Subscribe(topic)
		e.cancelKey = cancel
		go e.watchActiveKey(ch)

		e.timer = time.AfterFunc(e.opts.ActiveKeyDelay, e.initialize)
		e.stopCtx = context.AfterFunc(ctx, e.abandon)
	}
	e.mu.Unlock()

	e.publishStatus()
	if !delayed {
		e.initialize()
	}
}

// Ready is closed once the engine leaves the initializing phase.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// ActiveKey returns the latest active key observed.
func (e *Engine) ActiveKey() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeKey
}

// Location returns the URL the engine writes to.
func (e *Engine) Location() *Location {
	return e.loc
}

// ResetQuery resets the query to empty (resetEmptyData) or to the init
// query, clears the URL parameters the engine owns, clears filters,
// returns to page 1 and reloads.
func (e *Engine) ResetQuery(resetEmptyData bool) {
	next := grid.Query{}
	if !resetEmptyData {
		next = e.pc.Props().InitQuery.Clone()
	}

	e.mu.Lock()
	owns := e.phase != PhaseClosed && e.pc.Props().SyncQueryOnSearchParams
	var owned map[string]struct{}
	if owns {
		owned = e.managed
		e.managed = map[string]struct{}{}
		e.last = unwritten
	}
	e.mu.Unlock()

	if owns && len(owned) > 0 {
		values := e.loc.Values()
		for field := range owned {
			for _, p := range ManagedParams(field) {
				values.Del(p)
			}
		}
		e.loc.Replace(values)
	}

	h := e.pc.Helpers
	h.ResetQuery(next)
	h.SetFilters(grid.Filters{})
	h.SetCurrent(1)
	h.Reload()
}

// Close stops pending timers and subscriptions.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.phase == PhaseClosed {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseClosed
	if e.timer != nil {
		e.timer.Stop()
	}
	stops := []func(){e.unsubscribe, e.cancelKey}
	if e.stopCtx != nil {
		stop := e.stopCtx
		stops = append(stops, func() { stop() })
	}
	e.unsubscribe, e.cancelKey, e.stopCtx = nil, nil, nil
	e.mu.Unlock()

	for _, fn := range stops {
		if fn != nil {
			fn()
		}
	}
	e.markReady()
}

func (e *Engine) initialize() {
	e.mu.Lock()
	if e.phase != PhaseInitializing {
		e.mu.Unlock()
		return
	}
	if e.stopCtx != nil {
		e.stopCtx()
		e.stopCtx = nil
	}
	e.mu.Unlock()

	values := e.loc.Values()
	draft := e.opts.Codec.Decode(values, e.accepts)

	merged := e.pc.Props().InitQuery.Clone()
	maps.Copy(merged, e.pc.State().Query)
	maps.Copy(merged, draft)
	e.pc.Helpers.SetQuery(merged)

	owned := map[string]struct{}{}
	for field := range draft {
		owned[field] = struct{}{}
	}
	if e.opts.SyncPagination {
		if n, err := strconv.Atoi(values.Get(ParamCurrent)); err == nil && n > 0 {
			e.pc.Helpers.SetCurrent(n)
		}
		if n, err := strconv.Atoi(values.Get(ParamPageSize)); err == nil && n > 0 {
			e.pc.Helpers.SetPageSize(n)
		}
		owned[ParamCurrent] = struct{}{}
		owned[ParamPageSize] = struct{}{}
	}

	e.mu.Lock()
	if e.phase != PhaseInitializing {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseSynced
	maps.Copy(e.managed, owned)
	e.last = unwritten
	e.mu.Unlock()

	e.publishStatus()
	e.write(e.pc.State())
	e.markReady()
}

// abandon gives up a delayed read whose context ended first.
func (e *Engine) abandon() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseInitializing && e.timer != nil && e.timer.Stop() {
		e.logger.Debug("query sync: initial read abandoned")
	}
}

func (e *Engine) onState(s grid.State, a grid.Action) {
	if _, ok := a.(grid.SetPluginState); ok {
		return
	}
	if e.Phase() != PhaseSynced {
		return
	}
	e.write(s)
}

func (e *Engine) write(s grid.State) {
	enc, err := e.opts.Codec.Encode(s.Query)
	if err != nil {
		e.logger.Warn("query sync: skipping URL write", "error", err)
		return
	}
	if e.opts.SyncPagination {
		if s.Pagination.Current > 1 {
			enc.Set(ParamCurrent, strconv.Itoa(s.Pagination.Current))
		}
		if ps := s.Pagination.PageSize; ps > 0 && ps != e.defaultPageSize() {
			enc.Set(ParamPageSize, strconv.Itoa(ps))
		}
	}

	encoded := enc.Encode()

	e.mu.Lock()
	if e.phase != PhaseSynced || encoded == e.last {
		e.mu.Unlock()
		return
	}
	e.last = encoded
	owned := e.managed
	next := make(map[string]struct{}, len(enc))
	for k := range enc {
		next[strings.TrimSuffix(k, "[]")] = struct{}{}
	}
	e.managed = next
	e.mu.Unlock()

	values := e.loc.Values()
	for field := range owned {
		for _, p := range ManagedParams(field) {
			values.Del(p)
		}
	}
	for k, v := range enc {
		values[k] = v
	}
	e.loc.Replace(values)
}

func (e *Engine) watchActiveKey(ch <-chan string) {
	for key := range ch {
		e.mu.Lock()
		closed := e.phase == PhaseClosed
		e.activeKey = key
		e.mu.Unlock()
		if closed {
			continue
		}
		e.publishStatus()
	}
}

func (e *Engine) publishStatus() {
	e.mu.Lock()
	st := Status{Phase: e.phase, ActiveKey: e.activeKey}
	e.mu.Unlock()
	if st.Phase == PhaseClosed {
		return
	}
	e.pc.Helpers.SetPluginState(grid.PluginQuerySync, st)
}

// accepts reports whether a URL parameter belongs to the query. Names
// starting with "_", "f." or "q." carry interactions and are never read.
func (e *Engine) accepts(field string) bool {
	if IsInteractionParam(field) {
		return false
	}
	if field == ParamCurrent || field == ParamPageSize {
		return false
	}
	if len(e.opts.Fields) == 0 {
		return true
	}
	for _, f := range e.opts.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// IsInteractionParam reports whether a URL parameter carries a one-shot
// interaction instead of table state.
func IsInteractionParam(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, "f.") || strings.HasPrefix(name, "q.")
}

func (e *Engine) defaultPageSize() int {
	if n := e.pc.Props().DefaultPageSize; n > 0 {
		return n
	}
	return grid.DefaultPageSize
}

func (e *Engine) markReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}

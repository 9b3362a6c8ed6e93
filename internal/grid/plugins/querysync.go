package plugins

import (
	"sync"

	"github.com/JonMunkholm/opsgrid/internal/grid"
	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
)

// QuerySync wraps a querysync.Engine. It owns the reset flow so the reset
// button and the URL stay consistent.
type QuerySync struct {
	loc  *querysync.Location
	opts querysync.Options

	mu     sync.Mutex
	engine *querysync.Engine
}

func NewQuerySync(loc *querysync.Location, opts querysync.Options) *QuerySync {
	return &QuerySync{loc: loc, opts: opts}
}

func (*QuerySync) Metadata() grid.Metadata {
	return grid.Metadata{
		Name:     grid.PluginQuerySync,
		Version:  "1.0.0",
		Priority: 50,
		Enabled:  true,
	}
}

func (q *QuerySync) Install(pc *grid.PluginContext) error {
	engine := querysync.NewEngine(pc, q.loc, q.opts)
	q.mu.Lock()
	q.engine = engine
	q.mu.Unlock()

	pc.Helpers.OnResetFilters(engine.ResetQuery)
	return nil
}

func (q *QuerySync) Setup(pc *grid.PluginContext) error {
	if e := q.Engine(); e != nil {
		e.Open(pc.MountContext())
	}
	return nil
}

func (q *QuerySync) Uninstall(pc *grid.PluginContext) error {
	q.mu.Lock()
	engine := q.engine
	q.engine = nil
	q.mu.Unlock()

	pc.Helpers.OnResetFilters(nil)
	if engine != nil {
		engine.Close()
	}
	pc.Helpers.SetPluginState(grid.PluginQuerySync, nil)
	return nil
}

func (q *QuerySync) Deactivate(pc *grid.PluginContext) error {
	pc.Helpers.OnResetFilters(nil)
	return nil
}

func (q *QuerySync) Activate(pc *grid.PluginContext) error {
	if e := q.Engine(); e != nil {
		pc.Helpers.OnResetFilters(e.ResetQuery)
	}
	return nil
}

func (q *QuerySync) Hooks() map[string]grid.HookFunc {
	return map[string]grid.HookFunc{
		"reset": func(pc *grid.PluginContext, args ...any) (any, error) {
			resetEmptyData := false
			if len(args) > 0 {
				resetEmptyData, _ = args[0].(bool)
			}
			if e := q.Engine(); e != nil {
				e.ResetQuery(resetEmptyData)
			}
			return nil, nil
		},
	}
}

// Engine returns the running engine, or nil before install.
func (q *QuerySync) Engine() *querysync.Engine {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.engine
}

// Location returns the synchronized URL.
func (q *QuerySync) Location() *querysync.Location {
	return q.loc
}

package grid

// registry.go implements the plugin registry and lifecycle runner.
//
// The registry owns the single PluginContext for a table's lifetime.
// Lifecycle hooks run outside the registry lock so plugins may call back
// into the registry (Use, Capability) from any hook.

import (
	"cmp"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
)

type entry struct {
	plugin Plugin
	meta   Metadata
	status Status
	seq    int
}

// Registry holds a table's plugins keyed by name.
type Registry struct {
	pc *PluginContext

	mu      sync.RWMutex
	entries map[Name]*entry
	pending []Name
	seq     int
	started bool
	closed  bool
}

// NewRegistry creates a registry owning pc.
func NewRegistry(pc *PluginContext) *Registry {
	r := &Registry{
		pc:      pc,
		entries: make(map[Name]*entry),
	}
	pc.attach(r)
	return r
}

// Context returns the registry's plugin context.
func (r *Registry) Context() *PluginContext {
	return r.pc
}

// Register adds p. Registering a name that is already present is a silent
// no-op. A plugin that declares a conflict with a registered plugin (or is
// named as a conflict by one) is refused with ErrConflict. Install runs
// synchronously; setup is queued until Setup, or runs immediately once the
// registry has been set up.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return errors.New("plugin is nil")
	}
	meta := p.Metadata()
	if err := meta.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("register %s: registry closed", meta.Name)
	}
	if _, exists := r.entries[meta.Name]; exists {
		r.mu.Unlock()
		r.pc.Logger.Debug("plugin already registered, skipping", "plugin", meta.Name)
		return nil
	}
	if other, ok := r.conflictLocked(meta); ok {
		r.mu.Unlock()
		r.pc.Logger.Warn("plugin conflicts with registered plugin, skipping",
			"plugin", meta.Name,
			"conflict", other,
		)
		return fmt.Errorf("register %s: %w: %s", meta.Name, ErrConflict, other)
	}

	r.seq++
	e := &entry{plugin: p, meta: meta, status: StatusInstalled, seq: r.seq}
	r.entries[meta.Name] = e
	r.pending = append(r.pending, meta.Name)
	started := r.started
	r.mu.Unlock()

	if inst, ok := p.(Installer); ok {
		if err := r.safeCall(meta.Name, "install", func() error { return inst.Install(r.pc) }); err != nil {
			r.setStatus(meta.Name, StatusFailed)
		}
	}

	if started {
		r.Setup()
	}
	return nil
}

func (r *Registry) conflictLocked(meta Metadata) (Name, bool) {
	for _, c := range meta.Conflicts {
		if _, ok := r.entries[c]; ok {
			return c, true
		}
	}
	for name, e := range r.entries {
		if slices.Contains(e.meta.Conflicts, meta.Name) {
			return name, true
		}
	}
	return "", false
}

// Setup runs every queued setup hook in priority order. Plugins whose
// dependencies are not registered are marked failed and stay inert.
func (r *Registry) Setup() {
	r.mu.Lock()
	r.started = true
	queue := make([]*entry, 0, len(r.pending))
	for _, name := range r.pending {
		if e, ok := r.entries[name]; ok {
			queue = append(queue, e)
		}
	}
	r.pending = nil
	r.mu.Unlock()

	sortEntries(queue)

	for _, e := range queue {
		name := e.meta.Name
		if r.Status(name) == StatusFailed {
			continue
		}
		if missing := r.missingDependencies(e.meta); len(missing) > 0 {
			r.pc.Logger.Error("plugin dependency missing",
				"plugin", name,
				"missing", missing,
				"error", ErrMissingDependency,
			)
			r.setStatus(name, StatusFailed)
			continue
		}

		if s, ok := e.plugin.(SetupHook); ok {
			if err := r.safeCall(name, "setup", func() error { return s.Setup(r.pc) }); err != nil {
				r.setStatus(name, StatusFailed)
				continue
			}
		}

		if e.meta.Enabled {
			r.setStatus(name, StatusActive)
		} else {
			r.setStatus(name, StatusInactive)
		}
	}
}

func (r *Registry) missingDependencies(meta Metadata) []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []Name
	for _, dep := range meta.Dependencies {
		if _, ok := r.entries[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	return missing
}

// Unregister runs the plugin's uninstall hook and removes it.
func (r *Registry) Unregister(name Name) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unregister %s: %w", name, ErrPluginNotFound)
	}

	r.uninstall(e)

	r.mu.Lock()
	delete(r.entries, name)
	r.pending = slices.DeleteFunc(r.pending, func(n Name) bool { return n == name })
	r.mu.Unlock()
	return nil
}

func (r *Registry) uninstall(e *entry) {
	if u, ok := e.plugin.(Uninstaller); ok {
		_ = r.safeCall(e.meta.Name, "uninstall", func() error { return u.Uninstall(r.pc) })
	}
	r.setStatus(e.meta.Name, StatusUninstalled)
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name Name) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// Status returns the lifecycle status of name, or "" when unknown.
func (r *Registry) Status(name Name) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.status
	}
	return ""
}

func (r *Registry) setStatus(name Name, s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.status = s
	}
}

// Activate re-enables a deactivated plugin.
func (r *Registry) Activate(name Name) error {
	return r.toggle(name, true)
}

// Deactivate suspends a plugin's contribution without uninstalling it.
func (r *Registry) Deactivate(name Name) error {
	return r.toggle(name, false)
}

func (r *Registry) toggle(name Name, active bool) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	var status Status
	if ok {
		status = e.status
	}
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrPluginNotFound)
	}

	switch {
	case active && status == StatusInactive:
		if a, ok := e.plugin.(Activator); ok {
			if err := r.safeCall(name, "activate", func() error { return a.Activate(r.pc) }); err != nil {
				return err
			}
		}
		r.setStatus(name, StatusActive)
	case !active && status == StatusActive:
		if d, ok := e.plugin.(Deactivator); ok {
			if err := r.safeCall(name, "deactivate", func() error { return d.Deactivate(r.pc) }); err != nil {
				return err
			}
		}
		r.setStatus(name, StatusInactive)
	}
	return nil
}

// Update runs every active plugin's update hook in priority order.
func (r *Registry) Update() {
	for _, e := range r.activeEntries() {
		if u, ok := e.plugin.(Updater); ok {
			name := e.meta.Name
			_ = r.safeCall(name, "update", func() error { return u.Update(r.pc) })
		}
	}
}

// Plugins returns the active plugins, highest priority first, then in
// registration order.
func (r *Registry) Plugins() []Plugin {
	entries := r.activeEntries()
	out := make([]Plugin, len(entries))
	for i, e := range entries {
		out[i] = e.plugin
	}
	return out
}

// Names returns every registered name regardless of status, ordered like
// Plugins.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sortEntries(entries)
	names := make([]Name, len(entries))
	for i, e := range entries {
		names[i] = e.meta.Name
	}
	return names
}

func (r *Registry) activeEntries() []*entry {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.status == StatusActive {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()
	sortEntries(entries)
	return entries
}

func sortEntries(entries []*entry) {
	slices.SortStableFunc(entries, func(a, b *entry) int {
		if c := cmp.Compare(b.meta.Priority, a.meta.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// Use invokes a named hook of a named plugin. Only that plugin's method
// runs.
func (r *Registry) Use(name Name, method string, args ...any) (any, error) {
	p, err := r.active(name)
	if err != nil {
		return nil, err
	}
	hp, ok := p.(HookProvider)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", name, method, ErrHookNotFound)
	}
	fn, ok := hp.Hooks()[method]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%s.%s: %w", name, method, ErrHookNotFound)
	}

	var out any
	err = r.safeCall(name, method, func() error {
		var callErr error
		out, callErr = fn(r.pc, args...)
		return callErr
	})
	return out, err
}

// Render invokes a named render slot of a named plugin.
func (r *Registry) Render(name Name, slot string) (any, error) {
	p, err := r.active(name)
	if err != nil {
		return nil, err
	}
	rp, ok := p.(RenderProvider)
	if !ok {
		return nil, fmt.Errorf("%s render %s: %w", name, slot, ErrHookNotFound)
	}
	fn, ok := rp.Renderers()[slot]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%s render %s: %w", name, slot, ErrHookNotFound)
	}

	var out any
	err = r.safeCall(name, "render:"+slot, func() error {
		out = fn(r.pc)
		return nil
	})
	return out, err
}

func (r *Registry) active(name Name) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrPluginNotFound)
	}
	if e.status != StatusActive {
		return nil, fmt.Errorf("%s (%s): %w", name, e.status, ErrPluginInactive)
	}
	return e.plugin, nil
}

// Close uninstalls every plugin, lowest priority first, and only then
// clears the map. The registry cannot be reused afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	sortEntries(entries)
	slices.Reverse(entries)
	for _, e := range entries {
		r.uninstall(e)
	}

	r.mu.Lock()
	r.entries = make(map[Name]*entry)
	r.pending = nil
	r.mu.Unlock()
}

// Capability returns the named plugin as T when it is active and
// implements T.
func Capability[T any](r *Registry, name Name) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	p, err := r.active(name)
	if err != nil {
		return zero, false
	}
	t, ok := p.(T)
	return t, ok
}

// CapabilitiesOf returns every active plugin implementing T in priority
// order.
func CapabilitiesOf[T any](r *Registry) []T {
	if r == nil {
		return nil
	}
	var out []T
	for _, p := range r.Plugins() {
		if t, ok := p.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// safeCall runs fn, converting errors and panics into a logged
// *PluginError.
func (r *Registry) safeCall(name Name, hook string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PluginError{
				Plugin: name,
				Hook:   hook,
				Err:    fmt.Errorf("panic: %v", rec),
				Stack:  string(debug.Stack()),
			}
		}
		if err != nil {
			var pe *PluginError
			if !errors.As(err, &pe) {
				err = &PluginError{Plugin: name, Hook: hook, Err: err}
				pe = err.(*PluginError)
			}
			r.pc.Logger.Error("plugin hook failed",
				"plugin", name,
				"hook", hook,
				"error", pe.Err,
				"stack", pe.Stack,
			)
		}
	}()
	return fn()
}

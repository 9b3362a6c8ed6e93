package grid

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubPlugin implements every optional interface through function fields.
type stubPlugin struct {
	meta Metadata

	install   func(*PluginContext) error
	setup     func(*PluginContext) error
	uninstall func(*PluginContext) error
	hooks     map[string]HookFunc

	calls []string
}

func newStub(name Name, priority int) *stubPlugin {
	return &stubPlugin{meta: Metadata{Name: name, Version: "1.0.0", Priority: priority, Enabled: true}}
}

func (s *stubPlugin) Metadata() Metadata { return s.meta }

func (s *stubPlugin) Install(pc *PluginContext) error {
	s.calls = append(s.calls, "install")
	if s.install != nil {
		return s.install(pc)
	}
	return nil
}

func (s *stubPlugin) Setup(pc *PluginContext) error {
	s.calls = append(s.calls, "setup")
	if s.setup != nil {
		return s.setup(pc)
	}
	return nil
}

func (s *stubPlugin) Uninstall(pc *PluginContext) error {
	s.calls = append(s.calls, "uninstall")
	if s.uninstall != nil {
		return s.uninstall(pc)
	}
	return nil
}

func (s *stubPlugin) Hooks() map[string]HookFunc { return s.hooks }

func newTestRegistry() *Registry {
	return NewRegistry(NewPluginContext(Props{TableID: "t1"}, discardLogger()))
}

func TestRegistry_DuplicateKeepsFirst(t *testing.T) {
	r := newTestRegistry()
	first := newStub("dup", 1)
	second := newStub("dup", 5)

	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))
	r.Setup()

	p, ok := r.Get("dup")
	require.True(t, ok)
	assert.Same(t, first, p)
	assert.Empty(t, second.calls)
}

func TestRegistry_InvalidMetadata(t *testing.T) {
	r := newTestRegistry()

	err := r.Register(&stubPlugin{meta: Metadata{Name: "bad", Version: "v1"}})
	require.Error(t, err)
	err = r.Register(&stubPlugin{meta: Metadata{Version: "1.0.0"}})
	require.Error(t, err)
	assert.Empty(t, r.Names())
}

func TestRegistry_Conflict(t *testing.T) {
	r := newTestRegistry()
	a := newStub("a", 1)
	b := newStub("b", 1)
	b.meta.Conflicts = []Name{"a"}

	require.NoError(t, r.Register(a))
	err := r.Register(b)
	require.ErrorIs(t, err, ErrConflict)
	_, ok := r.Get("b")
	assert.False(t, ok)
}

func TestRegistry_SetupOrderAndStatus(t *testing.T) {
	r := newTestRegistry()
	var order []Name
	for _, tc := range []struct {
		name     Name
		priority int
	}{{"low", 1}, {"high", 10}, {"mid", 5}} {
		p := newStub(tc.name, tc.priority)
		name := tc.name
		p.setup = func(*PluginContext) error {
			order = append(order, name)
			return nil
		}
		require.NoError(t, r.Register(p))
	}

	assert.Equal(t, StatusInstalled, r.Status("high"))
	assert.Empty(t, order, "setup waits for Setup")

	r.Setup()
	assert.Equal(t, []Name{"high", "mid", "low"}, order)
	assert.Equal(t, StatusActive, r.Status("mid"))

	names := make([]Name, 0, 3)
	for _, p := range r.Plugins() {
		names = append(names, p.Metadata().Name)
	}
	assert.Equal(t, []Name{"high", "mid", "low"}, names)

	late := newStub("late", 0)
	require.NoError(t, r.Register(late))
	assert.Equal(t, []string{"install", "setup"}, late.calls)
}

func TestRegistry_FailureIsolation(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(NewPluginContext(Props{TableID: "t1"}, slog.New(slog.NewTextHandler(&buf, nil))))

	bad := newStub("bad", 10)
	bad.setup = func(*PluginContext) error { panic("setup exploded") }
	good := newStub("good", 1)

	require.NoError(t, r.Register(bad))
	require.NoError(t, r.Register(good))
	r.Setup()

	assert.Equal(t, StatusFailed, r.Status("bad"))
	assert.Equal(t, StatusActive, r.Status("good"))
	assert.Contains(t, buf.String(), "plugin hook failed")
	assert.Contains(t, buf.String(), "setup exploded")
}

func TestRegistry_MissingDependency(t *testing.T) {
	r := newTestRegistry()
	p := newStub("child", 1)
	p.meta.Dependencies = []Name{"parent"}

	require.NoError(t, r.Register(p))
	r.Setup()

	assert.Equal(t, StatusFailed, r.Status("child"))
	assert.NotContains(t, p.calls, "setup")
}

func TestRegistry_DisabledStartsInactive(t *testing.T) {
	r := newTestRegistry()
	p := newStub("off", 1)
	p.meta.Enabled = false
	p.hooks = map[string]HookFunc{"ping": func(*PluginContext, ...any) (any, error) { return "pong", nil }}

	require.NoError(t, r.Register(p))
	r.Setup()
	assert.Equal(t, StatusInactive, r.Status("off"))

	_, err := r.Use("off", "ping")
	require.ErrorIs(t, err, ErrPluginInactive)

	require.NoError(t, r.Activate("off"))
	out, err := r.Use("off", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)

	require.NoError(t, r.Deactivate("off"))
	assert.Equal(t, StatusInactive, r.Status("off"))
}

func TestRegistry_Use(t *testing.T) {
	r := newTestRegistry()
	a := newStub("a", 1)
	b := newStub("b", 1)
	var bCalled bool
	a.hooks = map[string]HookFunc{
		"sum": func(_ *PluginContext, args ...any) (any, error) {
			return args[0].(int) + args[1].(int), nil
		},
		"fail": func(*PluginContext, ...any) (any, error) { return nil, errors.New("nope") },
	}
	b.hooks = map[string]HookFunc{
		"sum": func(*PluginContext, ...any) (any, error) { bCalled = true; return nil, nil },
	}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	r.Setup()

	out, err := r.Use("a", "sum", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, out)
	assert.False(t, bCalled)

	_, err = r.Use("a", "missing")
	require.ErrorIs(t, err, ErrHookNotFound)

	_, err = r.Use("nobody", "sum")
	require.ErrorIs(t, err, ErrPluginNotFound)

	_, err = r.Use("a", "fail")
	var pe *PluginError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, Name("a"), pe.Plugin)
	assert.Equal(t, "fail", pe.Hook)
}

func TestRegistry_CloseUninstallsInReverse(t *testing.T) {
	r := newTestRegistry()
	var order []Name
	for _, tc := range []struct {
		name     Name
		priority int
	}{{"first", 10}, {"second", 1}} {
		p := newStub(tc.name, tc.priority)
		name := tc.name
		p.uninstall = func(*PluginContext) error {
			order = append(order, name)
			return nil
		}
		require.NoError(t, r.Register(p))
	}
	r.Setup()
	r.Close()

	assert.Equal(t, []Name{"second", "first"}, order)
	assert.Empty(t, r.Names())
	require.Error(t, r.Register(newStub("after", 1)))
}

func TestRegistry_Unregister(t *testing.T) {
	r := newTestRegistry()
	p := newStub("gone", 1)
	require.NoError(t, r.Register(p))
	r.Setup()

	require.NoError(t, r.Unregister("gone"))
	assert.Contains(t, p.calls, "uninstall")
	_, ok := r.Get("gone")
	assert.False(t, ok)
	require.ErrorIs(t, r.Unregister("gone"), ErrPluginNotFound)
}

func TestCapability(t *testing.T) {
	r := newTestRegistry()
	p := newStub(PluginColumns, 1)
	require.NoError(t, r.Register(p))

	_, ok := Capability[HookProvider](r, PluginColumns)
	assert.False(t, ok, "inactive before setup")

	r.Setup()
	_, ok = Capability[HookProvider](r, PluginColumns)
	assert.True(t, ok)
	_, ok = Capability[ColumnsProvider](r, PluginColumns)
	assert.False(t, ok, "stub does not implement Columns")

	assert.Len(t, CapabilitiesOf[SetupHook](r), 1)
	_, ok = Capability[HookProvider](nil, PluginColumns)
	assert.False(t, ok)
}

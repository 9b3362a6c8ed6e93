package querysync

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/opsgrid/internal/activekey"
	"github.com/JonMunkholm/opsgrid/internal/grid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, rawURL string, props grid.Props, opts Options) (*Engine, *grid.PluginContext) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)

	if props.TableID == "" {
		props.TableID = "orders"
	}
	pc := grid.NewPluginContext(props, discardLogger())
	e := NewEngine(pc, NewLocation(u), opts)
	t.Cleanup(e.Close)
	return e, pc
}

func waitReady(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("engine never became ready")
	}
}

func TestEngine_URLWinsOverInitQuery(t *testing.T) {
	e, pc := newTestEngine(t, "/screens/orders?status=open&tab=2&_action=sort",
		grid.Props{
			SyncQueryOnSearchParams: true,
			InitQuery:               grid.Query{"status": "all", "region": "emea"},
		},
		Options{Fields: []string{"status", "region", "name"}},
	)

	e.Open(context.Background())
	waitReady(t, e)

	assert.Equal(t, PhaseSynced, e.Phase())
	assert.Equal(t, grid.Query{"status": "open", "region": "emea"}, pc.State().Query)

	values := e.Location().Values()
	assert.Equal(t, "2", values.Get("tab"), "unknown params are untouched")
	assert.Equal(t, "sort", values.Get("_action"))
	assert.Equal(t, "emea", values.Get("region"))
}

func TestEngine_MirrorsQueryChanges(t *testing.T) {
	e, pc := newTestEngine(t, "/orders?tab=2",
		grid.Props{SyncQueryOnSearchParams: true},
		Options{},
	)
	e.Open(context.Background())
	waitReady(t, e)

	pc.Helpers.SetQuery(grid.Query{"name": "acme", "status": []string{"a", "b"}})
	values := e.Location().Values()
	assert.Equal(t, "acme", values.Get("name"))
	assert.Equal(t, []string{"a", "b"}, values["status[]"])
	assert.Equal(t, "2", values.Get("tab"))

	pc.Helpers.SetQuery(grid.Query{"name": nil})
	values = e.Location().Values()
	assert.False(t, values.Has("name"))
	assert.True(t, values.Has("status[]"))
}

func TestEngine_SkipsRedundantWrites(t *testing.T) {
	e, pc := newTestEngine(t, "/orders", grid.Props{SyncQueryOnSearchParams: true}, Options{})
	e.Open(context.Background())
	waitReady(t, e)

	pc.Helpers.SetQuery(grid.Query{"name": "acme"})
	writes := e.Location().Writes()

	pc.Helpers.SetQuery(grid.Query{"name": "acme"})
	pc.Helpers.SetSelectedRowKeys([]string{"1"})
	assert.Equal(t, writes, e.Location().Writes())
}

func TestEngine_EncodeFailureSkipsWrite(t *testing.T) {
	e, pc := newTestEngine(t, "/orders?name=x", grid.Props{SyncQueryOnSearchParams: true}, Options{})
	e.Open(context.Background())
	waitReady(t, e)

	writes := e.Location().Writes()
	pc.Helpers.SetQuery(grid.Query{"bad": struct{}{}})

	assert.Equal(t, writes, e.Location().Writes())
	assert.Equal(t, "x", e.Location().Values().Get("name"))
}

func TestEngine_Disabled(t *testing.T) {
	e, pc := newTestEngine(t, "/orders?name=x", grid.Props{}, Options{})
	e.Open(context.Background())
	waitReady(t, e)

	pc.Helpers.SetQuery(grid.Query{"status": "open"})

	assert.Equal(t, 0, e.Location().Writes())
	assert.NotContains(t, pc.State().Query, "name")
}

func TestEngine_ResetQuery(t *testing.T) {
	tests := []struct {
		name           string
		resetEmptyData bool
		wantQuery      grid.Query
		wantURL        string
	}{
		{"empty", true, grid.Query{}, "tab=2"},
		{"init defaults", false, grid.Query{"status": "all"}, "status=all&tab=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, pc := newTestEngine(t, "/orders?name=acme&tab=2",
				grid.Props{SyncQueryOnSearchParams: true, InitQuery: grid.Query{"status": "all"}},
				Options{Fields: []string{"name", "status"}},
			)
			e.Open(context.Background())
			waitReady(t, e)

			pc.Helpers.SetFilters(grid.Filters{"status": {"open"}})
			pc.Helpers.SetCurrent(4)
			seq := pc.State().ReloadSeq

			e.ResetQuery(tt.resetEmptyData)

			st := pc.State()
			assert.Equal(t, tt.wantQuery, st.Query)
			assert.Empty(t, st.Filters)
			assert.Equal(t, 1, st.Pagination.Current)
			assert.Greater(t, st.ReloadSeq, seq)
			assert.Equal(t, tt.wantURL, e.Location().Values().Encode())
		})
	}
}

func TestEngine_SyncPagination(t *testing.T) {
	e, pc := newTestEngine(t, "/orders?current=3&pageSize=50",
		grid.Props{SyncQueryOnSearchParams: true},
		Options{SyncPagination: true},
	)
	e.Open(context.Background())
	waitReady(t, e)

	st := pc.State()
	assert.Equal(t, 3, st.Pagination.Current)
	assert.Equal(t, 50, st.Pagination.PageSize)
	assert.Empty(t, st.Query, "pagination params stay out of the query")

	pc.Helpers.SetCurrent(1)
	pc.Helpers.SetPageSize(grid.DefaultPageSize)
	assert.Empty(t, e.Location().Values())
}

func TestEngine_ActiveKeyDelaysRead(t *testing.T) {
	broker := activekey.NewBroker()
	broker.Publish("orders-tabs", "open")

	e, pc := newTestEngine(t, "/orders?name=acme",
		grid.Props{
			SyncQueryOnSearchParams: true,
			UseActiveKeyHook:        true,
			ActiveKeyTopic:          "orders-tabs",
		},
		Options{ActiveKeyDelay: 30 * time.Millisecond, Broker: broker},
	)

	e.Open(context.Background())
	assert.Equal(t, PhaseInitializing, e.Phase())
	assert.Equal(t, "open", e.ActiveKey())
	assert.NotContains(t, pc.State().Query, "name")

	waitReady(t, e)
	assert.Equal(t, PhaseSynced, e.Phase())
	assert.Equal(t, "acme", pc.State().Query["name"])

	broker.Publish("orders-tabs", "closed")
	require.Eventually(t, func() bool { return e.ActiveKey() == "closed" }, time.Second, 5*time.Millisecond)

	status, ok := pc.State().PluginState(grid.PluginQuerySync)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		v, _ := pc.State().PluginState(grid.PluginQuerySync)
		return v.(Status).ActiveKey == "closed"
	}, time.Second, 5*time.Millisecond)
	assert.IsType(t, Status{}, status)
}

func TestEngine_CloseStopsPendingRead(t *testing.T) {
	broker := activekey.NewBroker()
	e, pc := newTestEngine(t, "/orders?name=acme",
		grid.Props{SyncQueryOnSearchParams: true, UseActiveKeyHook: true},
		Options{ActiveKeyDelay: 20 * time.Millisecond, Broker: broker},
	)

	e.Open(context.Background())
	before := pc.Store.SubscriberCount()
	e.Close()

	waitReady(t, e)
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, PhaseClosed, e.Phase())
	assert.NotContains(t, pc.State().Query, "name")
	assert.Equal(t, before-1, pc.Store.SubscriberCount())
	assert.Equal(t, 0, broker.SubscriberCount("orders"))

	pc.Helpers.SetQuery(grid.Query{"x": "y"})
	assert.Equal(t, 0, e.Location().Writes())
}

func TestEngine_ContextCancelAbandonsRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e, pc := newTestEngine(t, "/orders?name=acme",
		grid.Props{SyncQueryOnSearchParams: true, UseActiveKeyHook: true},
		Options{ActiveKeyDelay: 30 * time.Millisecond, Broker: activekey.NewBroker()},
	)

	e.Open(ctx)
	cancel()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, PhaseInitializing, e.Phase())
	assert.NotContains(t, pc.State().Query, "name")
}

func TestEngine_DelayedReadWritesBeforeReady(t *testing.T) {
	e, _ := newTestEngine(t, "/orders?name=acme",
		grid.Props{
			SyncQueryOnSearchParams: true,
			UseActiveKeyHook:        true,
			InitQuery:               grid.Query{"region": "emea"},
		},
		Options{ActiveKeyDelay: 5 * time.Millisecond, Broker: activekey.NewBroker()},
	)

	e.Open(context.Background())
	waitReady(t, e)

	// No waiting: the initial write is visible as soon as Ready closes.
	assert.Equal(t, 1, e.Location().Writes())
	assert.Equal(t, "emea", e.Location().Values().Get("region"))
	assert.Equal(t, "acme", e.Location().Values().Get("name"))
}

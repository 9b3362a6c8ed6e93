package grid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DispatchNotifiesInOrder(t *testing.T) {
	s := NewStore(State{Query: Query{}})

	var order []string
	s.Subscribe(func(State, Action) { order = append(order, "a") })
	s.Subscribe(func(State, Action) { order = append(order, "b") })

	s.Dispatch(SetQuery{Query: Query{"name": "x"}})
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestStore_SetQueryMergesAndDeletes(t *testing.T) {
	s := NewStore(State{Query: Query{"a": "1", "b": "2"}})

	s.Dispatch(SetQuery{Query: Query{"b": nil, "c": "3"}})
	assert.Equal(t, Query{"a": "1", "c": "3"}, s.State().Query)

	s.Dispatch(SetQuery{Query: Query{"z": "9"}, Replace: true})
	assert.Equal(t, Query{"z": "9"}, s.State().Query)
}

func TestStore_StateIsACopy(t *testing.T) {
	s := NewStore(State{Query: Query{"tags": []string{"a"}}})

	st := s.State()
	st.Query["tags"].([]string)[0] = "mutated"
	st.Query["new"] = "x"

	assert.Equal(t, Query{"tags": []string{"a"}}, s.State().Query)
}

func TestStore_ReentrantDispatch(t *testing.T) {
	s := NewStore(State{})

	s.Subscribe(func(st State, a Action) {
		if _, ok := a.(SetFilters); ok {
			cur := 1
			s.Dispatch(SetPagination{Current: &cur})
		}
	})

	five := 5
	s.Dispatch(SetPagination{Current: &five})
	s.Dispatch(SetFilters{Filters: Filters{"status": {"open"}}})

	assert.Equal(t, 1, s.State().Pagination.Current)
}

func TestStore_UnsubscribeIsIdempotent(t *testing.T) {
	s := NewStore(State{})
	calls := 0
	unsub := s.Subscribe(func(State, Action) { calls++ })

	s.Dispatch(RequestReload{})
	unsub()
	unsub()
	s.Dispatch(RequestReload{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.SubscriberCount())
	assert.Equal(t, uint64(2), s.State().ReloadSeq)
}

func TestStore_UnsubscribeDuringNotify(t *testing.T) {
	s := NewStore(State{})
	var second func()
	calls := 0
	s.Subscribe(func(State, Action) { second() })
	second = s.Subscribe(func(State, Action) { calls++ })

	s.Dispatch(RequestReload{})
	assert.Equal(t, 0, calls)
}

func TestStore_Patch(t *testing.T) {
	s := NewStore(State{Query: Query{"a": "1"}, Filters: Filters{"x": {1}}})
	s.Dispatch(Patch{Pagination: &Pagination{Current: 2, PageSize: 20}})

	st := s.State()
	assert.Equal(t, Query{"a": "1"}, st.Query)
	assert.Equal(t, Filters{"x": {1}}, st.Filters)
	assert.Equal(t, 20, st.Pagination.PageSize)
}

func TestStore_PluginState(t *testing.T) {
	s := NewStore(State{})
	s.Dispatch(SetPluginState{Plugin: PluginSelection, Value: "on"})

	v, ok := s.State().PluginState(PluginSelection)
	require.True(t, ok)
	assert.Equal(t, "on", v)

	s.Dispatch(SetPluginState{Plugin: PluginSelection})
	_, ok = s.State().PluginState(PluginSelection)
	assert.False(t, ok)
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	s := NewStore(State{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispatch(RequestReload{})
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), s.State().ReloadSeq)
}

func TestHelpers_OnReloadRemovesSink(t *testing.T) {
	pc := NewPluginContext(Props{TableID: "orders"}, nil)
	h := pc.Helpers

	var got []string
	first := h.OnReload(func() { got = append(got, "first") })
	h.OnReload(func() { got = append(got, "second") })
	require.Equal(t, 2, h.ReloadSinkCount())

	first()
	first()
	assert.Equal(t, 1, h.ReloadSinkCount())

	h.Reload()
	assert.Equal(t, []string{"second"}, got)

	for range 50 {
		h.OnReload(func() {})()
	}
	assert.Equal(t, 1, h.ReloadSinkCount())
}

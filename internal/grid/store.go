package grid

// store.go implements the single-writer table state.
//
// Every mutation is a typed Action applied under the store mutex. After the
// action is applied the lock is released and subscribers are notified
// synchronously, in registration order, before Dispatch returns. A
// subscriber may dispatch again; the nested notification runs inline.

import (
	"slices"
	"sync"
)

// Action is a typed state mutation.
type Action interface {
	apply(*State)
}

// SetQuery merges Query into the current query, or replaces it wholesale
// when Replace is set. Keys mapped to nil are removed on merge.
type SetQuery struct {
	Query   Query
	Replace bool
}

func (a SetQuery) apply(s *State) {
	if a.Replace || s.Query == nil {
		s.Query = Query{}
	}
	for k, v := range a.Query {
		if v == nil {
			delete(s.Query, k)
			continue
		}
		s.Query[k] = cloneValue(v)
	}
}

// SetFilters replaces the filters map.
type SetFilters struct {
	Filters Filters
}

func (a SetFilters) apply(s *State) {
	s.Filters = a.Filters.Clone()
}

// SetPagination updates the non-nil pagination fields.
type SetPagination struct {
	Current  *int
	PageSize *int
	Total    *int
}

func (a SetPagination) apply(s *State) {
	if a.Current != nil {
		s.Pagination.Current = *a.Current
	}
	if a.PageSize != nil {
		s.Pagination.PageSize = *a.PageSize
	}
	if a.Total != nil {
		s.Pagination.Total = *a.Total
	}
}

// SetSort replaces the sort specification.
type SetSort struct {
	Sort []SortSpec
}

func (a SetSort) apply(s *State) {
	s.Sort = slices.Clone(a.Sort)
}

// SetSelection replaces the selected row keys.
type SetSelection struct {
	Keys []string
}

func (a SetSelection) apply(s *State) {
	s.SelectedRowKeys = slices.Clone(a.Keys)
}

// SetPluginState stores the sub-state owned by one plugin. A nil Value
// removes it.
type SetPluginState struct {
	Plugin Name
	Value  any
}

func (a SetPluginState) apply(s *State) {
	if s.Plugins == nil {
		s.Plugins = map[string]any{}
	}
	if a.Value == nil {
		delete(s.Plugins, string(a.Plugin))
		return
	}
	s.Plugins[string(a.Plugin)] = a.Value
}

// Patch shallow-merges the non-nil fields into the state.
type Patch struct {
	Query           Query
	Filters         Filters
	Sort            []SortSpec
	Pagination      *Pagination
	SelectedRowKeys []string
}

func (a Patch) apply(s *State) {
	if a.Query != nil {
		s.Query = a.Query.Clone()
	}
	if a.Filters != nil {
		s.Filters = a.Filters.Clone()
	}
	if a.Sort != nil {
		s.Sort = slices.Clone(a.Sort)
	}
	if a.Pagination != nil {
		s.Pagination = *a.Pagination
	}
	if a.SelectedRowKeys != nil {
		s.SelectedRowKeys = slices.Clone(a.SelectedRowKeys)
	}
}

// RequestReload bumps the reload sequence so data layers know to refetch.
type RequestReload struct{}

func (RequestReload) apply(s *State) {
	s.ReloadSeq++
}

// Listener receives the state after an action was applied.
type Listener func(state State, action Action)

type subscription struct {
	id uint64
	fn Listener
}

// Store owns a table's State. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	state  State
	subs   []subscription
	nextID uint64
}

// NewStore creates a store holding a copy of initial.
func NewStore(initial State) *Store {
	st := initial.Clone()
	if st.Plugins == nil {
		st.Plugins = map[string]any{}
	}
	return &Store{state: st}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dispatch applies a and notifies subscribers before returning.
func (s *Store) Dispatch(a Action) {
	if a == nil {
		return
	}

	s.mu.Lock()
	a.apply(&s.state)
	snapshot := s.state.Clone()
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		if !s.subscribed(sub.id) {
			continue
		}
		sub.fn(snapshot.Clone(), a)
	}
}

// Subscribe registers fn and returns a function that removes it. Calling
// the returned function more than once is harmless.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool {
				return sub.id == id
			})
		})
	}
}

// SubscriberCount returns the number of live subscriptions.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) subscribed(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.subs, func(sub subscription) bool {
		return sub.id == id
	})
}

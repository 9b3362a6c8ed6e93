package querysync

import (
	"net/url"
	"sync"
)

// Location is the URL a table synchronizes with: the browser location for
// the request being served. Writes replace the query string in place, the
// equivalent of history.replaceState.
type Location struct {
	mu     sync.RWMutex
	path   string
	values url.Values
	writes int
}

// NewLocation copies u's path and query.
func NewLocation(u *url.URL) *Location {
	loc := &Location{values: url.Values{}}
	if u != nil {
		loc.path = u.Path
		loc.values = u.Query()
	}
	return loc
}

// Values returns a copy of the current query parameters.
func (l *Location) Values() url.Values {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneValues(l.values)
}

// Replace swaps in new query parameters.
func (l *Location) Replace(v url.Values) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = cloneValues(v)
	l.writes++
}

// Writes counts Replace calls.
func (l *Location) Writes() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.writes
}

// String renders path?query with sorted keys.
func (l *Location) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.values) == 0 {
		return l.path
	}
	return l.path + "?" + l.values.Encode()
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

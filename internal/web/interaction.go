package web

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JonMunkholm/opsgrid/internal/grid"
	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
)

// Interaction parameters. They ride on the screen URL for one request and
// never reach the synchronized location.
const (
	paramAction = "_action"
	paramField  = "_field"
	paramOrder  = "_order"
	paramPage   = "_page"
	paramSize   = "_size"
	paramEmpty  = "_empty"

	filterPrefix = "f."
	searchPrefix = "q."

	maxPageSize = 500
)

const (
	actionSort     = "sort"
	actionPaginate = "paginate"
	actionFilter   = "filter"
	actionSearch   = "search"
	actionReset    = "reset"
)

// interaction is one parsed grid interaction.
type interaction struct {
	action string

	sorter grid.Sorter
	page   int
	size   int

	// filters holds column filters (f.<field>), search holds filter panel
	// values (q.<field>).
	filters map[string]any
	search  map[string]any

	resetEmptyData bool
}

func parseInteraction(values url.Values) (interaction, error) {
	in := interaction{action: values.Get(paramAction)}

	switch in.action {
	case "":
		return in, nil

	case actionSort:
		order := grid.SortOrder(values.Get(paramOrder))
		switch order {
		case grid.SortAscend, grid.SortDescend, grid.SortNone:
		default:
			return in, fmt.Errorf("%w: sort order %q", errBadRequest, order)
		}
		field := values.Get(paramField)
		if field == "" {
			return in, fmt.Errorf("%w: sort needs %s", errBadRequest, paramField)
		}
		in.sorter = grid.Sorter{Field: field, Order: order}

	case actionPaginate:
		var err error
		if in.page, err = intParam(values, paramPage); err != nil {
			return in, err
		}
		if in.size, err = intParam(values, paramSize); err != nil {
			return in, err
		}
		if in.size > maxPageSize {
			return in, fmt.Errorf("%w: %s above %d", errBadRequest, paramSize, maxPageSize)
		}

	case actionFilter:
		in.filters = map[string]any{}
		for name, vals := range values {
			field, ok := strings.CutPrefix(name, filterPrefix)
			if !ok || field == "" {
				continue
			}
			in.filters[field] = splitList(vals)
		}

	case actionSearch:
		in.search = map[string]any{}
		for name, vals := range values {
			field, ok := strings.CutPrefix(name, searchPrefix)
			if !ok || field == "" || len(vals) == 0 {
				continue
			}
			if len(vals) == 1 {
				in.search[field] = vals[0]
			} else {
				in.search[field] = append([]string(nil), vals...)
			}
		}

	case actionReset:
		in.resetEmptyData, _ = strconv.ParseBool(values.Get(paramEmpty))

	default:
		return in, fmt.Errorf("%w: unknown action %q", errBadRequest, in.action)
	}
	return in, nil
}

// intParam reads a non-negative integer; absent means 0.
func intParam(values url.Values, name string) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", errBadRequest, name, raw)
	}
	return n, nil
}

// splitList turns a comma separated filter input into its values.
func splitList(vals []string) []any {
	out := []any{}
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// stateLocation is the request URL without interaction parameters.
func stateLocation(u *url.URL) *querysync.Location {
	values := u.Query()
	for name := range values {
		if querysync.IsInteractionParam(name) {
			values.Del(name)
		}
	}
	return querysync.NewLocation(&url.URL{Path: u.Path, RawQuery: values.Encode()})
}

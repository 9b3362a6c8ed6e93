package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sortStub struct {
	*stubPlugin
	got SorterInfo
	err error
}

func (s *sortStub) OnSorterChange(_ *PluginContext, sorter SorterInfo) error {
	s.got = sorter
	return s.err
}

type pageStub struct {
	*stubPlugin
	pages []PaginationInfo
	sizes []int
}

func (p *pageStub) OnPaginationChange(_ *PluginContext, info PaginationInfo) error {
	p.pages = append(p.pages, info)
	return nil
}

func (p *pageStub) OnPageSizeChange(_ *PluginContext, size int) error {
	p.sizes = append(p.sizes, size)
	return nil
}

type filterStub struct {
	*stubPlugin
	got Filters
}

func (f *filterStub) OnFiltersChange(_ *PluginContext, filters Filters) error {
	f.got = filters
	return nil
}

func TestOnChange_Paginate(t *testing.T) {
	r := newTestRegistry()
	pager := &pageStub{stubPlugin: newStub(PluginPagination, 1)}
	widths := &pageStub{stubPlugin: newStub(PluginColumnWidth, 1)}
	require.NoError(t, r.Register(pager))
	require.NoError(t, r.Register(widths))
	r.Setup()

	pc := r.Context()
	pc.Helpers.SetFilters(Filters{"status": {"open"}})
	seq := pc.State().ReloadSeq

	require.NoError(t, OnChange(r, PaginationInfo{Current: 3, PageSize: 50}, nil, nil, ChangeExtra{Action: ActionPaginate}))

	st := pc.State()
	assert.Equal(t, 3, st.Pagination.Current)
	assert.Equal(t, 50, st.Pagination.PageSize)
	assert.Equal(t, Filters{"status": {"open"}}, st.Filters)
	assert.Equal(t, seq+1, st.ReloadSeq)
	assert.Equal(t, []PaginationInfo{{Current: 3, PageSize: 50}}, pager.pages)
	assert.Equal(t, []int{50}, widths.sizes)
	assert.Empty(t, pager.sizes, "page size observer is the column-width plugin")
}

func TestOnChange_FilterResetsPage(t *testing.T) {
	r := newTestRegistry()
	f := &filterStub{stubPlugin: newStub(PluginFilter, 1)}
	require.NoError(t, r.Register(f))
	r.Setup()

	pc := r.Context()
	pc.Helpers.SetCurrent(7)

	require.NoError(t, OnChange(r, PaginationInfo{}, nil,
		map[string]any{"status": []string{"open"}, "n": []int{1, 2}, "drop": "scalar", "nil": nil},
		ChangeExtra{Action: ActionFilter}))

	want := Filters{"status": {"open"}, "n": {1, 2}}
	assert.Equal(t, 1, pc.State().Pagination.Current)
	assert.Equal(t, want, pc.State().Filters)
	assert.Equal(t, want, f.got)
}

func TestOnChange_FilterWithoutPluginStillResets(t *testing.T) {
	r := newTestRegistry()
	pc := r.Context()
	pc.Helpers.SetCurrent(2)

	require.NoError(t, OnChange(r, PaginationInfo{}, nil, map[string]any{}, ChangeExtra{Action: ActionFilter}))
	assert.Equal(t, 1, pc.State().Pagination.Current)
}

func TestOnChange_SortErrorIsReturnedAndReloads(t *testing.T) {
	r := newTestRegistry()
	s := &sortStub{stubPlugin: newStub(PluginSorter, 1), err: errors.New("unsortable")}
	require.NoError(t, r.Register(s))
	r.Setup()
	seq := r.Context().State().ReloadSeq

	sorter := SorterInfo{{Field: "amount", Order: SortAscend}}
	err := OnChange(r, PaginationInfo{}, sorter, nil, ChangeExtra{Action: ActionSort})

	var pe *PluginError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PluginSorter, pe.Plugin)
	assert.Equal(t, sorter, s.got)
	assert.Equal(t, seq+1, r.Context().State().ReloadSeq)
}

func TestOnChange_UnknownActionIsNoop(t *testing.T) {
	r := newTestRegistry()
	before := r.Context().State()

	require.NoError(t, OnChange(r, PaginationInfo{Current: 9}, nil, nil, ChangeExtra{Action: "drag"}))
	assert.Equal(t, before, r.Context().State())
}

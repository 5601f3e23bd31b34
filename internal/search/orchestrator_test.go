package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"grantify-client/internal/config"
	"grantify-client/internal/interfaces/mock"
	"grantify-client/internal/models"
)

const (
	testDebounce = 300 * time.Millisecond
	testPageSize = 6
)

type searchReply struct {
	result *models.SearchResult
	err    error
}

type pendingSearch struct {
	params url.Values
	reply  chan searchReply
}

func (p pendingSearch) respond(result *models.SearchResult) {
	p.reply <- searchReply{result: result}
}

func (p pendingSearch) fail(err error) {
	p.reply <- searchReply{err: err}
}

// fakeSearcher hands every call to the test, which answers it explicitly
type fakeSearcher struct {
	calls chan pendingSearch
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{calls: make(chan pendingSearch, 16)}
}

func (f *fakeSearcher) Search(ctx context.Context, params url.Values) (*models.SearchResult, error) {
	p := pendingSearch{params: params, reply: make(chan searchReply, 1)}
	f.calls <- p
	r := <-p.reply
	return r.result, r.err
}

func (f *fakeSearcher) next(t *testing.T) pendingSearch {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(time.Second):
		t.Fatal("expected a search request")
		return pendingSearch{}
	}
}

func (f *fakeSearcher) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case p := <-f.calls:
		t.Fatalf("unexpected search request: %s", p.params.Encode())
	case <-time.After(50 * time.Millisecond):
	}
}

func grants(prefix string, n int) []models.Grant {
	items := make([]models.Grant, n)
	for i := range items {
		items[i] = models.Grant{ID: fmt.Sprintf("%s-%d", prefix, i+1), Title: fmt.Sprintf("Grant %s %d", prefix, i+1)}
	}
	return items
}

func newTestOrchestrator(t *testing.T, searcher *fakeSearcher) (*Orchestrator, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	o := NewOrchestrator(searcher, config.SearchConfig{Debounce: testDebounce, PageSize: testPageSize}, zap.NewNop(), WithClock(clk))
	t.Cleanup(o.Close)
	return o, clk
}

func waitForStatus(t *testing.T, o *Orchestrator, status Status) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return o.State().Status == status }, time.Second, time.Millisecond)
	return o.State()
}

func TestOrchestrator_SubmitAppliesResult(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	assert.Equal(t, StatusIdle, o.State().Status)

	o.Submit()
	assert.Equal(t, StatusFetching, o.State().Status)

	call := searcher.next(t)
	assert.Equal(t, "1", call.params.Get("page"))
	assert.Equal(t, "6", call.params.Get("limit"))
	call.respond(&models.SearchResult{Items: grants("a", 6), TotalCount: 42})

	state := waitForStatus(t, o, StatusIdle)
	assert.Len(t, state.Items, 6)
	assert.Equal(t, 42, state.TotalCount)
	assert.Equal(t, 7, state.TotalPages)
	assert.Equal(t, 1, state.Page)
	assert.Empty(t, state.Error)
}

func TestOrchestrator_EmptyResultHasOnePage(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).respond(&models.SearchResult{TotalCount: 0})

	state := waitForStatus(t, o, StatusIdle)
	assert.Equal(t, 1, state.TotalPages)
	assert.NotNil(t, state.Items)
	assert.Empty(t, state.Items)
}

func TestOrchestrator_ClampsRequestedPage(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).respond(&models.SearchResult{Items: grants("a", 6), TotalCount: 30})
	state := waitForStatus(t, o, StatusIdle)
	require.Equal(t, 5, state.TotalPages)

	o.SetPage(9)
	call := searcher.next(t)
	assert.Equal(t, "5", call.params.Get("page"))
	assert.Equal(t, 5, o.State().Page)

	o.SetPage(0)
	call2 := searcher.next(t)
	assert.Equal(t, "1", call2.params.Get("page"))
}

func TestOrchestrator_ClampsAppliedPageWhenResultShrinks(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).respond(&models.SearchResult{Items: grants("a", 6), TotalCount: 60})
	waitForStatus(t, o, StatusIdle)

	o.SetPage(8)
	call := searcher.next(t)
	require.Equal(t, "8", call.params.Get("page"))
	call.respond(&models.SearchResult{Items: []models.Grant{}, TotalCount: 12})

	state := waitForStatus(t, o, StatusIdle)
	assert.Equal(t, 2, state.TotalPages)
	assert.Equal(t, 2, state.Page)
}

func TestOrchestrator_DebounceCoalescesEdits(t *testing.T) {
	searcher := newFakeSearcher()
	o, clk := newTestOrchestrator(t, searcher)

	o.SetSearchTerm("w")
	assert.Equal(t, StatusFetchingDebounced, o.State().Status)
	clk.Add(100 * time.Millisecond)
	o.SetSearchTerm("wa")
	clk.Add(100 * time.Millisecond)
	o.SetSearchTerm("water")
	clk.Add(299 * time.Millisecond)
	searcher.assertNoCall(t)

	clk.Add(time.Millisecond)
	call := searcher.next(t)
	assert.Equal(t, "water", call.params.Get("q"))
	searcher.assertNoCall(t)

	call.respond(&models.SearchResult{Items: grants("w", 2), TotalCount: 2})
	state := waitForStatus(t, o, StatusIdle)
	assert.Equal(t, "water", state.Filters.SearchTerm())
}

func TestOrchestrator_RangeEditsFiftyMillisecondsApart(t *testing.T) {
	searcher := newFakeSearcher()
	o, clk := newTestOrchestrator(t, searcher)

	o.SetFunding(Range{Min: 1000})
	clk.Add(50 * time.Millisecond)
	o.SetFunding(Range{Min: 5000})

	clk.Add(testDebounce)
	call := searcher.next(t)
	assert.Equal(t, "5000", call.params.Get("funding_min"))

	// The first edit's timer never fires
	clk.Add(time.Second)
	searcher.assertNoCall(t)
}

func TestOrchestrator_EditResetsPage(t *testing.T) {
	searcher := newFakeSearcher()
	o, clk := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).respond(&models.SearchResult{Items: grants("a", 6), TotalCount: 42})
	waitForStatus(t, o, StatusIdle)

	o.SetPage(3)
	searcher.next(t).respond(&models.SearchResult{Items: grants("c", 6), TotalCount: 42})
	waitForStatus(t, o, StatusIdle)

	o.SetCategories(Values("health"))
	assert.Equal(t, 1, o.State().Page)
	clk.Add(testDebounce)
	call := searcher.next(t)
	assert.Equal(t, "1", call.params.Get("page"))
	assert.Equal(t, "health", call.params.Get("categories"))
}

func TestOrchestrator_ExplicitSubmitCancelsDebounce(t *testing.T) {
	searcher := newFakeSearcher()
	o, clk := newTestOrchestrator(t, searcher)

	o.SetSearchTerm("rural")
	clk.Add(100 * time.Millisecond)
	o.SetSort(SortNewest)

	call := searcher.next(t)
	assert.Equal(t, "rural", call.params.Get("q"))
	assert.Equal(t, "newest", call.params.Get("sort"))

	clk.Add(time.Second)
	searcher.assertNoCall(t)
}

func TestOrchestrator_DiscardsStaleResponse(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	older := searcher.next(t)
	o.SetPage(2)
	newer := searcher.next(t)

	newer.respond(&models.SearchResult{Items: grants("new", 6), TotalCount: 42})
	state := waitForStatus(t, o, StatusIdle)
	assert.Equal(t, "new-1", state.Items[0].ID)

	older.respond(&models.SearchResult{Items: grants("old", 6), TotalCount: 99})
	time.Sleep(20 * time.Millisecond)

	state = o.State()
	assert.Equal(t, "new-1", state.Items[0].ID)
	assert.Equal(t, 42, state.TotalCount)
}

func TestOrchestrator_StaleResponseBeforeCurrent(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	older := searcher.next(t)
	o.SubmitSearch("tribal")
	newer := searcher.next(t)

	older.respond(&models.SearchResult{Items: grants("old", 6), TotalCount: 99})
	time.Sleep(20 * time.Millisecond)

	// No flicker to older data while the newer request is outstanding
	state := o.State()
	assert.Equal(t, StatusFetching, state.Status)
	assert.Empty(t, state.Items)

	newer.respond(&models.SearchResult{Items: grants("new", 1), TotalCount: 1})
	state = waitForStatus(t, o, StatusIdle)
	assert.Equal(t, "new-1", state.Items[0].ID)
}

func TestOrchestrator_StaleErrorIgnored(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	older := searcher.next(t)
	o.Refresh()
	newer := searcher.next(t)

	older.fail(errors.New("GET /grants: status 500"))
	newer.respond(&models.SearchResult{Items: grants("a", 1), TotalCount: 1})

	state := waitForStatus(t, o, StatusIdle)
	assert.Empty(t, state.Error)
}

func TestOrchestrator_FailureEntersError(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).fail(errors.New("GET /grants: status 400: invalid sort"))

	state := waitForStatus(t, o, StatusError)
	assert.Contains(t, state.Error, "invalid sort")

	// A new request clears the error
	o.Refresh()
	assert.Empty(t, o.State().Error)
	searcher.next(t).respond(&models.SearchResult{Items: grants("a", 1), TotalCount: 1})
	waitForStatus(t, o, StatusIdle)
}

func TestOrchestrator_CancellationIsNotAnError(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).fail(fmt.Errorf("GET /grants cancelled: %w", context.Canceled))

	state := waitForStatus(t, o, StatusIdle)
	assert.Empty(t, state.Error)
}

func TestOrchestrator_EmptyConstraintSkipsRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No Search expectation: the service must not be asked
	searcher := mock.NewMockSearcher(ctrl)
	o := NewOrchestrator(searcher, config.SearchConfig{Debounce: testDebounce, PageSize: testPageSize}, zap.NewNop(), WithClock(clock.NewMock()))
	defer o.Close()

	o.EditFilters(func(f FilterState) FilterState { return f.WithCategories(Values()) })
	o.Submit()

	state := o.State()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Empty(t, state.Items)
	assert.Equal(t, 0, state.TotalCount)
	assert.Equal(t, 1, state.TotalPages)
}

func TestOrchestrator_HideAndRevert(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).respond(&models.SearchResult{Items: grants("a", 3), TotalCount: 7})
	waitForStatus(t, o, StatusIdle)

	revert, ok := o.Hide("a-2")
	require.True(t, ok)
	state := o.State()
	assert.Equal(t, []string{"a-1", "a-3"}, ids(state.Items))
	assert.Equal(t, 6, state.TotalCount)
	assert.Equal(t, 1, state.TotalPages)

	revert()
	state = o.State()
	assert.Equal(t, []string{"a-1", "a-2", "a-3"}, ids(state.Items))
	assert.Equal(t, 7, state.TotalCount)
	assert.Equal(t, 2, state.TotalPages)

	// Reverting twice has no further effect
	revert()
	assert.Equal(t, 7, o.State().TotalCount)

	_, ok = o.Hide("missing")
	assert.False(t, ok)
}

func TestOrchestrator_OverlappingHidesRevertInPlace(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).respond(&models.SearchResult{Items: grants("a", 4), TotalCount: 4})
	waitForStatus(t, o, StatusIdle)

	revertThird, ok := o.Hide("a-3")
	require.True(t, ok)
	revertFirst, ok := o.Hide("a-1")
	require.True(t, ok)
	assert.Equal(t, []string{"a-2", "a-4"}, ids(o.State().Items))

	revertThird()
	assert.Equal(t, []string{"a-2", "a-3", "a-4"}, ids(o.State().Items))

	revertFirst()
	state := o.State()
	assert.Equal(t, []string{"a-1", "a-2", "a-3", "a-4"}, ids(state.Items))
	assert.Equal(t, 4, state.TotalCount)
}

func TestOrchestrator_RevertAfterNewerResultIsNoop(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	o.Submit()
	searcher.next(t).respond(&models.SearchResult{Items: grants("a", 3), TotalCount: 3})
	waitForStatus(t, o, StatusIdle)

	revert, ok := o.Hide("a-1")
	require.True(t, ok)

	o.Refresh()
	searcher.next(t).respond(&models.SearchResult{Items: grants("b", 2), TotalCount: 2})
	waitForStatus(t, o, StatusIdle)

	revert()
	state := o.State()
	assert.Equal(t, []string{"b-1", "b-2"}, ids(state.Items))
	assert.Equal(t, 2, state.TotalCount)
}

func TestOrchestrator_Subscribe(t *testing.T) {
	searcher := newFakeSearcher()
	o, _ := newTestOrchestrator(t, searcher)

	updates, cancel := o.Subscribe()
	defer cancel()

	initial := <-updates
	assert.Equal(t, StatusIdle, initial.Status)

	o.Submit()
	searcher.next(t).respond(&models.SearchResult{Items: grants("a", 1), TotalCount: 1})

	// Only the latest snapshot is kept for a slow reader
	require.Eventually(t, func() bool {
		select {
		case snap := <-updates:
			return snap.Status == StatusIdle && snap.TotalCount == 1
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestOrchestrator_Close(t *testing.T) {
	searcher := newFakeSearcher()
	o, clk := newTestOrchestrator(t, searcher)

	updates, _ := o.Subscribe()
	<-updates

	o.Submit()
	call := searcher.next(t)
	o.SetSearchTerm("late")
	o.Close()

	for range updates {
	}
	_, open := <-updates
	assert.False(t, open)

	call.respond(&models.SearchResult{Items: grants("a", 1), TotalCount: 1})
	clk.Add(time.Second)
	searcher.assertNoCall(t)
	assert.Empty(t, o.State().Items)

	// Calls after Close are ignored
	o.Submit()
	searcher.assertNoCall(t)
	o.Close()
}

func ids(items []models.Grant) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

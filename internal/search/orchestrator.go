package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"grantify-client/internal/config"
	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/models"
	"grantify-client/internal/transport"
)

// Status of the orchestrator state machine
type Status string

const (
	StatusIdle              Status = "idle"
	StatusFetching          Status = "fetching"
	StatusFetchingDebounced Status = "fetching_debounced"
	StatusError             Status = "error"
)

// Request triggers, used as metric labels
const (
	triggerSubmit   = "submit"
	triggerPage     = "page"
	triggerSort     = "sort"
	triggerRefresh  = "refresh"
	triggerDebounce = "debounce"
)

// Snapshot is the observable state of an orchestrator
type Snapshot struct {
	Status     Status         `json:"status"`
	Filters    FilterState    `json:"-"`
	Items      []models.Grant `json:"items"`
	TotalCount int            `json:"totalCount"`
	TotalPages int            `json:"totalPages"`
	Page       int            `json:"page"`
	Error      string         `json:"error,omitempty"`
	RequestID  uint64         `json:"requestId"`
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock sets the clock driving the debounce timer
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clk
	}
}

// WithFilters sets the initial filter state
func WithFilters(f FilterState) Option {
	return func(o *Orchestrator) {
		o.filters = f
	}
}

// Orchestrator drives searches from filter edits and explicit submits.
// Only the response of the latest issued request is ever applied.
type Orchestrator struct {
	searcher interfaces.Searcher
	debounce time.Duration
	pageSize int
	clock    clock.Clock
	logger   *zap.Logger

	mu         sync.Mutex
	filters    FilterState
	status     Status
	items      []models.Grant
	totalCount int
	totalPages int
	// knownPages is the page count of the last applied result, 0 before any
	knownPages int
	// rank is the position of each item in the last applied result
	rank       map[string]int
	errMsg     string

	latestID    uint64
	resultGen   uint64
	debounceGen uint64
	timer       *clock.Timer
	cancelReq   context.CancelFunc

	ctx    context.Context
	stop   context.CancelFunc
	closed bool

	subscribers map[int]chan Snapshot
	nextSub     int
}

// NewOrchestrator creates an idle orchestrator. No request is issued until
// the first submit or edit.
func NewOrchestrator(searcher interfaces.Searcher, cfg config.SearchConfig, logger *zap.Logger, opts ...Option) *Orchestrator {
	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		searcher:    searcher,
		debounce:    cfg.Debounce,
		pageSize:    cfg.PageSize,
		clock:       clock.New(),
		logger:      logger,
		filters:     DefaultFilterState(),
		status:      StatusIdle,
		items:       []models.Grant{},
		rank:        map[string]int{},
		totalPages:  1,
		ctx:         ctx,
		stop:        stop,
		subscribers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pageSize < 1 {
		o.pageSize = 1
	}
	return o
}

// State returns the current snapshot
func (o *Orchestrator) State() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Filters returns the current filter state
func (o *Orchestrator) Filters() FilterState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.filters
}

// Subscribe returns a channel receiving the latest snapshot after every state
// change. Slow readers only miss intermediate snapshots. The channel is closed
// by the returned cancel func or by Close.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = ch
	ch <- o.snapshotLocked()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(sub)
		}
	}
}

// Submit issues a search for the current filters now
func (o *Orchestrator) Submit() {
	o.explicit(triggerSubmit, func(f FilterState) FilterState { return f })
}

// SubmitSearch sets the free-text query and searches from the first page now
func (o *Orchestrator) SubmitSearch(term string) {
	o.explicit(triggerSubmit, func(f FilterState) FilterState {
		return f.WithSearchTerm(term).WithPage(1)
	})
}

// SetPage requests a page now. Pages beyond the last known page are clamped.
func (o *Orchestrator) SetPage(page int) {
	o.explicit(triggerPage, func(f FilterState) FilterState { return f.WithPage(page) })
}

// SetSort changes the ordering and searches from the first page now
func (o *Orchestrator) SetSort(k SortKey) {
	o.explicit(triggerSort, func(f FilterState) FilterState { return f.WithSort(k).WithPage(1) })
}

// Refresh re-issues the current search now
func (o *Orchestrator) Refresh() {
	o.explicit(triggerRefresh, func(f FilterState) FilterState { return f })
}

// SetSearchTerm edits the free-text query (debounced)
func (o *Orchestrator) SetSearchTerm(term string) {
	o.EditFilters(func(f FilterState) FilterState { return f.WithSearchTerm(term) })
}

// SetFunding edits the funding range (debounced)
func (o *Orchestrator) SetFunding(r Range) {
	o.EditFilters(func(f FilterState) FilterState { return f.WithFunding(r) })
}

// SetCategories edits the category constraint (debounced)
func (o *Orchestrator) SetCategories(c Constraint) {
	o.EditFilters(func(f FilterState) FilterState { return f.WithCategories(c) })
}

// SetAgencies edits the agency constraint (debounced)
func (o *Orchestrator) SetAgencies(c Constraint) {
	o.EditFilters(func(f FilterState) FilterState { return f.WithAgencies(c) })
}

// SetStatuses edits the status constraint (debounced)
func (o *Orchestrator) SetStatuses(c Constraint) {
	o.EditFilters(func(f FilterState) FilterState { return f.WithStatuses(c) })
}

// EditFilters applies edit to the filters, resets to the first page and
// (re)starts the debounce timer. A request is issued once edits pause for the
// debounce window.
func (o *Orchestrator) EditFilters(edit func(FilterState) FilterState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	o.filters = edit(o.filters).WithPage(1)
	o.status = StatusFetchingDebounced
	o.errMsg = ""
	// An outstanding request answers for filters that no longer apply
	o.supersedeLocked()
	o.stopTimerLocked()

	gen := o.debounceGen
	o.timer = o.clock.AfterFunc(o.debounce, func() { o.fire(gen) })
	o.publishLocked()
}

// Hide removes an item from the current result, as a local optimistic
// mutation. revert puts the item back where it stood in the applied result,
// relative to the items still shown, unless a newer result has been applied
// since. ok is false when the item is not shown.
func (o *Orchestrator) Hide(id string) (revert func(), ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	index := -1
	for i, item := range o.items {
		if item.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, false
	}

	hidden := o.items[index]
	items := make([]models.Grant, 0, len(o.items)-1)
	items = append(items, o.items[:index]...)
	items = append(items, o.items[index+1:]...)
	o.items = items
	if o.totalCount > 0 {
		o.totalCount--
	}
	o.totalPages = o.pagesFor(o.totalCount)
	gen := o.resultGen
	o.publishLocked()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if o.closed || o.resultGen != gen {
				return
			}
			pos := o.insertPosLocked(id)
			items := make([]models.Grant, 0, len(o.items)+1)
			items = append(items, o.items[:pos]...)
			items = append(items, hidden)
			items = append(items, o.items[pos:]...)
			o.items = items
			o.totalCount++
			o.totalPages = o.pagesFor(o.totalCount)
			o.publishLocked()
		})
	}, true
}

// insertPosLocked returns where an item of the applied result goes back
// among the items currently shown
func (o *Orchestrator) insertPosLocked(id string) int {
	rank, ok := o.rank[id]
	if !ok {
		return len(o.items)
	}
	for i, item := range o.items {
		if r, ok := o.rank[item.ID]; ok && r > rank {
			return i
		}
	}
	return len(o.items)
}

// Close stops the debounce timer and cancels the outstanding search.
// Responses arriving afterwards are dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	o.closed = true
	o.stopTimerLocked()
	if o.cancelReq != nil {
		o.cancelReq()
		o.cancelReq = nil
	}
	o.stop()
	for id, ch := range o.subscribers {
		delete(o.subscribers, id)
		close(ch)
	}
}

func (o *Orchestrator) explicit(trigger string, update func(FilterState) FilterState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	o.stopTimerLocked()
	o.filters = update(o.filters)
	o.issueLocked(trigger)
}

func (o *Orchestrator) fire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.debounceGen {
		return
	}
	o.timer = nil
	o.issueLocked(triggerDebounce)
}

// issueLocked mints a new request id and starts the request
func (o *Orchestrator) issueLocked(trigger string) {
	if o.knownPages > 0 && o.filters.Page() > o.knownPages {
		o.filters = o.filters.WithPage(o.knownPages)
	}

	o.supersedeLocked()
	o.latestID++
	id := o.latestID
	filters := o.filters
	o.status = StatusFetching
	o.errMsg = ""
	metrics.RecordSearchRequest(trigger)

	if filters.ExcludesEverything() {
		o.logger.Debug("Search excludes everything, skipping request", zap.Uint64("request_id", id))
		o.applyLocked(&models.SearchResult{Items: []models.Grant{}})
		metrics.RecordSearchResponse("empty")
		o.publishLocked()
		return
	}

	ctx, cancel := context.WithCancel(o.ctx)
	o.cancelReq = cancel
	o.publishLocked()

	params := filters.Params(o.pageSize)
	go func() {
		defer cancel()
		result, err := o.searcher.Search(ctx, params)
		o.settle(id, result, err)
	}()
}

// settle applies a response if its request is still the latest one
func (o *Orchestrator) settle(id uint64, result *models.SearchResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || id != o.latestID {
		metrics.RecordSearchResponse("stale")
		o.logger.Debug("Discarding stale search response",
			zap.Uint64("request_id", id),
			zap.Uint64("latest_id", o.latestID))
		return
	}
	o.cancelReq = nil

	switch {
	case err != nil && (transport.IsCancelled(err) || errors.Is(err, context.Canceled)):
		metrics.RecordSearchResponse("cancelled")
		o.status = StatusIdle
	case err != nil:
		metrics.RecordSearchResponse("error")
		o.logger.Warn("Search failed", zap.Uint64("request_id", id), zap.Error(err))
		o.status = StatusError
		o.errMsg = err.Error()
	default:
		metrics.RecordSearchResponse("success")
		o.applyLocked(result)
	}
	o.publishLocked()
}

func (o *Orchestrator) applyLocked(result *models.SearchResult) {
	items := result.Items
	if items == nil {
		items = []models.Grant{}
	}
	o.items = items
	o.rank = make(map[string]int, len(items))
	for i, item := range items {
		o.rank[item.ID] = i
	}
	o.totalCount = result.TotalCount
	if o.totalCount < 0 {
		o.totalCount = 0
	}
	o.totalPages = o.pagesFor(o.totalCount)
	o.knownPages = o.totalPages
	if o.filters.Page() > o.totalPages {
		o.filters = o.filters.WithPage(o.totalPages)
	}
	o.status = StatusIdle
	o.errMsg = ""
	o.resultGen++
}

// supersedeLocked makes any outstanding request stale and cancels it
func (o *Orchestrator) supersedeLocked() {
	if o.cancelReq == nil {
		return
	}
	o.cancelReq()
	o.cancelReq = nil
	o.latestID++
}

func (o *Orchestrator) stopTimerLocked() {
	o.debounceGen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// pagesFor returns max(1, ceil(count / pageSize))
func (o *Orchestrator) pagesFor(count int) int {
	pages := (count + o.pageSize - 1) / o.pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	items := make([]models.Grant, len(o.items))
	copy(items, o.items)
	return Snapshot{
		Status:     o.status,
		Filters:    o.filters,
		Items:      items,
		TotalCount: o.totalCount,
		TotalPages: o.totalPages,
		Page:       o.filters.Page(),
		Error:      o.errMsg,
		RequestID:  o.latestID,
	}
}

// publishLocked hands the new snapshot to every subscriber, replacing any
// snapshot it has not read yet
func (o *Orchestrator) publishLocked() {
	if len(o.subscribers) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

package interaction

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

// ListView is the visible grant list the coordinator mutates optimistically
type ListView interface {
	// Hide removes an item; revert puts it back
	Hide(id string) (revert func(), ok bool)
	// Refresh reloads the list from the service
	Refresh()
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithView attaches the list view hidden on actions and refreshed after them
func WithView(view ListView) Option {
	return func(c *Coordinator) {
		c.view = view
	}
}

// WithClock sets the clock scheduling background refreshes
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithBackgroundRefresh turns the delayed list refresh after a successful
// action on or off. It is on by default.
func WithBackgroundRefresh(enabled bool) Option {
	return func(c *Coordinator) {
		c.backgroundRefresh = enabled
	}
}

// Coordinator performs user actions optimistically: the local view changes
// at once and is reverted exactly if the remote write fails. At most one
// action per grant is in flight.
type Coordinator struct {
	writer       interfaces.InteractionWriter
	auth         interfaces.Authenticator
	cache        interfaces.CacheInvalidator
	patterns     []string
	view         ListView
	refreshDelay time.Duration
	clock        clock.Clock
	logger       *zap.Logger

	// backgroundRefresh schedules view.Refresh after successful actions
	backgroundRefresh bool

	mu           sync.Mutex
	pending      map[string]struct{}
	interactions map[string]models.Action
	counters     map[models.Action]int
	lastErr      error
	refreshTimer *clock.Timer
	closed       bool
}

// NewCoordinator creates a coordinator. patterns are the cache patterns
// invalidated before every remote write.
func NewCoordinator(writer interfaces.InteractionWriter, auth interfaces.Authenticator, cache interfaces.CacheInvalidator, patterns []string, cfg config.InteractionsConfig, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		writer:            writer,
		auth:              auth,
		cache:             cache,
		patterns:          patterns,
		refreshDelay:      cfg.RefreshDelay,
		clock:             clock.New(),
		logger:            logger,
		backgroundRefresh: true,
		pending:           make(map[string]struct{}),
		interactions:      make(map[string]models.Action),
		counters:          make(map[models.Action]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Outcome tells what became of an action that returned no error
type Outcome int

const (
	// OutcomeApplied means the remote write succeeded
	OutcomeApplied Outcome = iota
	// OutcomeIgnored means an action for the grant was already in flight
	OutcomeIgnored
	// OutcomeCancelled means the write was cancelled and the local change reverted
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// PerformAction records action against a grant. A second call for a grant
// whose action is still in flight is ignored.
func (c *Coordinator) PerformAction(ctx context.Context, grantID string, action models.Action) error {
	_, err := c.run(ctx, grantID, action, false)
	return err
}

// UndoAction removes a previously recorded action from a grant, with the
// same optimistic protocol as PerformAction
func (c *Coordinator) UndoAction(ctx context.Context, grantID string, action models.Action) error {
	_, err := c.run(ctx, grantID, action, true)
	return err
}

// Perform is PerformAction reporting whether the action was applied, ignored
// as a duplicate or cancelled
func (c *Coordinator) Perform(ctx context.Context, grantID string, action models.Action) (Outcome, error) {
	return c.run(ctx, grantID, action, false)
}

// Undo is UndoAction reporting the outcome like Perform
func (c *Coordinator) Undo(ctx context.Context, grantID string, action models.Action) (Outcome, error) {
	return c.run(ctx, grantID, action, true)
}

func (c *Coordinator) run(ctx context.Context, grantID string, action models.Action, undo bool) (Outcome, error) {
	label := string(action)
	if undo {
		label = "undo_" + label
	}

	if !action.Valid() || grantID == "" {
		return OutcomeIgnored, ErrInvalidAction
	}
	if !c.auth.Authenticated(ctx) {
		metrics.RecordInteraction(label, "unauthenticated")
		c.setLastError(ErrUnauthenticated)
		return OutcomeIgnored, ErrUnauthenticated
	}

	if !c.begin(grantID) {
		metrics.RecordInteraction(label, "ignored")
		c.logger.Debug("Action already pending", zap.String("grant_id", grantID))
		return OutcomeIgnored, nil
	}
	defer c.finish(grantID)

	revert := c.applyLocal(grantID, action, undo)
	removed := c.cache.Invalidate(c.patterns...)
	c.logger.Debug("Invalidated cached reads before write",
		zap.String("grant_id", grantID),
		zap.Int("removed", removed))

	var err error
	if undo {
		err = c.writer.DeleteInteraction(ctx, grantID, action)
	} else {
		err = c.writer.RecordInteraction(ctx, grantID, action)
	}

	if err != nil {
		revert()
		if transport.IsCancelled(err) || errors.Is(err, context.Canceled) {
			metrics.RecordInteraction(label, "cancelled")
			c.logger.Debug("Action cancelled, reverted", zap.String("grant_id", grantID))
			return OutcomeCancelled, nil
		}
		metrics.RecordInteraction(label, "failed")
		c.logger.Warn("Action failed, reverted",
			zap.String("grant_id", grantID),
			zap.String("action", label),
			zap.Error(err))
		actionErr := &ActionError{GrantID: grantID, Action: action, Undo: undo, Err: err}
		c.setLastError(actionErr)
		return OutcomeIgnored, actionErr
	}

	metrics.RecordInteraction(label, "success")
	// reads issued while the write was in flight may have stored pre-action state
	c.cache.Invalidate(c.patterns...)
	c.scheduleRefresh()
	return OutcomeApplied, nil
}

// begin adds grantID to the pending set unless it is already there
func (c *Coordinator) begin(grantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[grantID]; ok {
		return false
	}
	c.pending[grantID] = struct{}{}
	c.lastErr = nil
	return true
}

func (c *Coordinator) finish(grantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, grantID)
}

// applyLocal mutates the local view and returns the exact inverse
func (c *Coordinator) applyLocal(grantID string, action models.Action, undo bool) func() {
	c.mu.Lock()
	prev, hadPrev := c.interactions[grantID]
	if undo {
		if hadPrev && prev == action {
			delete(c.interactions, grantID)
			c.counters[action]--
		}
	} else {
		if hadPrev {
			c.counters[prev]--
		}
		c.interactions[grantID] = action
		c.counters[action]++
	}
	c.mu.Unlock()

	var revertView func()
	if !undo && c.view != nil {
		revertView, _ = c.view.Hide(grantID)
	}

	return func() {
		c.mu.Lock()
		if cur, ok := c.interactions[grantID]; ok {
			c.counters[cur]--
			delete(c.interactions, grantID)
		}
		if hadPrev {
			c.interactions[grantID] = prev
			c.counters[prev]++
		}
		c.mu.Unlock()

		if revertView != nil {
			revertView()
		}
	}
}

// scheduleRefresh reloads the list once actions pause for the refresh delay
func (c *Coordinator) scheduleRefresh() {
	if c.view == nil || !c.backgroundRefresh {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	c.refreshTimer = c.clock.AfterFunc(c.refreshDelay, c.view.Refresh)
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

// Seed loads the interactions already recorded remotely. Grants with an
// action in flight keep their local state.
func (c *Coordinator) Seed(interactions []models.Interaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for grantID, action := range c.interactions {
		if _, ok := c.pending[grantID]; ok {
			continue
		}
		c.counters[action]--
		delete(c.interactions, grantID)
	}
	for _, in := range interactions {
		if !in.Action.Valid() {
			continue
		}
		if _, ok := c.pending[in.GrantID]; ok {
			continue
		}
		if prev, ok := c.interactions[in.GrantID]; ok {
			c.counters[prev]--
		}
		c.interactions[in.GrantID] = in.Action
		c.counters[in.Action]++
	}
}

// Counters returns the number of grants per recorded action
func (c *Coordinator) Counters() map[models.Action]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[models.Action]int, len(models.Actions))
	for _, action := range models.Actions {
		out[action] = c.counters[action]
	}
	return out
}

// Interaction returns the action recorded for a grant
func (c *Coordinator) Interaction(grantID string) (models.Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	action, ok := c.interactions[grantID]
	return action, ok
}

// Pending reports whether an action for grantID is in flight
func (c *Coordinator) Pending(grantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[grantID]
	return ok
}

// LastError returns the error of the last failed user action, if any.
// Starting a new action clears it.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close stops a scheduled refresh
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

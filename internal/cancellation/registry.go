package cancellation

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grantify-client/internal/metrics"
)

// Handle identifies one registered request
type Handle struct {
	ID  string
	Key string
}

// Registry tracks the cancel functions of outstanding requests by key.
// Several requests may share a key; Cancel and the bulk operations cancel all
// of them.
type Registry struct {
	mu      sync.Mutex
	entries map[string]map[string]context.CancelFunc
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]map[string]context.CancelFunc),
		logger:  logger,
	}
}

// Register records cancel under key and returns the handle to release it with
func (r *Registry) Register(key string, cancel context.CancelFunc) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(key, cancel)
}

// Supersede cancels every outstanding request under key and registers the new
// one, atomically with respect to other registry calls
func (r *Registry) Supersede(key string, cancel context.CancelFunc) Handle {
	r.mu.Lock()
	cancelled := r.take(key)
	h := r.register(key, cancel)
	r.mu.Unlock()

	for _, c := range cancelled {
		c()
	}
	if len(cancelled) > 0 {
		metrics.RecordCancellations("superseded", len(cancelled))
		r.logger.Debug("Superseded outstanding request", zap.String("key", key), zap.Int("cancelled", len(cancelled)))
	}
	return h
}

// Release forgets a settled request without cancelling it
func (r *Registry) Release(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, ok := r.entries[h.Key]
	if !ok {
		return
	}
	if _, ok := ids[h.ID]; !ok {
		return
	}
	delete(ids, h.ID)
	if len(ids) == 0 {
		delete(r.entries, h.Key)
	}
	metrics.OutstandingRequests.Dec()
}

// Cancel cancels every request registered under key and reports whether any was
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	cancelled := r.take(key)
	r.mu.Unlock()

	for _, c := range cancelled {
		c()
	}
	metrics.RecordCancellations("key", len(cancelled))
	return len(cancelled) > 0
}

// CancelAllMatchingPrefix cancels every request whose key starts with prefix
func (r *Registry) CancelAllMatchingPrefix(prefix string) int {
	r.mu.Lock()
	var cancelled []context.CancelFunc
	for key := range r.entries {
		if strings.HasPrefix(key, prefix) {
			cancelled = append(cancelled, r.take(key)...)
		}
	}
	r.mu.Unlock()

	for _, c := range cancelled {
		c()
	}
	metrics.RecordCancellations("prefix", len(cancelled))
	r.logger.Debug("Cancelled requests by prefix", zap.String("prefix", prefix), zap.Int("cancelled", len(cancelled)))
	return len(cancelled)
}

// CancelAll cancels every outstanding request
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	var cancelled []context.CancelFunc
	for key := range r.entries {
		cancelled = append(cancelled, r.take(key)...)
	}
	r.mu.Unlock()

	for _, c := range cancelled {
		c()
	}
	metrics.RecordCancellations("all", len(cancelled))
	if len(cancelled) > 0 {
		r.logger.Info("Cancelled all outstanding requests", zap.Int("cancelled", len(cancelled)))
	}
	return len(cancelled)
}

// Len returns the number of outstanding requests
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ids := range r.entries {
		n += len(ids)
	}
	return n
}

// register must be called with r.mu held
func (r *Registry) register(key string, cancel context.CancelFunc) Handle {
	h := Handle{ID: uuid.NewString(), Key: key}
	ids, ok := r.entries[key]
	if !ok {
		ids = make(map[string]context.CancelFunc)
		r.entries[key] = ids
	}
	ids[h.ID] = cancel
	metrics.OutstandingRequests.Inc()
	return h
}

// take removes and returns the cancel functions under key, r.mu must be held.
// Callers invoke them after unlocking.
func (r *Registry) take(key string) []context.CancelFunc {
	ids, ok := r.entries[key]
	if !ok {
		return nil
	}
	delete(r.entries, key)

	out := make([]context.CancelFunc, 0, len(ids))
	for _, c := range ids {
		out = append(out, c)
	}
	metrics.OutstandingRequests.Sub(float64(len(out)))
	return out
}

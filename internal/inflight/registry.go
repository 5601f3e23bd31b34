package inflight

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"grantify-client/internal/metrics"
)

// Operation produces the shared result of a read
type Operation func(ctx context.Context) ([]byte, error)

type call struct {
	done    chan struct{}
	val     []byte
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Registry deduplicates concurrent identical reads. Callers using the same key
// while an operation is unresolved share its single execution. The entry is
// removed as soon as the operation settles, whatever its outcome.
type Registry struct {
	mu     sync.Mutex
	calls  map[string]*call
	logger *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		calls:  make(map[string]*call),
		logger: logger,
	}
}

// Do runs op once per key among concurrent callers and returns its result.
// shared reports whether the caller joined an operation started by another.
//
// op runs on a context detached from ctx; it is cancelled only once every
// caller waiting on it has given up. A caller whose ctx ends returns ctx.Err().
func (r *Registry) Do(ctx context.Context, key string, op Operation) (val []byte, shared bool, err error) {
	r.mu.Lock()
	if c, ok := r.calls[key]; ok {
		c.waiters++
		r.mu.Unlock()
		return r.wait(ctx, key, c, true)
	}

	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	r.calls[key] = c
	metrics.InflightActive.Inc()
	r.mu.Unlock()

	go r.run(opCtx, key, c, op)

	return r.wait(ctx, key, c, false)
}

func (r *Registry) run(ctx context.Context, key string, c *call, op Operation) {
	defer c.cancel()

	var (
		val []byte
		err error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("inflight operation for %s panicked: %v", key, p)
				r.logger.Error("Shared read panicked", zap.String("key", key), zap.Any("panic", p))
			}
		}()
		val, err = op(ctx)
	}()

	r.mu.Lock()
	c.val, c.err = val, err
	r.forget(key, c)
	r.mu.Unlock()

	close(c.done)
}

func (r *Registry) wait(ctx context.Context, key string, c *call, shared bool) ([]byte, bool, error) {
	select {
	case <-c.done:
		return c.val, shared, c.err
	case <-ctx.Done():
	}

	r.mu.Lock()
	c.waiters--
	abandoned := c.waiters == 0
	if abandoned {
		// Nobody is left to observe the result, so later callers start afresh
		r.forget(key, c)
	}
	r.mu.Unlock()

	if abandoned {
		c.cancel()
		r.logger.Debug("Shared read abandoned by every caller", zap.String("key", key))
	}
	return nil, shared, ctx.Err()
}

// forget must be called with r.mu held
func (r *Registry) forget(key string, c *call) {
	if r.calls[key] == c {
		delete(r.calls, key)
		metrics.InflightActive.Dec()
	}
}

// Len returns the number of unresolved operations
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

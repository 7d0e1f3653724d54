package listener

import (
	"context"
	"strings"

	"github.com/chainsafe/escrow-bridge/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Registry tracks active listeners so each key has at most one poll loop.
type Registry struct {
	active *xsync.MapOf[string, *entry]
}

func NewRegistry() *Registry {
	return &Registry{active: xsync.NewMapOf[string, *entry]()}
}

// Key builds the registry key for a transfer's watched address.
func Key(txID, currency string, destination common.Address) string {
	return txID + "-" + strings.ToUpper(currency) + "-" + strings.ToLower(destination.Hex())
}

func (r *Registry) tryAcquire(key string, cancel context.CancelCauseFunc) (*entry, bool) {
	e := &entry{cancel: cancel, done: make(chan struct{})}
	if _, loaded := r.active.LoadOrStore(key, e); loaded {
		return nil, false
	}
	metrics.ActiveListeners.Inc()
	return e, true
}

// release removes e if it is still the registered entry and wakes waiters.
func (r *Registry) release(key string, e *entry) {
	r.active.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		return old, !loaded || old == e
	})
	metrics.ActiveListeners.Dec()
	close(e.done)
}

// Active reports whether a listener holds key.
func (r *Registry) Active(key string) bool {
	_, ok := r.active.Load(key)
	return ok
}

// Len returns the number of active listeners.
func (r *Registry) Len() int {
	return r.active.Size()
}

// Cancel stops the listener for key and waits until it has released the
// key. It is a no-op when nothing is registered.
func (r *Registry) Cancel(ctx context.Context, key string) error {
	e, ok := r.active.Load(key)
	if !ok {
		return nil
	}
	e.cancel(ErrListenerCancelled)
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

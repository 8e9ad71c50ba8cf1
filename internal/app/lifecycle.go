package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases a resource during shutdown. The context expires
// when the shutdown timeout elapses.
type ShutdownFunc func(ctx context.Context) error

// Lifecycle coordinates teardown of a run. Long operations register
// shutdown hooks and watch for SIGINT/SIGTERM through WaitForSignal; a
// programmatic Shutdown releases the same waiters without a signal, so
// a completed setup run and an interrupted one share one exit path.
type Lifecycle struct {
	mu      sync.Mutex
	hooks   []ShutdownFunc
	started chan struct{}
	done    chan struct{}
	timeout time.Duration
	once    sync.Once
}

// NewLifecycle creates a lifecycle manager. The timeout bounds the total
// time shutdown hooks may take.
func NewLifecycle(timeout time.Duration) *Lifecycle {
	return &Lifecycle{
		started: make(chan struct{}),
		done:    make(chan struct{}),
		timeout: timeout,
	}
}

// OnShutdown registers a hook. Hooks run in reverse registration order,
// so dependents registered later are torn down first.
func (l *Lifecycle) OnShutdown(fn ShutdownFunc) {
	l.mu.Lock()
	l.hooks = append(l.hooks, fn)
	l.mu.Unlock()
}

// WaitForSignal blocks until SIGINT or SIGTERM arrives, returning the
// signal. It returns nil when Shutdown is called first.
func (l *Lifecycle) WaitForSignal() os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sig
	case <-l.started:
		return nil
	}
}

// Shutdown runs every registered hook under the configured timeout and
// reports the last hook error. Repeat calls are no-ops returning nil.
func (l *Lifecycle) Shutdown() error {
	var lastErr error

	l.once.Do(func() {
		close(l.started)

		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		lastErr = l.runHooks(ctx)
		close(l.done)
	})

	return lastErr
}

// runHooks executes the hooks LIFO. Each hook runs even when an earlier
// one fails; the last error wins.
func (l *Lifecycle) runHooks(ctx context.Context) error {
	l.mu.Lock()
	hooks := make([]ShutdownFunc, len(l.hooks))
	copy(hooks, l.hooks)
	l.mu.Unlock()

	var lastErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Done returns a channel closed once all shutdown hooks have run.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// ShutdownCh returns a channel closed as soon as shutdown begins.
func (l *Lifecycle) ShutdownCh() <-chan struct{} {
	return l.started
}

// IsShuttingDown reports whether Shutdown has been initiated.
func (l *Lifecycle) IsShuttingDown() bool {
	select {
	case <-l.started:
		return true
	default:
		return false
	}
}

// Timeout returns the configured shutdown timeout.
func (l *Lifecycle) Timeout() time.Duration {
	return l.timeout
}

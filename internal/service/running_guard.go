package service

import (
	"context"
	"sync"
)

// ExportedRunGuard is an exported alias so _test packages can test the guard.
type ExportedRunGuard = runGuard

// runGuard admits one pipeline run at a time. A trigger refused while a run
// is in flight can leave a pending mark, which the run's Release hands back
// so the trigger is replayed instead of lost.
type runGuard struct {
	mu      sync.Mutex
	running bool
	pending bool
	wg      sync.WaitGroup
}

// TryAcquire starts a run. It returns false if one is already in flight.
func (g *runGuard) TryAcquire() bool {
	return g.acquire(false)
}

// AcquireOrDefer is TryAcquire, except that a refused caller is recorded
// as pending under the same lock Release takes.
func (g *runGuard) AcquireOrDefer() bool {
	return g.acquire(true)
}

func (g *runGuard) acquire(deferIfBusy bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		if deferIfBusy {
			g.pending = true
		}
		return false
	}
	g.running = true
	g.wg.Add(1)
	return true
}

// Release ends the current run and reports whether a deferred trigger
// arrived meanwhile. The pending mark is cleared.
func (g *runGuard) Release() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	replay := g.pending
	g.pending = false
	g.running = false
	g.wg.Done()
	return replay
}

// Wait blocks until the in-flight run completes or ctx is cancelled.
func (g *runGuard) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprep/internal/service"
)

// ─────────────────────────────────────────────────────────────
// runGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunGuard_TryAcquire(t *testing.T) {
	var g service.ExportedRunGuard

	require.True(t, g.TryAcquire(), "first acquire should succeed")
	assert.False(t, g.TryAcquire(), "second acquire should fail while running")
	assert.False(t, g.Release(), "plain refusals leave nothing pending")

	assert.True(t, g.TryAcquire(), "acquire should succeed after release")
	g.Release()
}

func TestRunGuard_DeferredTriggerSurvivesRelease(t *testing.T) {
	var g service.ExportedRunGuard

	require.True(t, g.TryAcquire())
	assert.False(t, g.AcquireOrDefer(), "busy guard defers the trigger")
	assert.True(t, g.Release(), "release hands back the deferred trigger")

	require.True(t, g.AcquireOrDefer(), "replay acquires the free guard")
	assert.False(t, g.Release(), "pending mark is cleared after one replay")
}

func TestRunGuard_ConcurrentDefersNeverLost(t *testing.T) {
	var g service.ExportedRunGuard

	for i := 0; i < 200; i++ {
		require.True(t, g.TryAcquire())
		deferred := make(chan bool, 1)
		go func() { deferred <- !g.AcquireOrDefer() }()

		replay := g.Release()
		wasDeferred := <-deferred
		if wasDeferred {
			assert.True(t, replay, "a deferred trigger must be reported by Release")
		} else {
			// The trigger won the guard after release; hand it back.
			assert.False(t, g.Release())
		}
	}
}

func TestRunGuard_Wait(t *testing.T) {
	var g service.ExportedRunGuard
	require.True(t, g.TryAcquire())

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.Wait(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Release()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	require.Len(t, m.Events, 2)
	assert.Equal(t, "test:event", m.Events[0].Event)
	assert.Equal(t, []string{"test:event", "test:event2"}, m.Names())
}

//go:build !timerfd
// +build !timerfd

package loop

import (
	"testing"
	"time"

	"github.com/momentics/pploop/api"
	"github.com/momentics/pploop/internal/timeutil"
)

// TestFiredOneShotHandleIsForgotten covers the no-monotonic-exhaustion
// property: once a non-repeating list timer fires, its handle must no
// longer resolve, and the slot it held must be returned to the allocator.
func TestFiredOneShotHandleIsForgotten(t *testing.T) {
	l := newTestLoop(t)

	fired := make(chan struct{})
	h, err := l.AddTimer(timeutil.FromNanos(int64(10*time.Millisecond)), func(handle api.TimerHandle, userData any) {
		close(fired)
		l.ExitMainloop()
	}, nil, false)
	if err != nil {
		t.Fatalf("AddTimer: %v", err)
	}

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-fired:
	default:
		t.Fatal("timer never fired")
	}

	if err := l.RestartTimer(h); err != api.ErrUnknown {
		t.Fatalf("expected RestartTimer on a fired handle to report ErrUnknown, got %v", err)
	}
	if err := l.UpdateTimer(h, timeutil.FromNanos(int64(time.Millisecond))); err != api.ErrUnknown {
		t.Fatalf("expected UpdateTimer on a fired handle to report ErrUnknown, got %v", err)
	}
	if err := l.RemoveTimer(h); err != api.ErrUnknown {
		t.Fatalf("expected RemoveTimer on a fired handle to report ErrUnknown, got %v", err)
	}
	if l.timers.handles.Contains(uint16(h)) {
		t.Fatalf("expected fired handle %d to be released back to the allocator", h)
	}
}

// TestOneShotTimersDoNotExhaustHandleSpace fires many one-shot timers in
// sequence and asserts every fired handle is forgotten and released back to
// the allocator, guarding against the slot leak a fire that never releases
// its handle would cause over a long run.
func TestOneShotTimersDoNotExhaustHandleSpace(t *testing.T) {
	l := newTestLoop(t)

	const rounds = 50
	fired := 0
	for i := 0; i < rounds; i++ {
		done := make(chan struct{})
		_, err := l.addTimer(timeutil.FromNanos(int64(time.Millisecond)), func(handle api.TimerHandle, userData any) {
			close(done)
		}, nil, false)
		if err != nil {
			t.Fatalf("addTimer round %d: %v", i, err)
		}
		l.timerMarkRunning()
		for {
			l.timerBeforeBlock()
			if len(l.timers.active) == 0 {
				break
			}
			time.Sleep(2 * time.Millisecond)
			l.timerAfterZeroWake()
		}
		l.timerMarkStopped()
		select {
		case <-done:
			fired++
		default:
		}
	}
	if fired != rounds {
		t.Fatalf("expected %d timers to fire, got %d", rounds, fired)
	}
	if len(l.timers.byHandle) != 0 {
		t.Fatalf("expected every fired handle to be forgotten, %d remain", len(l.timers.byHandle))
	}
	if n := l.timers.handles.Len(); n != 0 {
		t.Fatalf("expected every fired handle to be released, %d still allocated", n)
	}
}

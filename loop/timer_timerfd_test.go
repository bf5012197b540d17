//go:build linux && timerfd
// +build linux,timerfd

package loop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/pploop/api"
	"github.com/momentics/pploop/internal/timeutil"
)

func TestRepeatingTimerFiresMultipleTimes(t *testing.T) {
	l := newTestLoop(t)
	var fires atomic.Int32

	_, err := l.AddTimer(timeutil.FromNanos(int64(8*time.Millisecond)), func(handle api.TimerHandle, userData any) {
		if fires.Add(1) >= 3 {
			l.ExitMainloop()
		}
	}, nil, true)
	if err != nil {
		t.Fatalf("AddTimer: %v", err)
	}

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fires.Load() < 3 {
		t.Fatalf("expected at least 3 fires, got %d", fires.Load())
	}
}

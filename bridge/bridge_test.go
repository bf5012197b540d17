package bridge

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/internal/timeutil"
	"github.com/momentics/pploop/loop"
)

func timeoutOf(d time.Duration) timeutil.Time {
	return timeutil.FromNanos(int64(d))
}

func openTestPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("Pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestAddWatchOrdersByPriority(t *testing.T) {
	l, err := loop.New()
	if err != nil {
		t.Fatalf("loop.New: %v", err)
	}
	b := New(l)

	rfLow, wfLow := openTestPipe(t)
	rfHigh, wfHigh := openTestPipe(t)

	var order []string
	record := func(name string) func() { return func() { order = append(order, name) } }

	if _, err := b.AddWatch("low", rfLow, unix.POLLIN, 1, record("low")); err != nil {
		t.Fatalf("AddWatch low: %v", err)
	}
	if _, err := b.AddWatch("high", rfHigh, unix.POLLIN, 10, record("high")); err != nil {
		t.Fatalf("AddWatch high: %v", err)
	}

	// Both fds are readable before the loop starts, so the first iteration
	// sees them ready in the same ppoll wake.
	unix.Write(wfLow, []byte{1})
	unix.Write(wfHigh, []byte{1})
	go func() {
		time.Sleep(20 * time.Millisecond)
		l.ExitMainloop()
	}()

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(order) < 2 {
		t.Fatalf("expected both watches to fire, got %v", order)
	}
	if order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected the higher-priority watch to run first, got %v", order[:2])
	}
}

func TestRemoveWatchNotSupported(t *testing.T) {
	l, err := loop.New()
	if err != nil {
		t.Fatalf("loop.New: %v", err)
	}
	b := New(l)
	if err := b.RemoveWatch("anything"); err == nil {
		t.Fatal("expected RemoveWatch to report unsupported")
	}
}

func TestAddTimeoutFiresViaBridge(t *testing.T) {
	l, err := loop.New()
	if err != nil {
		t.Fatalf("loop.New: %v", err)
	}
	b := New(l)

	var fired atomic.Bool
	_, err = b.AddTimeout("timeout-obj", timeoutOf(10*time.Millisecond), false, func() {
		fired.Store(true)
		l.ExitMainloop()
	})
	if err != nil {
		t.Fatalf("AddTimeout: %v", err)
	}

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !fired.Load() {
		t.Fatal("expected timeout to fire")
	}
}

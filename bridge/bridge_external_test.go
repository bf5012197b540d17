//go:build linux
// +build linux

package bridge

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/loop"
	"github.com/momentics/pploop/reactor"
)

// TestRegisterExternalReactorDrainsWithoutDeadlock exercises
// drainExternalReactor end to end: an external epoll-backed reactor is
// folded into the loop's own ppoll set, and a real fd readiness event must
// reach the registered callback without the owning goroutine deadlocking
// on its own mutex.
func TestRegisterExternalReactorDrainsWithoutDeadlock(t *testing.T) {
	l, err := loop.New()
	if err != nil {
		t.Fatalf("loop.New: %v", err)
	}
	b := New(l)

	r, err := reactor.NewReactor()
	if err != nil {
		t.Fatalf("reactor.NewReactor: %v", err)
	}

	if _, err := b.RegisterExternalReactor(r, 5); err != nil {
		t.Fatalf("RegisterExternalReactor: %v", err)
	}

	rf, wf := openTestPipe(t)

	var fired atomic.Bool
	if err := b.AddExternalWatch(uintptr(rf), 0, func() {
		fired.Store(true)
		l.ExitMainloop()
	}); err != nil {
		t.Fatalf("AddExternalWatch: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		unix.Write(wf, []byte{1})
	}()

	done := make(chan error, 1)
	go func() { done <- l.Start() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop hung, likely deadlocked in drainExternalReactor")
	}

	if !fired.Load() {
		t.Fatal("expected external watch callback to fire")
	}
}

//go:build linux
// +build linux

package loop

import (
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
)

func TestSignalFanOutToMultipleListeners(t *testing.T) {
	l := newTestLoop(t)

	if err := l.ListenToSignals(unix.SIGUSR1); err != nil {
		t.Fatalf("ListenToSignals: %v", err)
	}

	var got1, got2 atomic.Bool
	if _, err := l.AddSignalHandler(func(handle api.SignalHandle, info unix.SignalfdSiginfo, userData any) {
		got1.Store(true)
	}, nil); err != nil {
		t.Fatalf("AddSignalHandler: %v", err)
	}
	h2, err := l.AddSignalHandler(func(handle api.SignalHandle, info unix.SignalfdSiginfo, userData any) {
		got2.Store(true)
		l.ExitMainloop()
	}, nil)
	if err != nil {
		t.Fatalf("AddSignalHandler: %v", err)
	}
	_ = h2

	go func() {
		time.Sleep(10 * time.Millisecond)
		syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	}()

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !got1.Load() || !got2.Load() {
		t.Fatalf("expected both listeners to fire, got1=%v got2=%v", got1.Load(), got2.Load())
	}
}

func TestRemoveSignalHandlerStopsDelivery(t *testing.T) {
	l := newTestLoop(t)
	if err := l.ListenToSignals(unix.SIGUSR2); err != nil {
		t.Fatalf("ListenToSignals: %v", err)
	}

	var count atomic.Int32
	h, err := l.AddSignalHandler(func(handle api.SignalHandle, info unix.SignalfdSiginfo, userData any) {
		count.Add(1)
	}, nil)
	if err != nil {
		t.Fatalf("AddSignalHandler: %v", err)
	}
	if err := l.RemoveSignalHandler(h); err != nil {
		t.Fatalf("RemoveSignalHandler: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		syscall.Kill(syscall.Getpid(), syscall.SIGUSR2)
		time.Sleep(10 * time.Millisecond)
		l.ExitMainloop()
	}()

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if count.Load() != 0 {
		t.Fatalf("expected removed handler not to fire, got %d", count.Load())
	}
}

//go:build linux && timerfd
// +build linux,timerfd

// File: loop/timer_timerfd_linux.go
// Author: momentics <momentics@gmail.com>
//
// Kernel-timerfd timer backend: every timer is a real timerfd folded into
// the poll registry, so ppoll itself provides the countdown and repeat
// support is native (it_interval), unlike the list backend. Grounded on
// CAmSocketHandler::addTimer's #ifdef WITH_TIMERFD branch and createTimeFD.

package loop

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
	"github.com/momentics/pploop/internal/ringbuf"
	"github.com/momentics/pploop/internal/timeutil"
)

type fdTimer struct {
	fd     int
	handle api.TimerHandle
	pollH  api.PollHandle
}

type timerState struct {
	byHandle map[api.TimerHandle]*fdTimer
	deferred *ringbuf.Ring[int]
}

func newTimerState() timerState {
	return timerState{
		byHandle: make(map[api.TimerHandle]*fdTimer),
		deferred: ringbuf.New[int](8),
	}
}

// deferClose queues fd for closing at the next timerCloseDeferred call,
// growing the backing ring if an unusually large batch of timers is removed
// within a single iteration.
func (l *EventLoop) deferClose(fd int) {
	if l.timers.deferred.Enqueue(fd) {
		return
	}
	grown := ringbuf.New[int](l.timers.deferred.Len()*2 + 8)
	for {
		v, ok := l.timers.deferred.Dequeue()
		if !ok {
			break
		}
		grown.Enqueue(v)
	}
	grown.Enqueue(fd)
	l.timers.deferred = grown
}

func (l *EventLoop) timerMarkRunning() {}
func (l *EventLoop) timerMarkStopped() {}

// timerNextTimeout is always nil: every timer is its own poll registration,
// so ppoll's own timeout only needs to cover the wake pipe.
func (l *EventLoop) timerNextTimeout() *unix.Timespec { return nil }

func (l *EventLoop) timerBeforeBlock()  {}
func (l *EventLoop) timerAfterZeroWake() {}

func createTimeFD(d timeutil.Time, repeats bool) (int, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return -1, err
	}
	spec := unix.ItimerSpec{Value: d.ToTimespec()}
	if repeats {
		spec.Interval = d.ToTimespec()
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (l *EventLoop) addTimer(d timeutil.Time, cb api.TimerFunc, userData any, repeats bool) (api.TimerHandle, error) {
	if d.IsZero() {
		return 0, api.ErrNotPossible
	}
	fd, err := createTimeFD(d, repeats)
	if err != nil {
		return 0, err
	}

	t := &fdTimer{fd: fd}
	drain := func() (uint64, error) {
		var buf [8]byte
		n, rerr := unix.Read(fd, buf[:])
		if rerr != nil || n != 8 {
			return 0, api.ErrNotPossible
		}
		return 0, nil
	}

	h, err := l.reg.add(fd, unix.POLLIN, api.Callbacks{
		Check: func(handle api.PollHandle, userData any) bool { return true },
		Dispatch: func(handle api.PollHandle, userData any) bool {
			if _, rerr := drain(); rerr != nil {
				return false
			}
			l.metrics().Incr("loop.timer.fired", 1)
			func() {
				defer l.recoverStage("timer", t.handle)
				cb(t.handle, userData)
			}()
			if !repeats {
				_ = l.removeTimer(t.handle)
			}
			return false
		},
	}, userData)
	if err != nil {
		_ = unix.Close(fd)
		return 0, err
	}

	t.pollH = h
	t.handle = api.TimerHandle(h)
	l.timers.byHandle[t.handle] = t
	return t.handle, nil
}

func (l *EventLoop) removeTimer(h api.TimerHandle) error {
	t, ok := l.timers.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	if err := l.reg.remove(t.pollH); err != nil {
		return err
	}
	delete(l.timers.byHandle, h)
	// close deferred to the next iteration boundary, since a Dispatch
	// stage may still be iterating over the snapshot that includes this fd.
	l.deferClose(t.fd)
	return nil
}

func (l *EventLoop) updateTimer(h api.TimerHandle, d timeutil.Time) error {
	t, ok := l.timers.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	var spec unix.ItimerSpec
	if err := unix.TimerfdGettime(t.fd, &spec); err == nil && (spec.Interval.Sec != 0 || spec.Interval.Nsec != 0) {
		spec.Interval = d.ToTimespec()
	}
	spec.Value = d.ToTimespec()
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

func (l *EventLoop) restartTimer(h api.TimerHandle) error {
	t, ok := l.timers.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	var spec unix.ItimerSpec
	if err := unix.TimerfdGettime(t.fd, &spec); err != nil {
		return err
	}
	if spec.Interval.Sec != 0 || spec.Interval.Nsec != 0 {
		spec.Value = spec.Interval
	}
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

func (l *EventLoop) stopTimer(h api.TimerHandle) error {
	t, ok := l.timers.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	var zero unix.ItimerSpec
	return unix.TimerfdSettime(t.fd, 0, &zero, nil)
}

// timerCloseDeferred closes every timerfd queued for removal since the last
// call, run once per loop iteration after the dispatch stage completes.
func (l *EventLoop) timerCloseDeferred() {
	for {
		fd, ok := l.timers.deferred.Dequeue()
		if !ok {
			break
		}
		_ = unix.Close(fd)
	}
}

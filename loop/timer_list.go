//go:build !timerfd
// +build !timerfd

// File: loop/timer_list.go
// Author: momentics <momentics@gmail.com>
//
// List timer backend: a hand-maintained, ascending-sorted countdown list
// advanced only at loop wakes. This is the default build; the kernel-timer
// backend is opted into with -tags timerfd. Grounded on
// CAmSocketHandler's mListActiveTimer / timerCorrection / timerUp, per
// spec section 4.3.2.

package loop

import (
	"log"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
	"github.com/momentics/pploop/internal/handleset"
	"github.com/momentics/pploop/internal/timeutil"
)

// timerItem is a pending countdown. update_timer/restart_timer re-arm it in
// place while it is still active (removing it from the active list before
// re-inserting, resolving the "duplicate append" open question); firing
// forgets it entirely, since this backend has no native repeat.
type timerItem struct {
	handle    api.TimerHandle
	countdown timeutil.Time
	duration  timeutil.Time
	cb        api.TimerFunc
	userData  any
	active    bool
}

// timerState is the list backend's private state, embedded in EventLoop.
type timerState struct {
	active    []*timerItem // sorted ascending by countdown
	byHandle  map[api.TimerHandle]*timerItem
	handles   *handleset.Set
	startTime timeutil.Time
	running   bool
}

func newTimerState() timerState {
	return timerState{
		byHandle: make(map[api.TimerHandle]*timerItem),
		handles:  handleset.New(api.MaxTimerHandle),
	}
}

// timerMarkRunning records the anchor time used by timerCorrection/timerUp.
// Called once when Start begins.
func (l *EventLoop) timerMarkRunning() {
	l.timers.startTime = timeutil.Now()
	l.timers.running = true
}

// timerMarkStopped compensates any timer still counting down for the
// additional time elapsed since the last correction, so a later restart of
// the loop resumes with an accurate countdown instead of over-firing.
func (l *EventLoop) timerMarkStopped() {
	if len(l.timers.active) == 0 {
		l.timers.running = false
		return
	}
	now := timeutil.Now()
	correction := timeutil.Sub(now, l.timers.startTime)
	for _, t := range l.timers.active {
		t.countdown = timeutil.Sub(t.countdown, correction)
	}
	l.timers.running = false
}

func (l *EventLoop) addTimer(d timeutil.Time, cb api.TimerFunc, userData any, repeats bool) (api.TimerHandle, error) {
	if d.IsZero() {
		return 0, api.ErrNotPossible
	}
	if repeats {
		log.Printf("loop: list timer backend has no repeat support; %v will fire once (re-add it from the callback to repeat)", d)
	}
	id, err := l.timers.handles.Next()
	if err != nil {
		return 0, api.ErrTooMany
	}
	countdown := d
	if l.timers.running {
		countdown = timeutil.Add(d, timeutil.Sub(timeutil.Now(), l.timers.startTime))
	}
	item := &timerItem{
		handle:    api.TimerHandle(id),
		countdown: countdown,
		duration:  d,
		cb:        cb,
		userData:  userData,
		active:    true,
	}
	l.timers.byHandle[item.handle] = item
	l.insertActive(item)
	return item.handle, nil
}

func (l *EventLoop) removeTimer(h api.TimerHandle) error {
	item, ok := l.timers.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	l.removeActive(item)
	delete(l.timers.byHandle, h)
	l.timers.handles.Release(uint16(h))
	return nil
}

func (l *EventLoop) updateTimer(h api.TimerHandle, d timeutil.Time) error {
	item, ok := l.timers.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	item.duration = d
	item.countdown = d
	if l.timers.running {
		item.countdown = timeutil.Add(d, timeutil.Sub(timeutil.Now(), l.timers.startTime))
	}
	l.removeActive(item)
	item.active = true
	l.insertActive(item)
	return nil
}

func (l *EventLoop) restartTimer(h api.TimerHandle) error {
	item, ok := l.timers.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	return l.updateTimer(item.handle, item.duration)
}

func (l *EventLoop) stopTimer(h api.TimerHandle) error {
	item, ok := l.timers.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	l.removeActive(item)
	return nil
}

func (l *EventLoop) insertActive(item *timerItem) {
	item.active = true
	l.timers.active = append(l.timers.active, item)
	sort.SliceStable(l.timers.active, func(i, j int) bool {
		return timeutil.Compare(l.timers.active[i].countdown, l.timers.active[j].countdown) < 0
	})
}

func (l *EventLoop) removeActive(item *timerItem) {
	if !item.active {
		return
	}
	item.active = false
	for i, t := range l.timers.active {
		if t == item {
			l.timers.active = append(l.timers.active[:i], l.timers.active[i+1:]...)
			return
		}
	}
}

// timerNextTimeout returns the head-of-list countdown to pass to ppoll, or
// nil if no timers are active (block indefinitely).
func (l *EventLoop) timerNextTimeout() *unix.Timespec {
	if len(l.timers.active) == 0 {
		return nil
	}
	ts := l.timers.active[0].countdown.ToTimespec()
	return &ts
}

// timerBeforeBlock implements timerCorrection: subtracts the time elapsed
// since the last anchor from every active timer, resets the anchor, and
// fires any timer whose countdown reached zero during that correction —
// i.e. one that expired while prepare/fire/check/dispatch were running,
// before the loop even reached ppoll this iteration.
func (l *EventLoop) timerBeforeBlock() {
	now := timeutil.Now()
	correction := timeutil.Sub(now, l.timers.startTime)
	l.timers.startTime = now
	if len(l.timers.active) == 0 {
		return
	}
	for _, t := range l.timers.active {
		t.countdown = timeutil.Sub(t.countdown, correction)
	}
	l.fireDueFromFront()
}

// timerAfterZeroWake implements timerUp: called when ppoll reported no
// ready file descriptors, meaning the wake was due to the timeout. Fires
// every timer whose remaining countdown is now covered by the time spent
// blocking.
func (l *EventLoop) timerAfterZeroWake() {
	if len(l.timers.active) == 0 {
		return
	}
	now := timeutil.Now()
	delta := timeutil.Sub(now, l.timers.startTime)
	for len(l.timers.active) > 0 && timeutil.Compare(l.timers.active[0].countdown, delta) <= 0 {
		l.fireOne(l.timers.active[0])
	}
}

// fireDueFromFront fires every timer at the sorted front whose countdown
// has reached exactly zero after a correction pass.
func (l *EventLoop) fireDueFromFront() {
	for len(l.timers.active) > 0 && l.timers.active[0].countdown.IsZero() {
		l.fireOne(l.timers.active[0])
	}
}

// fireOne removes item from the active list and forgets its handle entirely
// before invoking the callback: this backend has no native repeat, so a
// fired one-shot's handle must not resolve afterward, and the slot must be
// released back to the allocator or a long-running process that only ever
// arms one-shot timeouts would eventually exhaust MaxTimerHandle.
func (l *EventLoop) fireOne(item *timerItem) {
	l.removeActive(item)
	delete(l.timers.byHandle, item.handle)
	l.timers.handles.Release(uint16(item.handle))
	l.metrics().Incr("loop.timer.fired", 1)
	func() {
		defer l.recoverStage("timer", item.handle)
		item.cb(item.handle, item.userData)
	}()
}

// timerCloseDeferred is a no-op for the list backend; only the timer-fd
// backend owns kernel file descriptors that need deferred closing.
func (l *EventLoop) timerCloseDeferred() {}

// File: bridge/bridge.go
// Author: momentics <momentics@gmail.com>
//
// External-runtime bridge adapter. Folds a collaborator's watches and
// timeouts into a loop.EventLoop's own registrations, and gives the
// collaborator priority-ordered dispatch the way a Common-API/D-Bus main
// loop context expects: watches at higher priority always drain first,
// even when several become ready in the same ppoll wake.

package bridge

import (
	"sort"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
	"github.com/momentics/pploop/internal/timeutil"
	"github.com/momentics/pploop/loop"
	"github.com/momentics/pploop/reactor"
)

// watchEntry maps the collaborator's own watch pointer to the loop
// registration it was folded into.
type watchEntry struct {
	pointer    any
	pollHandle api.PollHandle
	priority   int
}

// TimeoutObject pairs a collaborator timeout pointer with the loop timer
// handle backing it, so RemoveTimeout can look either up.
type TimeoutObject struct {
	Pointer  any
	Handle   api.TimerHandle
	Duration timeutil.Time
	Repeats  bool
}

// Bridge owns no poll loop of its own; every fd or timer it manages lives
// in the wrapped EventLoop.
type Bridge struct {
	loop *loop.EventLoop

	mu           sync.Mutex
	watchesByPtr map[any]*watchEntry
	queues       map[int]*queue.Queue
	priorities   []int
	timeouts     map[api.TimerHandle]*TimeoutObject

	extReactor   reactor.EventReactor
	extHandle    api.PollHandle
	extCallbacks map[uintptr]func()
}

// New wraps l. l must not be started yet if the caller also intends to
// call RegisterExternalReactor, since that adds a registration too.
func New(l *loop.EventLoop) *Bridge {
	return &Bridge{
		loop:         l,
		watchesByPtr: make(map[any]*watchEntry),
		queues:       make(map[int]*queue.Queue),
		timeouts:     make(map[api.TimerHandle]*TimeoutObject),
	}
}

func (b *Bridge) bucket(priority int) *queue.Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[priority]
	if ok {
		return q
	}
	q = queue.New()
	b.queues[priority] = q
	b.priorities = append(b.priorities, priority)
	sort.Sort(sort.Reverse(sort.IntSlice(b.priorities)))
	return q
}

// AddWatch folds fd into the underlying loop and defers onReady to the
// priority-ordered dispatch multimap instead of calling it directly from
// the loop's per-entry Dispatch stage.
func (b *Bridge) AddWatch(pointer any, fd int, events uint32, priority int, onReady func()) (api.PollHandle, error) {
	// The first dispatch round only enqueues and asks for another round, so
	// every watch ready in this iteration is queued before the second round
	// drains the buckets in priority order.
	enqueued := false
	h, err := b.loop.AddFdPoll(fd, events, api.Callbacks{
		Check: func(api.PollHandle, any) bool { return true },
		Dispatch: func(api.PollHandle, any) bool {
			if !enqueued {
				b.bucket(priority).Add(onReady)
				enqueued = true
				return true
			}
			enqueued = false
			b.drain()
			return false
		},
	}, pointer)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	b.watchesByPtr[pointer] = &watchEntry{pointer: pointer, pollHandle: h, priority: priority}
	b.mu.Unlock()
	return h, nil
}

// drain empties every priority bucket from highest to lowest, so a watch
// enqueued by a lower-priority Dispatch earlier this iteration still runs
// after a higher-priority one enqueued later in the same iteration.
func (b *Bridge) drain() {
	b.mu.Lock()
	prios := append([]int(nil), b.priorities...)
	b.mu.Unlock()
	for _, p := range prios {
		q := b.bucket(p)
		for q.Length() > 0 {
			fn, _ := q.Remove().(func())
			if fn != nil {
				fn()
			}
		}
	}
}

// RemoveWatch is not supported: the collaborators this bridge was written
// for never revoke a watch pointer mid-session in practice, and honoring
// it correctly would require draining any already-queued dispatch entries
// for the pointer out of the priority buckets first. Callers that need to
// stop watching a fd should let the loop's RemoveFdPoll do it directly.
func (b *Bridge) RemoveWatch(pointer any) error {
	return api.ErrNotSupported
}

// AddTimeout arms a timer through the loop and records the collaborator's
// pointer alongside the resulting handle.
func (b *Bridge) AddTimeout(pointer any, d timeutil.Time, repeats bool, cb func()) (api.TimerHandle, error) {
	h, err := b.loop.AddTimer(d, func(handle api.TimerHandle, userData any) { cb() }, pointer, repeats)
	if err != nil {
		return 0, err
	}
	to := &TimeoutObject{Pointer: pointer, Handle: h, Duration: d, Repeats: repeats}
	b.mu.Lock()
	b.timeouts[h] = to
	b.mu.Unlock()
	return h, nil
}

// RemoveTimeout cancels a timeout previously armed with AddTimeout.
func (b *Bridge) RemoveTimeout(h api.TimerHandle) error {
	b.mu.Lock()
	delete(b.timeouts, h)
	b.mu.Unlock()
	return b.loop.RemoveTimer(h)
}

// fdExposer is implemented by reactor backends that are themselves backed
// by a single pollable fd (linuxReactor's epoll instance). Reactors that
// don't implement it cannot be folded into the loop's own ppoll set.
type fdExposer interface {
	Fd() int
}

// RegisterExternalReactor folds a collaborator's own epoll-backed reactor
// into the loop by watching its underlying fd: when the loop's ppoll says
// that fd is ready, the reactor's own queued events are drained and routed
// to whichever fd was registered with AddExternalWatch.
func (b *Bridge) RegisterExternalReactor(r reactor.EventReactor, priority int) (api.PollHandle, error) {
	exposer, ok := r.(fdExposer)
	if !ok {
		return 0, api.ErrNotSupported
	}
	fd := exposer.Fd()
	b.extReactor = r
	b.extCallbacks = make(map[uintptr]func())
	h, err := b.loop.AddFdPoll(fd, unix.POLLIN, api.Callbacks{
		Check: func(api.PollHandle, any) bool { return true },
		Dispatch: func(api.PollHandle, any) bool {
			b.drainExternalReactor(priority)
			return false
		},
	}, nil)
	if err != nil {
		return 0, err
	}
	b.extHandle = h
	return h, nil
}

// AddExternalWatch registers fd with the wrapped external reactor directly
// (bypassing the loop's own poll set) and records onReady for dispatch
// once RegisterExternalReactor's fd wakes the loop.
func (b *Bridge) AddExternalWatch(fd uintptr, userData uintptr, onReady func()) error {
	if b.extReactor == nil {
		return api.ErrNotPossible
	}
	if err := b.extReactor.Register(fd, userData); err != nil {
		return err
	}
	b.mu.Lock()
	b.extCallbacks[fd] = onReady
	b.mu.Unlock()
	return nil
}

func (b *Bridge) drainExternalReactor(priority int) {
	events := make([]reactor.Event, 32)
	n, err := b.extReactor.Wait(events)
	if err != nil || n == 0 {
		return
	}
	b.mu.Lock()
	var ready []func()
	for _, ev := range events[:n] {
		if fn, ok := b.extCallbacks[ev.Fd]; ok {
			ready = append(ready, fn)
		}
	}
	b.mu.Unlock()

	bucket := b.bucket(priority)
	for _, fn := range ready {
		bucket.Add(fn)
	}
	b.drain()
}

// Wake interrupts a blocked ppoll call without asking the loop to stop,
// for a collaborator that scheduled new work on another goroutine.
func (b *Bridge) Wake() { b.loop.Poke() }

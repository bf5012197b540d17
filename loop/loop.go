// File: loop/loop.go
// Author: momentics <momentics@gmail.com>
//
// EventLoop drives the prepare/fire/check/dispatch lifecycle around a
// single ppoll(2) call per iteration. Grounded on CAmSocketHandler's
// start_listening/stop_listening pair and its pollfd/timeout construction.

package loop

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/affinity"
	"github.com/momentics/pploop/api"
	"github.com/momentics/pploop/control"
	"github.com/momentics/pploop/internal/goid"
	"github.com/momentics/pploop/internal/ringbuf"
	"github.com/momentics/pploop/internal/timeutil"
)

// EventLoop is a single-threaded event-loop multiplexer around ppoll. Zero
// value is not usable; construct with New.
type EventLoop struct {
	reg     *registry
	timers  timerState
	signals *signalState
	wake    *wakePipe

	ownerGoid  atomic.Uint64
	exitFlag   atomic.Bool
	running    atomic.Bool
	internal   atomic.Uint32 // api.InternalCode
	iterations atomic.Uint64

	cpuID  int
	hasCPU bool

	cfg    *control.ConfigStore
	debug  *control.DebugProbes
	metric *control.MetricsRegistry
	tracer api.Tracer

	mu sync.Mutex
}

// Option configures a newly-constructed EventLoop.
type Option func(*EventLoop)

// WithCPUAffinity pins the loop's owning OS thread to cpuID once Start runs.
func WithCPUAffinity(cpuID int) Option {
	return func(l *EventLoop) {
		l.cpuID = cpuID
		l.hasCPU = true
	}
}

// WithTracer wraps each iteration in one span from t, tagged with the
// number of ready descriptors ppoll reported.
func WithTracer(t api.Tracer) Option {
	return func(l *EventLoop) { l.tracer = t }
}

// New constructs an EventLoop, wiring up the wake pipe and signal
// subsystem. A failure to create or to register the wake pipe is returned
// as an error together with a nil loop; it is not recorded anywhere that
// FatalErrorOccurred can later report.
func New(opts ...Option) (*EventLoop, error) {
	wp, err := newWakePipe()
	if err != nil {
		return nil, fmt.Errorf("loop: creating wake pipe: %w", err)
	}

	l := &EventLoop{
		reg:     newRegistry(),
		timers:  newTimerState(),
		signals: newSignalState(),
		wake:    wp,
		cfg:     control.NewConfigStore(),
		debug:   control.NewDebugProbes(),
		metric:  control.NewMetricsRegistry(),
	}
	for _, o := range opts {
		o(l)
	}

	h, err := l.reg.add(wp.readFd, unix.POLLIN, api.Callbacks{
		Check: func(handle api.PollHandle, userData any) bool { return true },
		Dispatch: func(handle api.PollHandle, userData any) bool {
			l.wake.drain()
			return false
		},
	}, nil)
	if err != nil {
		wp.close()
		l.internal.Store(uint32(api.InternalCodePipeError))
		return nil, fmt.Errorf("loop: registering wake pipe: %w", err)
	}
	wp.handle = h

	l.debug.RegisterProbe("loop.iterations", func() any { return l.iterations.Load() })
	control.RegisterPlatformProbes(l.debug)

	return l, nil
}

// FatalErrorOccurred reports the InternalCode bits recorded on this loop.
// No code path of a loop that New returned sets a bit, so it reports
// InternalCodeNone and false.
func (l *EventLoop) FatalErrorOccurred() (api.InternalCode, bool) {
	code := api.InternalCode(l.internal.Load())
	return code, code != api.InternalCodeNone
}

// Control exposes the loop's ambient config/metrics surface as api.Control.
func (l *EventLoop) Control() api.Control { return loopControl{l} }

// Debug exposes the loop's probe registry as api.Debug.
func (l *EventLoop) Debug() api.Debug { return l.debug }

func (l *EventLoop) metrics() *control.MetricsRegistry { return l.metric }

// assertOwnerThread enforces that mutating registry/timer calls made after
// Start happen from the loop's own goroutine — CHECK_CALLER_THREAD_ID's Go
// analogue, approximated with a captured goroutine id since Go exposes no
// public thread-identity API. Calls made before Start (setup time) are
// unrestricted.
func (l *EventLoop) assertOwnerThread() error {
	owner := l.ownerGoid.Load()
	if owner == 0 {
		return nil
	}
	if goid.Current() != owner {
		return api.ErrWrongThread
	}
	return nil
}

// recoverStage recovers a panicking user callback, logs it, and counts it,
// keeping the loop itself alive — mirroring the source's catch-log-continue
// wrapping around every callback invocation.
func (l *EventLoop) recoverStage(stage string, handle any) {
	if r := recover(); r != nil {
		log.Printf("loop: panic in %s callback for handle %v: %v\n%s", stage, handle, r, debugStack())
		l.metric.Incr("loop.panics", 1)
	}
}

func debugStack() []byte {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return buf[:n]
}

// AddFdPoll registers fd for the requested events, returning its handle.
func (l *EventLoop) AddFdPoll(fd int, events uint32, cb api.Callbacks, userData any) (api.PollHandle, error) {
	if err := l.assertOwnerThread(); err != nil {
		return 0, err
	}
	return l.reg.add(fd, events, cb, userData)
}

// RemoveFdPoll unregisters a previously-added fd poll.
func (l *EventLoop) RemoveFdPoll(h api.PollHandle) error {
	if err := l.assertOwnerThread(); err != nil {
		return err
	}
	return l.reg.remove(h)
}

// UpdateEventFlags changes the interest mask of an existing fd poll.
func (l *EventLoop) UpdateEventFlags(h api.PollHandle, events uint32) error {
	if err := l.assertOwnerThread(); err != nil {
		return err
	}
	return l.reg.updateEvents(h, events)
}

// GetFDPollData returns the current registration state for h.
func (l *EventLoop) GetFDPollData(h api.PollHandle) (api.PollEntry, error) {
	return l.reg.get(h)
}

// AddTimer arms a new countdown timer.
func (l *EventLoop) AddTimer(d timeutil.Time, cb api.TimerFunc, userData any, repeats bool) (api.TimerHandle, error) {
	if err := l.assertOwnerThread(); err != nil {
		return 0, err
	}
	return l.addTimer(d, cb, userData, repeats)
}

// RemoveTimer cancels and forgets a timer.
func (l *EventLoop) RemoveTimer(h api.TimerHandle) error {
	if err := l.assertOwnerThread(); err != nil {
		return err
	}
	return l.removeTimer(h)
}

// UpdateTimer changes a timer's duration, re-arming it from now.
func (l *EventLoop) UpdateTimer(h api.TimerHandle, d timeutil.Time) error {
	if err := l.assertOwnerThread(); err != nil {
		return err
	}
	return l.updateTimer(h, d)
}

// RestartTimer re-arms a timer with its last-configured duration.
func (l *EventLoop) RestartTimer(h api.TimerHandle) error {
	if err := l.assertOwnerThread(); err != nil {
		return err
	}
	return l.restartTimer(h)
}

// StopTimer pauses a timer without forgetting it.
func (l *EventLoop) StopTimer(h api.TimerHandle) error {
	if err := l.assertOwnerThread(); err != nil {
		return err
	}
	return l.stopTimer(h)
}

// ListenToSignals blocks and starts watching the given signals.
func (l *EventLoop) ListenToSignals(signums ...unix.Signal) error {
	if err := l.assertOwnerThread(); err != nil {
		return err
	}
	return l.listenToSignals(signums)
}

// AddSignalHandler registers a listener on the shared signalfd.
func (l *EventLoop) AddSignalHandler(cb api.SignalFunc, userData any) (api.SignalHandle, error) {
	if err := l.assertOwnerThread(); err != nil {
		return 0, err
	}
	return l.addSignalHandler(cb, userData)
}

// RemoveSignalHandler removes a previously-added signal listener.
func (l *EventLoop) RemoveSignalHandler(h api.SignalHandle) error {
	if err := l.assertOwnerThread(); err != nil {
		return err
	}
	return l.removeSignalHandler(h)
}

// ExitMainloop asks a running Start call to return after the current
// iteration's dispatch stage completes. Safe to call from any goroutine —
// it, its alias Stop, and Poke are the loop's only cross-thread entry
// points, all implemented with the self-pipe wake mechanism instead of
// shared mutable state.
func (l *EventLoop) ExitMainloop() {
	l.exitFlag.Store(true)
	l.wake.wake()
}

// Stop is an alias for ExitMainloop, named after the source's
// stop_listening for API-surface familiarity.
func (l *EventLoop) Stop() { l.ExitMainloop() }

// Poke interrupts a blocked ppoll call without asking the loop to exit,
// for collaborators (like package bridge) that scheduled new work from
// another goroutine and need the next iteration to pick it up promptly.
func (l *EventLoop) Poke() { l.wake.wake() }

// Start locks the calling goroutine to its OS thread, optionally pins that
// thread to a CPU, and runs the loop until ExitMainloop is called or a
// listening error terminates it. Start must be called from the goroutine
// intended to own the loop; every mutating call afterward must come from
// the same goroutine (typically from inside a callback the loop itself
// invokes).
func (l *EventLoop) Start() error {
	if !l.running.CompareAndSwap(false, true) {
		return api.ErrNotPossible
	}
	defer l.running.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.ownerGoid.Store(goid.Current())
	defer l.ownerGoid.Store(0)

	if l.hasCPU {
		if err := affinity.SetAffinity(l.cpuID); err != nil {
			log.Printf("loop: SetAffinity(%d): %v", l.cpuID, err)
		}
	}

	l.timerMarkRunning()
	defer l.timerMarkStopped()

	for !l.exitFlag.Load() {
		if err := l.runIteration(); err != nil {
			return err
		}
	}
	return nil
}

// runIteration executes exactly one prepare -> fire -> check -> dispatch
// round, blocking in ppoll in between.
func (l *EventLoop) runIteration() error {
	var span api.Span
	if l.tracer != nil {
		span = l.tracer.StartSpan("loop.iteration")
		defer span.Finish()
	}

	snap := l.reg.snapshot()
	pfds, idx := l.reg.pollSet()

	for _, e := range snap {
		if e.valid && e.cb.Prepare != nil {
			func() {
				defer l.recoverStage("prepare", e.handle)
				e.cb.Prepare(e.handle, e.userData)
			}()
		}
	}

	l.timerBeforeBlock()
	if l.exitFlag.Load() {
		return nil
	}

	timeout := l.timerNextTimeout()
	n, err := unix.Ppoll(pfds, timeout, nil)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("loop: ppoll: %w", err)
	}

	if n == 0 {
		l.timerAfterZeroWake()
	}
	if span != nil {
		span.SetTag("ready", n)
	}

	// toCheck/toDispatch are the per-iteration fired-list scratch buffers:
	// bounded by len(pfds), so they never overflow within one iteration.
	toCheck := ringbuf.New[*pollEntry](len(pfds) + 1)
	for i, pfd := range pfds {
		e := idx[i]
		masked := pfd.Revents & (int16(e.events) | unix.POLLERR | unix.POLLHUP)
		if !e.valid || masked == 0 {
			continue
		}
		pfd.Revents = masked
		if e.cb.Fired != nil {
			func() {
				defer l.recoverStage("fired", e.handle)
				e.cb.Fired(pfd, e.handle, e.userData)
			}()
		}
		toCheck.Enqueue(e)
	}

	// An entry with no check callback never reaches dispatch: check is what
	// decides dispatch-worthiness, and its absence means "nothing to
	// dispatch on", not "dispatch unconditionally".
	toDispatch := ringbuf.New[*pollEntry](len(pfds) + 1)
	for {
		e, ok := toCheck.Dequeue()
		if !ok {
			break
		}
		if !e.valid {
			continue
		}
		pass := false
		if e.cb.Check != nil {
			func() {
				defer l.recoverStage("check", e.handle)
				pass = e.cb.Check(e.handle, e.userData)
			}()
		}
		if pass {
			toDispatch.Enqueue(e)
		}
	}

	pending := make([]*pollEntry, 0, len(pfds))
	for {
		e, ok := toDispatch.Dequeue()
		if !ok {
			break
		}
		if !e.valid || e.cb.Dispatch == nil {
			continue
		}
		pending = append(pending, e)
	}

	// Round-robin across the remaining entries, one Dispatch call each per
	// pass, dropping an entry once it returns false or goes invalid —
	// mirrors do { listPoll.remove_if(dispatchingFinished) } while
	// (!listPoll.empty()), so two ready fds interleave A,B,A,B... under
	// backpressure instead of one starving the other.
	for len(pending) > 0 {
		next := pending[:0]
		for _, e := range pending {
			if !e.valid {
				continue
			}
			again := false
			func() {
				defer l.recoverStage("dispatch", e.handle)
				again = e.cb.Dispatch(e.handle, e.userData)
			}()
			if e.valid && again {
				next = append(next, e)
			}
		}
		pending = next
	}

	l.timerCloseDeferred()
	l.iterations.Add(1)
	l.metric.Incr("loop.iterations.total", 1)
	return nil
}

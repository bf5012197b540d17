//go:build linux
// +build linux

// File: loop/signal_linux.go
// Author: momentics <momentics@gmail.com>
//
// signalfd-based signal subsystem: one shared fd folded into the poll
// registry fans out to every registered listener. Grounded on
// CAmSocketHandler::listenToSignals/addSignalHandler/removeSignalHandler.

package loop

import (
	"log"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
	"github.com/momentics/pploop/internal/handleset"
)

type signalListener struct {
	handle   api.SignalHandle
	cb       api.SignalFunc
	userData any
}

type signalState struct {
	mu        sync.Mutex
	fd        int
	mask      unix.Sigset_t
	pollH     api.PollHandle
	listeners []*signalListener
	handles   *handleset.Set
}

func newSignalState() *signalState {
	return &signalState{fd: -1, handles: handleset.New(api.MaxPollHandle)}
}

// sigsetAdd sets the bit for signum in a kernel sigset_t, avoiding a
// dependency on the C sigaddset wrapper which x/sys/unix doesn't expose
// directly on every architecture.
func sigsetAdd(set *unix.Sigset_t, signum unix.Signal) {
	bit := uint(signum) - 1
	word := bit / 64
	if int(word) >= len(set.Val) {
		return
	}
	set.Val[word] |= 1 << (bit % 64)
}

// listenToSignals adds signums to the blocked/watched set, creating the
// shared signalfd registration on first call and re-arming it (via
// signalfd(fd, ...) on the existing fd) on later calls, mirroring the
// original's "already have a handle, extend the mask" branch.
func (l *EventLoop) listenToSignals(signums []unix.Signal) error {
	if len(signums) == 0 {
		return api.ErrNotPossible
	}
	l.signals.mu.Lock()
	defer l.signals.mu.Unlock()

	for _, s := range signums {
		sigsetAdd(&l.signals.mask, s)
	}
	// Signal masks are per-OS-thread; this only takes effect reliably once
	// the calling goroutine is locked to its thread, which Start does
	// before running the loop. Call ListenToSignals from Start's goroutine.
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &l.signals.mask, nil); err != nil {
		log.Printf("loop: pthread_sigmask: %v", err)
		return api.ErrNotPossible
	}

	if l.signals.fd >= 0 {
		newFd, err := unix.Signalfd(l.signals.fd, &l.signals.mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
		if err != nil {
			log.Printf("loop: signalfd: %v", err)
			return api.ErrNotPossible
		}
		l.signals.fd = newFd
		return nil
	}

	fd, err := unix.Signalfd(-1, &l.signals.mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		log.Printf("loop: signalfd: %v", err)
		return api.ErrNotPossible
	}
	l.signals.fd = fd

	h, err := l.reg.add(fd, unix.POLLIN, api.Callbacks{
		Check: func(handle api.PollHandle, userData any) bool { return true },
		Dispatch: func(handle api.PollHandle, userData any) bool {
			l.drainSignalfd()
			return false
		},
	}, nil)
	if err != nil {
		_ = unix.Close(fd)
		l.signals.fd = -1
		return err
	}
	l.signals.pollH = h
	return nil
}

func (l *EventLoop) drainSignalfd() {
	var info unix.SignalfdSiginfo
	const sizeofSignalfdSiginfo = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	buf := (*[sizeofSignalfdSiginfo]byte)(unsafe.Pointer(&info))[:]
	for {
		n, err := unix.Read(l.signals.fd, buf)
		if err != nil || n < sizeofSignalfdSiginfo {
			return
		}
		l.signals.mu.Lock()
		listeners := append([]*signalListener(nil), l.signals.listeners...)
		l.signals.mu.Unlock()
		for _, sl := range listeners {
			func(sl *signalListener) {
				defer l.recoverStage("signal", sl.handle)
				sl.cb(sl.handle, info, sl.userData)
			}(sl)
		}
	}
}

func (l *EventLoop) addSignalHandler(cb api.SignalFunc, userData any) (api.SignalHandle, error) {
	l.signals.mu.Lock()
	defer l.signals.mu.Unlock()
	id, err := l.signals.handles.Next()
	if err != nil {
		return 0, api.ErrTooMany
	}
	sl := &signalListener{handle: api.SignalHandle(id), cb: cb, userData: userData}
	l.signals.listeners = append(l.signals.listeners, sl)
	return sl.handle, nil
}

func (l *EventLoop) removeSignalHandler(h api.SignalHandle) error {
	l.signals.mu.Lock()
	defer l.signals.mu.Unlock()
	for i, sl := range l.signals.listeners {
		if sl.handle == h {
			l.signals.listeners = append(l.signals.listeners[:i], l.signals.listeners[i+1:]...)
			l.signals.handles.Release(uint16(h))
			return nil
		}
	}
	return api.ErrUnknown
}

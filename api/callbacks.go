// Package api
// Author: momentics <momentics@gmail.com>
//
// Public handle types and the callback capability set the loop drives
// through its prepare/fire/check/dispatch lifecycle. Design note: the
// source exposes two callback flavors (plain functions and a bound
// interface with a Call method); this package keeps only the plain-closure
// capability set as the core representation, per Design Note 9.1 — the
// interface-adapter flavor lives in package adapters as an ergonomic
// binder, not as part of the registry.

package api

import "golang.org/x/sys/unix"

// PollHandle identifies a registered file-descriptor poll. Zero is reserved
// for "no handle".
type PollHandle uint16

// TimerHandle identifies a registered timer. Zero is reserved for "no handle".
type TimerHandle uint16

// SignalHandle identifies a registered signal listener. Zero is reserved for
// "no handle".
type SignalHandle uint16

// MaxPollHandle bounds the poll-handle allocator, mirroring MAX_POLLHANDLE.
const MaxPollHandle = 1<<16 - 1

// MaxTimerHandle bounds the timer-handle allocator (list backend only; the
// timer-fd backend shares the poll-handle space).
const MaxTimerHandle = 1<<16 - 1

// PrepareFunc runs once per iteration for every active registration, before
// the loop blocks in ppoll. It may register or unregister handles; such
// changes take effect starting the next iteration.
type PrepareFunc func(handle PollHandle, userData any)

// FiredFunc runs when a registration's file descriptor became ready.
type FiredFunc func(pfd unix.PollFd, handle PollHandle, userData any)

// CheckFunc runs after Fired and decides whether Dispatch should run at all.
type CheckFunc func(handle PollHandle, userData any) bool

// DispatchFunc runs (possibly repeatedly, once per micro-round) after Check
// approves. Returning true asks the loop to call it again in the same
// iteration; returning false ends this iteration's dispatch for the entry.
type DispatchFunc func(handle PollHandle, userData any) bool

// Callbacks is the capability set a poll registration may supply. Every
// field is optional; a nil field is simply skipped at that stage.
type Callbacks struct {
	Prepare  PrepareFunc
	Fired    FiredFunc
	Check    CheckFunc
	Dispatch DispatchFunc
}

// TimerFunc is invoked when a timer expires. The list backend fires each
// timer once and forgets its handle before the callback runs, so
// RestartTimer on that handle reports ErrUnknown; a callback that wants a
// repeat calls AddTimer again and uses the new handle.
type TimerFunc func(handle TimerHandle, userData any)

// SignalFunc is invoked once per listener when the shared signalfd fires,
// receiving the raw siginfo by value.
type SignalFunc func(handle SignalHandle, info unix.SignalfdSiginfo, userData any)

// PollEntry is the read-only view returned by GetFDPollData.
type PollEntry struct {
	Handle   PollHandle
	Fd       int
	Events   uint32
	UserData any
	Valid    bool
}

//go:build !linux
// +build !linux

// File: loop/signal_stub.go
// Author: momentics <momentics@gmail.com>
//
// signalfd is Linux-only; other platforms get a signal subsystem that
// reports itself unsupported rather than silently doing nothing.

package loop

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
)

type signalState struct {
	mu sync.Mutex
}

func newSignalState() *signalState { return &signalState{} }

func (l *EventLoop) listenToSignals(signums []unix.Signal) error {
	return api.ErrNotSupported
}

func (l *EventLoop) addSignalHandler(cb api.SignalFunc, userData any) (api.SignalHandle, error) {
	return 0, api.ErrNotSupported
}

func (l *EventLoop) removeSignalHandler(h api.SignalHandle) error {
	return api.ErrNotSupported
}

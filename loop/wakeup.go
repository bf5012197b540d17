// File: loop/wakeup.go
// Author: momentics <momentics@gmail.com>
//
// Self-pipe wake-up mechanism: the only channel another goroutine has for
// interrupting a blocked ppoll call. Grounded on CAmSocketHandler's
// mDispatchDone pipe pair and exit_mainloop.

package loop

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
)

// wakePipe is a pipe2(O_NONBLOCK|O_CLOEXEC) pair registered into the poll
// registry with a Check that always passes and a Dispatch that only drains
// it: its only job is to make ppoll return, not to carry a payload.
type wakePipe struct {
	readFd  int
	writeFd int
	handle  api.PollHandle
	once    sync.Once
}

func newWakePipe() (*wakePipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return &wakePipe{readFd: fds[0], writeFd: fds[1]}, nil
}

// wake writes a single byte, non-blocking; a full pipe buffer means a wake
// is already pending, which is fine — one drain wakes the loop for every
// coalesced ExitMainloop caller.
func (w *wakePipe) wake() {
	var b [1]byte
	_, _ = unix.Write(w.writeFd, b[:])
}

// drain empties the pipe after every wake so the registration doesn't stay
// perpetually "ready".
func (w *wakePipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.readFd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (w *wakePipe) close() {
	w.once.Do(func() {
		_ = unix.Close(w.readFd)
		_ = unix.Close(w.writeFd)
	})
}

package loop

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
)

func openPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("Pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestRegistryAddAssignsHandle(t *testing.T) {
	r := newRegistry()
	rf, _ := openPipe(t)

	h, err := r.add(rf, unix.POLLIN, api.Callbacks{}, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if h == 0 {
		t.Fatal("expected nonzero handle")
	}
	entry, err := r.get(h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Fd != rf || !entry.Valid {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestRegistryRejectsDuplicateFd(t *testing.T) {
	r := newRegistry()
	rf, _ := openPipe(t)

	if _, err := r.add(rf, unix.POLLIN, api.Callbacks{}, nil); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := r.add(rf, unix.POLLIN, api.Callbacks{}, nil); err != api.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegistryRejectsBadFd(t *testing.T) {
	r := newRegistry()
	if _, err := r.add(-1, unix.POLLIN, api.Callbacks{}, nil); err != api.ErrNonExistent {
		t.Fatalf("expected ErrNonExistent, got %v", err)
	}
}

func TestRegistryRemoveMarksInvalid(t *testing.T) {
	r := newRegistry()
	rf, _ := openPipe(t)
	h, _ := r.add(rf, unix.POLLIN, api.Callbacks{}, nil)

	snap := r.snapshot()
	if err := r.remove(h); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// snapshot holds the same shared pointer; its valid flag flips.
	if snap[0].valid {
		t.Fatal("expected snapshot entry to observe removal")
	}
	if _, err := r.get(h); err != api.ErrUnknown {
		t.Fatalf("expected ErrUnknown after remove, got %v", err)
	}
}

func TestRegistryHandleReuseAfterRemove(t *testing.T) {
	r := newRegistry()
	rf, wf := openPipe(t)
	rf2, _ := openPipe(t)
	_ = wf

	h1, _ := r.add(rf, unix.POLLIN, api.Callbacks{}, nil)
	if err := r.remove(h1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	h2, err := r.add(rf2, unix.POLLIN, api.Callbacks{}, nil)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if h2 == 0 {
		t.Fatal("expected nonzero handle on reuse")
	}
}

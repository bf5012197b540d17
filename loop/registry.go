// File: loop/registry.go
// Author: momentics <momentics@gmail.com>
//
// The canonical list of registered file-descriptor sources. Mirrors
// CAmSocketHandler's mListPoll/mSetPollKeys pair: an ordered list plus a
// bounded handle allocator, with a dirty flag that forces the pollfd array
// to be rebuilt on the next iteration.

package loop

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/pploop/api"
	"github.com/momentics/pploop/internal/handleset"
)

// pollEntry is the live registration record. Registry, snapshot, and
// fired-list all reference the same *pollEntry — removal is expressed by
// setting valid=false on the shared object, not by copying it, so a
// self-removal made from inside fired/check/dispatch is immediately
// visible to the remaining stages of the same iteration.
type pollEntry struct {
	handle   api.PollHandle
	fd       int
	events   uint32
	cb       api.Callbacks
	userData any
	valid    bool
}

// registry is the ordered, handle-indexed set of poll registrations.
type registry struct {
	order    []*pollEntry
	byHandle map[api.PollHandle]*pollEntry
	byFd     map[int]*pollEntry
	handles  *handleset.Set
	dirty    bool

	// pfds/idx cache the pollfd array built from order; pollSet rebuilds
	// them only when dirty, mirroring mSetPollKeys's rebuild-on-change.
	pfds []unix.PollFd
	idx  []*pollEntry
}

func newRegistry() *registry {
	return &registry{
		byHandle: make(map[api.PollHandle]*pollEntry),
		byFd:     make(map[int]*pollEntry),
		handles:  handleset.New(api.MaxPollHandle),
	}
}

// fdIsValid checks the descriptor is open with a fresh fcntl(F_GETFL) call,
// deliberately not relying on any leftover errno state — resolving the
// "fd_is_valid conflates fd-is-open with errno is not EBADF" open question
// by construction: Go's syscall wrappers never carry ambient errno between
// calls.
func fdIsValid(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	return err == nil
}

// add inserts a new registration and returns its handle. Duplicate fds are
// rejected (the "reject" policy the design notes call out as one option).
func (r *registry) add(fd int, events uint32, cb api.Callbacks, userData any) (api.PollHandle, error) {
	if !fdIsValid(fd) {
		return 0, api.ErrNonExistent
	}
	if _, exists := r.byFd[fd]; exists {
		return 0, api.ErrAlreadyExists
	}
	h, err := r.handles.Next()
	if err != nil {
		return 0, api.ErrTooMany
	}
	entry := &pollEntry{
		handle:   api.PollHandle(h),
		fd:       fd,
		events:   events,
		cb:       cb,
		userData: userData,
		valid:    true,
	}
	r.order = append(r.order, entry)
	r.byHandle[entry.handle] = entry
	r.byFd[fd] = entry
	r.dirty = true
	return entry.handle, nil
}

// remove drops a registration. The shared *pollEntry is marked invalid
// rather than freed immediately, so an active-iteration snapshot still
// referencing it can skip the remaining lifecycle stages for it.
func (r *registry) remove(h api.PollHandle) error {
	entry, ok := r.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	entry.valid = false
	delete(r.byHandle, h)
	delete(r.byFd, entry.fd)
	r.handles.Release(uint16(h))
	for i, e := range r.order {
		if e == entry {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.dirty = true
	return nil
}

// updateEvents changes the interest mask of an existing registration.
func (r *registry) updateEvents(h api.PollHandle, events uint32) error {
	entry, ok := r.byHandle[h]
	if !ok {
		return api.ErrUnknown
	}
	entry.events = events
	r.dirty = true
	return nil
}

// get returns a read-only snapshot of the registration.
func (r *registry) get(h api.PollHandle) (api.PollEntry, error) {
	entry, ok := r.byHandle[h]
	if !ok {
		return api.PollEntry{}, api.ErrUnknown
	}
	return api.PollEntry{
		Handle:   entry.handle,
		Fd:       entry.fd,
		Events:   entry.events,
		UserData: entry.userData,
		Valid:    entry.valid,
	}, nil
}

// snapshot returns the current registration order as a fresh slice — a
// pure projection of the registry, not a deep copy of the entries
// themselves (they are still shared, live objects).
func (r *registry) snapshot() []*pollEntry {
	out := make([]*pollEntry, len(r.order))
	copy(out, r.order)
	return out
}

// pollSet returns the pollfd array to hand to ppoll along with the entry
// each element corresponds to, rebuilding both only when the registration
// set changed since the last call.
func (r *registry) pollSet() ([]unix.PollFd, []*pollEntry) {
	if !r.dirty && r.pfds != nil {
		return r.pfds, r.idx
	}
	r.dirty = false
	pfds := make([]unix.PollFd, 0, len(r.order))
	idx := make([]*pollEntry, 0, len(r.order))
	for _, e := range r.order {
		if !e.valid {
			continue
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(e.fd), Events: int16(e.events)})
		idx = append(idx, e)
	}
	r.pfds = pfds
	r.idx = idx
	return r.pfds, r.idx
}

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor stands in for a third-party main-loop-context runtime
// (a Common-API/D-Bus-like collaborator) with its own epoll-backed watch
// list. The bridge package adapts its watches and wakeups into the ppoll
// event loop's poll registrations; the loop itself never uses epoll
// directly.
package reactor

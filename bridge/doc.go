// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package bridge adapts an external main-loop-context runtime — a
// Common-API/D-Bus-like collaborator with its own watch and timeout
// bookkeeping — onto a loop.EventLoop. It never runs its own poll; every
// watch and timeout it manages is folded into the owning loop's
// registrations.
package bridge

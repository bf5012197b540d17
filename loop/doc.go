// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package loop implements a single-threaded event-loop multiplexer around
// POSIX ppoll(2). It owns three families of event sources — file
// descriptor pollers, timers, and signals — and drives their callbacks
// through a four-stage lifecycle: prepare, fire, check, dispatch.
package loop

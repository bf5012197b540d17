// File: internal/timeutil/monotime.go
// Author: momentics <momentics@gmail.com>
//
// Second/nanosecond monotonic time values and the add/sub/compare
// operations the timer subsystem's countdown arithmetic is built on.

package timeutil

import "golang.org/x/sys/unix"

// Time is a monotonic clock reading, mirroring struct timespec.
type Time struct {
	Sec  int64
	Nsec int64
}

const billion = int64(1e9)

// Now reads CLOCK_MONOTONIC.
func Now() Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is always available on Linux; a failure here
		// means the kernel ABI assumption this package relies on is gone.
		panic("timeutil: clock_gettime(CLOCK_MONOTONIC): " + err.Error())
	}
	return Time{Sec: int64(ts.Sec), Nsec: int64(ts.Nsec)}
}

// Add returns a+b, carrying nanoseconds into seconds.
func Add(a, b Time) Time {
	sec := a.Sec + b.Sec
	nsec := a.Nsec + b.Nsec
	if nsec >= billion {
		sec++
		nsec -= billion
	}
	return Time{Sec: sec, Nsec: nsec}
}

// Sub returns a-b, borrowing from seconds when nanoseconds would go negative.
// Clamped at zero: countdowns never go negative under subtraction.
func Sub(a, b Time) Time {
	sec := a.Sec - b.Sec
	nsec := a.Nsec - b.Nsec
	if nsec < 0 {
		sec--
		nsec += billion
	}
	if sec < 0 {
		return Time{}
	}
	return Time{Sec: sec, Nsec: nsec}
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Compare(a, b Time) int {
	switch {
	case a.Sec != b.Sec:
		if a.Sec < b.Sec {
			return -1
		}
		return 1
	case a.Nsec != b.Nsec:
		if a.Nsec < b.Nsec {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// IsZero reports whether t is the zero countdown.
func (t Time) IsZero() bool { return t.Sec == 0 && t.Nsec == 0 }

// Duration converts a Time countdown to nanoseconds, for use as a ppoll timeout.
func (t Time) Duration() int64 { return t.Sec*billion + t.Nsec }

// FromNanos builds a Time from a nanosecond duration.
func FromNanos(ns int64) Time {
	if ns < 0 {
		ns = 0
	}
	return Time{Sec: ns / billion, Nsec: ns % billion}
}

// ToTimespec converts to unix.Timespec, for syscalls that need it directly.
func (t Time) ToTimespec() unix.Timespec {
	return unix.Timespec{Sec: t.Sec, Nsec: t.Nsec}
}

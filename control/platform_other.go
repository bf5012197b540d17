//go:build !linux
// +build !linux

// control/platform_other.go
// Author: momentics <momentics@gmail.com>
//
// Non-Linux builds get no platform-specific probes; the loop itself is
// Linux-only (ppoll/signalfd/timerfd), so this only matters for code that
// imports control standalone off Linux.

package control

// RegisterPlatformProbes is a no-op off Linux.
func RegisterPlatformProbes(dp *DebugProbes) {}

// File: loop/control_adapter.go
// Author: momentics <momentics@gmail.com>
//
// Adapts the loop's ConfigStore/DebugProbes/MetricsRegistry trio onto
// api.Control, the same narrow-interface pattern adapters/handler_adapter.go
// uses to bind concrete control types to their capability interfaces.

package loop

import "github.com/momentics/pploop/api"

type loopControl struct{ l *EventLoop }

func (c loopControl) GetConfig() map[string]any { return c.l.cfg.GetSnapshot() }

func (c loopControl) SetConfig(cfg map[string]any) error {
	c.l.cfg.SetConfig(cfg)
	return nil
}

func (c loopControl) Stats() map[string]any { return c.l.metric.GetSnapshot() }

func (c loopControl) OnReload(fn func()) { c.l.cfg.OnReload(fn) }

func (c loopControl) RegisterDebugProbe(name string, fn func() any) {
	c.l.debug.RegisterProbe(name, fn)
}

var _ api.Control = loopControl{}

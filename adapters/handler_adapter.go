// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Binds the two callback flavors the design notes call out — plain
// function values and an interface object with a Call-style method — to
// the loop's capability set (api.Callbacks). Per Design Note 9.1 this
// binding is an ergonomic convenience layered on top of the core, not
// part of the registry itself: api.Callbacks always takes plain closures.

package adapters

import (
	"log"

	"github.com/momentics/pploop/api"
)

// HandlerFunc converts a function into an api.Handler.
type HandlerFunc func(data any) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(data any) error {
	return f(data)
}

// MiddlewareHandler wraps a base Handler and applies middleware in chain,
// then binds the result into the loop's DispatchFunc shape via ToDispatch.
type MiddlewareHandler struct {
	handler    api.Handler
	middleware []func(api.Handler) api.Handler
}

// NewMiddlewareHandler creates a new MiddlewareHandler for the given base handler.
func NewMiddlewareHandler(handler api.Handler) *MiddlewareHandler {
	return &MiddlewareHandler{handler: handler}
}

// Use appends a middleware to the chain.
func (m *MiddlewareHandler) Use(mw func(api.Handler) api.Handler) *MiddlewareHandler {
	m.middleware = append(m.middleware, mw)
	return m
}

// Handle applies all middleware then calls the base handler.
func (m *MiddlewareHandler) Handle(data any) error {
	handler := m.handler
	for i := len(m.middleware) - 1; i >= 0; i-- {
		handler = m.middleware[i](handler)
	}
	return handler.Handle(data)
}

// ToDispatch adapts the chain into an api.DispatchFunc. The handler
// receives userData as its payload; a returned error is logged and ends
// this iteration's dispatch for the entry, matching the stage-boundary
// catch semantics user callbacks are documented to rely on.
func (m *MiddlewareHandler) ToDispatch() api.DispatchFunc {
	return func(handle api.PollHandle, userData any) bool {
		if err := m.Handle(userData); err != nil {
			log.Printf("adapters: handler for handle %d returned error: %v", handle, err)
		}
		return false
	}
}

// LoggingMiddleware logs entry, exit, and errors of handler invocation.
func LoggingMiddleware(next api.Handler) api.Handler {
	return HandlerFunc(func(data any) error {
		log.Printf("[Handler] Processing data: %T", data)
		err := next.Handle(data)
		if err != nil {
			log.Printf("[Handler] Error: %v", err)
		}
		return err
	})
}

// RecoveryMiddleware recovers from panics in handler, the same defensive
// shape the loop's recoverStage uses around user callbacks: recover, log,
// keep going.
func RecoveryMiddleware(next api.Handler) api.Handler {
	return HandlerFunc(func(data any) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Handler] panic recovered: %v", r)
				err = nil
			}
		}()
		return next.Handle(data)
	})
}

// MetricsMiddleware increments the "handler.processed" counter via a Control.
func MetricsMiddleware(ctl api.Control) func(api.Handler) api.Handler {
	return func(next api.Handler) api.Handler {
		return HandlerFunc(func(data any) error {
			stats := ctl.Stats()
			count, _ := stats["handler.processed"].(int64)
			ctl.SetConfig(map[string]any{"handler.processed": count + 1})
			return next.Handle(data)
		})
	}
}

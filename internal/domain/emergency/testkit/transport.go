// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package testkit

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
)

// ScriptedTransport is an AlertTransport whose per-phone results and latencies
// are set up front. Every Send is counted, including failing ones.
type ScriptedTransport struct {
	mu          sync.Mutex
	failures    map[string]error
	delays      map[string]time.Duration
	panics      map[string]bool
	unavailable error
	calls       []Call
	gate        chan struct{}
	started     chan string
}

// Call is one recorded Send.
type Call struct {
	Phone   string
	Message string
}

func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{
		failures: make(map[string]error),
		delays:   make(map[string]time.Duration),
		panics:   make(map[string]bool),
	}
}

// FailFor makes sends to phone return err.
func (t *ScriptedTransport) FailFor(phone string, err error) *ScriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[phone] = err
	return t
}

// DelayFor makes sends to phone take d before answering.
func (t *ScriptedTransport) DelayFor(phone string, d time.Duration) *ScriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays[phone] = d
	return t
}

// PanicFor makes sends to phone panic.
func (t *ScriptedTransport) PanicFor(phone string) *ScriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.panics[phone] = true
	return t
}

// SetUnavailable makes Available return err; nil restores availability.
func (t *ScriptedTransport) SetUnavailable(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unavailable = err
}

// Hold blocks every Send until Release is called. Started receives each phone
// as its send begins.
func (t *ScriptedTransport) Hold() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gate = make(chan struct{})
	t.started = make(chan string, 64)
}

func (t *ScriptedTransport) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gate != nil {
		close(t.gate)
		t.gate = nil
	}
}

// Started reports sends as they begin while the transport is held.
func (t *ScriptedTransport) Started() <-chan string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *ScriptedTransport) Available(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unavailable
}

func (t *ScriptedTransport) Send(ctx context.Context, phone, message string) error {
	t.mu.Lock()
	t.calls = append(t.calls, Call{Phone: phone, Message: message})
	err := t.failures[phone]
	delay := t.delays[phone]
	shouldPanic := t.panics[phone]
	gate := t.gate
	started := t.started
	t.mu.Unlock()

	if gate != nil {
		if started != nil {
			started <- phone
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if shouldPanic {
		panic("scripted transport panic for " + phone)
	}
	return err
}

// Calls returns every Send seen so far, in call order.
func (t *ScriptedTransport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallCount returns how many sends were issued.
func (t *ScriptedTransport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

var _ ports.AlertTransport = (*ScriptedTransport)(nil)

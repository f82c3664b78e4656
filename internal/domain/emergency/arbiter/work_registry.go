// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package arbiter

import (
	"context"
	"fmt"
	"sync"
)

// workRegistry tracks arbiter-owned work (armed countdowns, dispatches,
// resends) and provides a bounded join on shutdown. Work already admitted may
// hand off to follow-up work after closing starts; new work may not.
type workRegistry struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// admit reserves a slot for new work. It fails once closing has started.
func (r *workRegistry) admit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return false
	}
	r.wg.Add(1)
	return true
}

// handoff reserves a slot for follow-up work. Callers must hold an admitted
// slot while calling it, so the counter never touches zero in between.
func (r *workRegistry) handoff() {
	r.wg.Add(1)
}

func (r *workRegistry) done() {
	r.wg.Done()
}

func (r *workRegistry) CloseAndWait(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("emergency work drain timeout: %w", ctx.Err())
	}
}

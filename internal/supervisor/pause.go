package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// PauseController tracks the reviews currently holding the session.
// The session is paused while any hold is outstanding; dispatching
// waits until the last review resolves.
type PauseController struct {
	// holds counts unresolved reviews holding the session.
	holds int
	// stopped indicates the session is shutting down.
	stopped bool
	// mu protects all fields.
	mu sync.Mutex
	// cond signals when the last hold releases or the controller stops.
	cond *sync.Cond
}

// NewPauseController creates a PauseController.
func NewPauseController() *PauseController {
	p := &PauseController{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause adds one hold. Returns true when this hold paused a running
// session, so the caller can stop the budget clock exactly once.
func (p *PauseController) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holds++
	if p.holds == 1 {
		log.Printf("[supervisor] paused - no new dispatches until review resolves")
		return true
	}
	return false
}

// Resume releases one hold. Returns true when it was the last hold,
// so the caller can restart the budget clock exactly once.
func (p *PauseController) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.holds == 0 {
		return false
	}
	p.holds--
	if p.holds == 0 {
		log.Printf("[supervisor] resumed - dispatching enabled")
		p.cond.Broadcast()
		return true
	}
	return false
}

// Stop signals shutdown. This unblocks any WaitIfPaused calls.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused returns whether any review currently holds the session.
func (p *PauseController) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holds > 0
}

// WaitIfPaused blocks until every hold releases or the controller
// stops. Returns an error if the context is cancelled or the
// controller is stopped.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	if p.holds > 0 && !p.stopped {
		// One goroutine to signal the condition if the context ends.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()

		for p.holds > 0 && !p.stopped {
			p.cond.Wait()
			if ctx.Err() != nil {
				close(done)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		close(done)
	}
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("supervisor stopped")
	}
	p.mu.Unlock()
	return nil
}

// ABOUTME: Lifecycle controller owning the render goroutine
// ABOUTME: Pins the loop to an OS thread and fans out its exit
package player

import (
	"runtime"
	"sync/atomic"
)

// Controller runs a renderer on a dedicated OS thread and exposes its
// lifecycle to the rest of the client.
type Controller struct {
	renderer *Renderer
	started  atomic.Bool
	done     chan struct{}
	err      error
}

// NewController wraps a renderer. Start launches it; Stop or a fatal
// endpoint error ends it.
func NewController(renderer *Renderer) *Controller {
	return &Controller{
		renderer: renderer,
		done:     make(chan struct{}),
	}
}

// Start launches the render loop on its own locked OS thread. Calling it
// again is a no-op.
func (c *Controller) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		c.err = c.renderer.Run()
		close(c.done)
	}()
}

// Stop requests the loop to exit and waits for it. It returns the
// loop's fatal error, if any, and is safe to call more than once.
func (c *Controller) Stop() error {
	c.renderer.RequestStop()
	if !c.started.Load() {
		return nil
	}
	<-c.done
	return c.err
}

// Done is closed when the render loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the loop's fatal error once Done is closed, nil otherwise.
func (c *Controller) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Renderer returns the controlled renderer for state and stats queries.
func (c *Controller) Renderer() *Renderer {
	return c.renderer
}

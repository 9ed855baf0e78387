package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// jsPool bounds the number of in-flight js executions and hands out
// runtime instances. A released runtime is replaced with a fresh one so
// state never leaks between calls.
type jsPool struct {
	size      int
	available chan *goja.Runtime
	mu        sync.Mutex
	closed    bool
}

func newJSPool(size int) (*jsPool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	pool := &jsPool{
		size:      size,
		available: make(chan *goja.Runtime, size),
	}
	for i := 0; i < size; i++ {
		pool.available <- goja.New()
	}
	return pool, nil
}

// acquire blocks until a runtime is available or ctx is cancelled.
func (p *jsPool) acquire(ctx context.Context) (*goja.Runtime, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	p.mu.Unlock()

	select {
	case vm := <-p.available:
		return vm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a slot to the pool with a clean runtime.
func (p *jsPool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.available <- goja.New():
	default:
	}
}

func (p *jsPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.available)
	for range p.available {
	}
}

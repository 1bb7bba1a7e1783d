package object

import (
	"context"
	"sync"

	"github.com/bridgekit/bridge/errs"
)

// Promise is the handle a Proxy.Call returns immediately, settled later when
// the bridge dispatches the matching "return" message. Grounded on
// capnweb-go's promise.go Promise/Await pair, trimmed to this bridge's
// simpler one-shot resolve/reject lifecycle (no pipelining).
type Promise struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	value    any
	err      error
}

// NewPromise returns an unsettled promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve settles the promise with a result. Only the first call has any
// effect.
func (p *Promise) Resolve(value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.resolved = true
	p.value = value
	close(p.done)
}

// Reject settles the promise with an error. Only the first call (whether
// Resolve or Reject) has any effect.
func (p *Promise) Reject(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.resolved = true
	p.err = err
	close(p.done)
}

// Await blocks until the promise settles or ctx is done, whichever comes
// first.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		return nil, errs.New(errs.InvalidCallID, "call canceled: %v", ctx.Err())
	}
}

// Settled reports whether Resolve or Reject has already run, without
// blocking.
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}

package bridge

import (
	"context"

	"github.com/bridgekit/bridge/magic"
	"github.com/bridgekit/bridge/object"
)

// Import returns the dynamic proxy for the object the remote peer exposed
// as id (typically the value returned by the remote's own Export call,
// carried out of band). It blocks until the corresponding "created" message
// has been processed or ctx is done — there being no capnweb-go analogue,
// since capnweb sessions bootstrap by pipelining onto an RPC expression
// rather than blocking on a plain id.
func (s *State) Import(ctx context.Context, id magic.LocalID) (*object.Proxy, error) {
	s.mu.Lock()
	if proxyObj, ok := s.proxies[id]; ok {
		s.mu.Unlock()
		return s.wrapProxy(proxyObj)
	}
	ready := make(chan struct{})
	s.importWaiters[id] = append(s.importWaiters[id], ready)
	s.mu.Unlock()

	select {
	case <-ready:
		s.mu.Lock()
		proxyObj, ok := s.proxies[id]
		s.mu.Unlock()
		if !ok {
			return nil, ctx.Err()
		}
		return s.wrapProxy(proxyObj)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *State) wrapProxy(proxyObj any) (*object.Proxy, error) {
	record, err := s.store.GetInstanceMagic(proxyObj)
	if err != nil {
		return nil, err
	}
	return object.NewProxy(s, record), nil
}

package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bridgekit/bridge/magic"
	"github.com/bridgekit/bridge/object"
)

// scheduleFlush arms the throttle timer on the first mutation of a batch:
// it records lastUpdate and schedules a flush for
// max(0, lastUpdate+ThrottleDelay-now), i.e. ThrottleDelay later. Further
// mutations while that flush is pending join it without moving the timer,
// so a steady stream of changes still flushes once per ThrottleDelay. Go
// has no microtask queue to defer onto, so time.AfterFunc stands in even
// when ThrottleDelay is zero; a zero-delay callback does not wait for the
// mutating goroutine to finish, so a mutation made after it has run goes
// into the next flush.
func (s *State) scheduleFlush() {
	s.mu.Lock()
	if s.closed || s.flushPending {
		s.mu.Unlock()
		return
	}
	s.lastUpdate = time.Now()
	delay := time.Until(s.lastUpdate.Add(s.options.ThrottleDelay))
	if delay < 0 {
		delay = 0
	}
	s.flushPending = true
	s.flushTimer = time.AfterFunc(delay, func() {
		s.flushNow(context.Background())
	})
	s.mu.Unlock()
}

// flushNow builds the current outbox into a Message, sends it if non-empty,
// and clears it. Safe to call directly (e.g. from Export) in addition to
// from the throttle timer.
func (s *State) flushNow(ctx context.Context) {
	ctx, span := startFlushSpan(ctx)
	defer span.End()

	s.mu.Lock()
	s.flushPending = false
	msg := &Message{
		Created: s.outbox.created,
		Events:  s.outbox.events,
		Calls:   s.outbox.calls,
		Returns: s.outbox.returns,
		Closed:  s.outbox.closed,
	}
	for id := range s.outbox.dirty {
		obj, ok := s.objects[id]
		if !ok {
			continue
		}
		cache := s.caches[id]
		changed := object.DiffObject(s, s.store, s.store, obj, cache)
		if len(changed) > 0 {
			msg.Changed = append(msg.Changed, ChangedEntry{LocalID: int64(id), Properties: changed})
		}
	}
	s.outbox = outboxState{dirty: make(map[magic.LocalID]struct{})}
	s.mu.Unlock()

	if msg.Empty() {
		return
	}

	data, err := s.codec.Encode(msg)
	if err != nil {
		s.logger.Warn("bridge: failed to encode outgoing message", zap.Error(err))
		return
	}
	if err := s.transp.Send(ctx, data); err != nil {
		s.logger.Warn("bridge: failed to send outgoing message", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.flushesTotal.Inc()
		s.metrics.messagesSent.Inc()
	}
	s.logger.Debug("bridge: flushed message",
		zap.Int("created", len(msg.Created)), zap.Int("changed", len(msg.Changed)),
		zap.Int("events", len(msg.Events)), zap.Int("calls", len(msg.Calls)),
		zap.Int("returns", len(msg.Returns)), zap.Int("closed", len(msg.Closed)))
}

// Package fanout republishes store change events to scoped subscribers.
// Delivery is at-least-once and eventually consistent: a subscriber that
// falls behind is flagged and re-reads instead of blocking the feed.
package fanout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"reparto-backend/internal/changefeed"
)

const (
	// DefaultBuffer is the per-subscription event buffer.
	DefaultBuffer = 64

	// reconnectDelay is the pause before re-listening after the feed closed.
	reconnectDelay = time.Second
)

// Hub is the subscription registry keyed by scope and subscription.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Scope]map[*Subscription]struct{}
	buffer int
	log    *logrus.Logger

	delivered metric.Int64Counter
	dropped   metric.Int64Counter
}

// Subscription is a scoped stream of change events. Close must be called
// when the view goes away.
type Subscription struct {
	ID    string
	Scope Scope

	ch     chan changefeed.Event
	hub    *Hub
	once   sync.Once
	lagged atomic.Bool
}

func NewHub(log *logrus.Logger) *Hub {
	h := &Hub{
		subs:   make(map[Scope]map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		log:    log,
	}
	meter := otel.GetMeterProvider().Meter("reparto.fanout")
	var err error
	if h.delivered, err = meter.Int64Counter("fanout_events_delivered_total"); err != nil {
		log.Warnf("failed to register fanout counter: %v", err)
	}
	if h.dropped, err = meter.Int64Counter("fanout_events_dropped_total"); err != nil {
		log.Warnf("failed to register fanout counter: %v", err)
	}
	return h
}

// Subscribe registers a subscription for scope.
func (h *Hub) Subscribe(scope Scope) *Subscription {
	s := &Subscription{
		ID:    uuid.New().String(),
		Scope: scope,
		ch:    make(chan changefeed.Event, h.buffer),
		hub:   h,
	}
	h.mu.Lock()
	set, ok := h.subs[scope]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[scope] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// C is the event stream. It is closed by Close.
func (s *Subscription) C() <-chan changefeed.Event { return s.ch }

// Close removes the subscription and closes its channel. Events already
// buffered may still be read. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.Scope]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.Scope)
			}
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// Lagged reports and clears the overflow flag.
func (s *Subscription) Lagged() bool {
	return s.lagged.Swap(false)
}

// Publish hands ev to every matching subscription without blocking.
func (h *Hub) Publish(ctx context.Context, ev changefeed.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ev.Op == changefeed.OpResync {
		for _, set := range h.subs {
			for s := range set {
				h.offer(ctx, s, ev)
			}
		}
		return
	}
	for _, scope := range Route(ev) {
		for s := range h.subs[scope] {
			h.offer(ctx, s, ev)
		}
	}
}

// offer runs under h.mu read lock, so s.ch is not closed concurrently.
func (h *Hub) offer(ctx context.Context, s *Subscription, ev changefeed.Event) {
	select {
	case s.ch <- ev:
		h.count(ctx, h.delivered, s.Scope.Kind)
	default:
		s.lagged.Store(true)
		h.count(ctx, h.dropped, s.Scope.Kind)
	}
}

// Run feeds the hub from src until ctx is done. When the feed ends early
// it re-listens and tells every subscriber to resync.
func (h *Hub) Run(ctx context.Context, src changefeed.Source) error {
	for {
		events, err := src.Listen(ctx)
		if err != nil {
			h.log.WithError(err).Warn("⚠️  Change feed unavailable, retrying")
		} else {
			h.log.Info("📡 Change feed connected")
			for ev := range events {
				h.Publish(ctx, ev)
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		h.log.Warn("🔌 Change feed closed, reconnecting")
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil
		}
		h.Publish(ctx, changefeed.Resync(time.Now().Unix()))
	}
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func (h *Hub) count(ctx context.Context, c metric.Int64Counter, kind Kind) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", string(kind))))
}

package memstore

import (
	"context"
	"reflect"

	"reparto-backend/internal/changefeed"
)

type listener struct {
	wake    chan struct{}
	pending []changefeed.Event
}

// Listen registers a change listener. Events are queued per listener in
// commit order so a slow consumer never blocks a writer.
func (s *Store) Listen(ctx context.Context) (<-chan changefeed.Event, error) {
	l := &listener{wake: make(chan struct{}, 1)}
	out := make(chan changefeed.Event)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		}()
		for {
			s.mu.Lock()
			batch := l.pending
			l.pending = nil
			s.mu.Unlock()

			for _, ev := range batch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if len(batch) > 0 {
				continue
			}
			select {
			case <-l.wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// emitLocked queues a change event for every listener. Callers hold s.mu.
func (s *Store) emitLocked(table string, old, cur any) {
	ev := changefeed.Event{Table: table, At: s.Now().Unix()}
	switch {
	case isNil(old):
		ev.Op = changefeed.OpInsert
		ev.New = marshalRow(cur)
	case isNil(cur):
		ev.Op = changefeed.OpDelete
		ev.Old = marshalRow(old)
	default:
		ev.Op = changefeed.OpUpdate
		ev.Old = marshalRow(old)
		ev.New = marshalRow(cur)
	}
	for _, l := range s.listeners {
		l.pending = append(l.pending, ev)
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

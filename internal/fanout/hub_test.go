package fanout

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"reparto-backend/internal/changefeed"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func orderEvent(id, restaurant string) changefeed.Event {
	return changefeed.Event{
		Op:    changefeed.OpUpdate,
		Table: changefeed.TableOrders,
		New:   []byte(`{"id":"` + id + `","restaurante_id":"` + restaurant + `"}`),
	}
}

func TestPublishReachesOnlyMatchingScopes(t *testing.T) {
	h := NewHub(quietLogger())
	ctx := context.Background()

	mine := h.Subscribe(Scope{KindOrder, "o1"})
	other := h.Subscribe(Scope{KindOrder, "o2"})
	rest := h.Subscribe(Scope{KindRestaurant, "r1"})
	defer mine.Close()
	defer other.Close()
	defer rest.Close()

	h.Publish(ctx, orderEvent("o1", "r1"))

	select {
	case ev := <-mine.C():
		if ev.Field("id") != "o1" {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("order subscriber got nothing")
	}
	select {
	case <-rest.C():
	default:
		t.Error("restaurant subscriber got nothing")
	}
	select {
	case ev := <-other.C():
		t.Errorf("unrelated subscriber got %+v", ev)
	default:
	}
}

func TestCloseIsIdempotentAndDeregisters(t *testing.T) {
	h := NewHub(quietLogger())
	a := h.Subscribe(Scope{KindOrder, "o1"})
	b := h.Subscribe(Scope{KindOrder, "o1"})
	if h.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", h.Count())
	}

	a.Close()
	a.Close()
	if h.Count() != 1 {
		t.Errorf("Count() = %d after one Close, want 1", h.Count())
	}
	if _, ok := <-a.C(); ok {
		t.Error("closed subscription channel still open")
	}

	h.Publish(context.Background(), orderEvent("o1", "r1"))
	if _, ok := <-b.C(); !ok {
		t.Error("remaining subscriber missed the event")
	}
	b.Close()
	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
}

func TestSlowSubscriberIsFlaggedNotBlocking(t *testing.T) {
	h := NewHub(quietLogger())
	s := h.Subscribe(Scope{KindOrder, "o1"})
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultBuffer*3; i++ {
			h.Publish(context.Background(), orderEvent("o1", "r1"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if !s.Lagged() {
		t.Error("overflowed subscription not flagged")
	}
	if s.Lagged() {
		t.Error("Lagged() did not clear the flag")
	}
}

func TestResyncReachesEveryone(t *testing.T) {
	h := NewHub(quietLogger())
	a := h.Subscribe(Scope{Kind: KindFleet})
	b := h.Subscribe(Scope{KindOrder, "o7"})
	defer a.Close()
	defer b.Close()

	h.Publish(context.Background(), changefeed.Resync(1))
	for _, s := range []*Subscription{a, b} {
		select {
		case ev := <-s.C():
			if ev.Op != changefeed.OpResync {
				t.Errorf("op = %s, want RESYNC", ev.Op)
			}
		default:
			t.Errorf("%s missed resync", s.Scope)
		}
	}
}

func TestConcurrentPublishAndClose(t *testing.T) {
	h := NewHub(quietLogger())
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := h.Subscribe(Scope{KindOrder, "o1"})
				s.Close()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 1000; j++ {
			h.Publish(ctx, orderEvent("o1", "r1"))
		}
	}()
	wg.Wait()

	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
}

type closingSource struct {
	mu    sync.Mutex
	calls int
}

func (s *closingSource) Listen(ctx context.Context) (<-chan changefeed.Event, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	ch := make(chan changefeed.Event)
	if n == 1 {
		close(ch)
		return ch, nil
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func TestRunResyncsAfterFeedLoss(t *testing.T) {
	h := NewHub(quietLogger())
	s := h.Subscribe(Scope{KindOrder, "o1"})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, &closingSource{}) }()

	select {
	case ev := <-s.C():
		if ev.Op != changefeed.OpResync {
			t.Errorf("op = %s, want RESYNC", ev.Op)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no resync after feed loss")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

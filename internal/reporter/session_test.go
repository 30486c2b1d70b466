package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeGeo struct {
	watch    chan Fix
	watchErr error
	current  func() (Fix, error)

	mu       sync.Mutex
	watchCtx context.Context
}

func newFakeGeo() *fakeGeo {
	return &fakeGeo{watch: make(chan Fix)}
}

func (g *fakeGeo) Watch(ctx context.Context) (<-chan Fix, error) {
	if g.watchErr != nil {
		return nil, g.watchErr
	}
	g.mu.Lock()
	g.watchCtx = ctx
	g.mu.Unlock()

	out := make(chan Fix)
	go func() {
		defer close(out)
		for {
			select {
			case f := <-g.watch:
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (g *fakeGeo) Current(ctx context.Context) (Fix, error) {
	if g.current == nil {
		return Fix{}, errors.New("no fix")
	}
	return g.current()
}

func (g *fakeGeo) released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.watchCtx != nil && g.watchCtx.Err() != nil
}

type recordingWriter struct {
	mu     sync.Mutex
	fixes  []Fix
	wrote  chan Fix
	failOn int // 1-based call that fails, 0 for none
	calls  int
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{wrote: make(chan Fix, 64)}
}

func (w *recordingWriter) WritePosition(ctx context.Context, courierID string, fix Fix) error {
	w.mu.Lock()
	w.calls++
	fail := w.calls == w.failOn
	if !fail {
		w.fixes = append(w.fixes, fix)
	}
	w.mu.Unlock()
	w.wrote <- fix
	if fail {
		return errors.New("network down")
	}
	return nil
}

func (w *recordingWriter) written() []Fix {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Fix(nil), w.fixes...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func waitWrite(t *testing.T, w *recordingWriter) Fix {
	t.Helper()
	select {
	case f := <-w.wrote:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
	}
	return Fix{}
}

func waitStat(t *testing.T, s *Session, key string, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Gate().GetStats()[key] >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("gate stat %s never reached %d: %v", key, want, s.Gate().GetStats())
}

func TestSessionAlternatingAccuracyBurst(t *testing.T) {
	geo := newFakeGeo()
	forcedFix := at(5*time.Second, 300)
	geo.current = func() (Fix, error) { return forcedFix, nil }
	w := newRecordingWriter()
	ticks := make(chan time.Time)

	clk := newManualClock(t0)
	s := NewSession("courier-1", geo, w, DefaultConfig(), quietLogger(), WithTicks(ticks), WithClock(clk.Now))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	accuracies := []float64{10, 200, 15, 300}
	for i := 0; i < 20; i++ {
		geo.watch <- at(time.Duration(i)*250*time.Millisecond, accuracies[i%4])
	}
	first := waitWrite(t, w)
	clk.Advance(5 * time.Second)
	ticks <- t0.Add(5 * time.Second)
	forced := waitWrite(t, w)
	s.Stop()

	got := w.written()
	if len(got) != 2 {
		t.Fatalf("writes = %d, want 2: %+v", len(got), got)
	}
	if first.Accuracy != 10 || !first.At.Equal(t0) {
		t.Errorf("first write = %+v, want the first good fix", first)
	}
	if !forced.At.Equal(forcedFix.At) {
		t.Errorf("second write = %+v, want the forced fix", forced)
	}
}

func TestSessionStopReleasesWatchAndTimer(t *testing.T) {
	geo := newFakeGeo()
	geo.current = func() (Fix, error) { return at(0, 10), nil }
	w := newRecordingWriter()
	ticks := make(chan time.Time)

	s := NewSession("courier-1", geo, w, DefaultConfig(), quietLogger(), WithTicks(ticks))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Stop()

	if !geo.released() {
		t.Error("watch context not cancelled after Stop")
	}
	select {
	case ticks <- time.Now():
		t.Error("tick consumed after Stop")
	case <-time.After(50 * time.Millisecond):
	}
	if n := len(w.written()); n != 0 {
		t.Errorf("writes after Stop = %d", n)
	}

	// idempotent
	s.Stop()
}

func TestSessionRealTimerStops(t *testing.T) {
	geo := newFakeGeo()
	geo.current = func() (Fix, error) { return Fix{Accuracy: 10, At: time.Now()}, nil }
	w := newRecordingWriter()

	s := NewSession("courier-1", geo, w, Config{Interval: 10 * time.Millisecond}, quietLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitWrite(t, w)
	s.Stop()

	before := len(w.written())
	time.Sleep(50 * time.Millisecond)
	if after := len(w.written()); after != before {
		t.Errorf("timer kept writing after Stop: %d -> %d", before, after)
	}
}

func TestSessionWriteFailureIsNotRetried(t *testing.T) {
	geo := newFakeGeo()
	w := newRecordingWriter()
	w.failOn = 1
	clk := newManualClock(t0)

	s := NewSession("courier-1", geo, w, DefaultConfig(), quietLogger(), WithTicks(make(chan time.Time)), WithClock(clk.Now))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	geo.watch <- at(0, 10)
	waitWrite(t, w)
	// inside the interval: the failed attempt still throttles
	clk.Advance(time.Second)
	geo.watch <- at(time.Second, 10)
	waitStat(t, s, "throttled", 1)
	clk.Advance(4 * time.Second)
	geo.watch <- at(5*time.Second, 10)
	waitWrite(t, w)
	s.Stop()

	w.mu.Lock()
	calls := w.calls
	w.mu.Unlock()
	if calls != 2 {
		t.Errorf("write calls = %d, want 2", calls)
	}
}

func TestSessionWatchErrorKeepsTimer(t *testing.T) {
	geo := newFakeGeo()
	geo.watchErr = errors.New("permission denied")
	geo.current = func() (Fix, error) { return at(0, 500), nil }
	w := newRecordingWriter()
	ticks := make(chan time.Time)

	s := NewSession("courier-1", geo, w, DefaultConfig(), quietLogger(), WithTicks(ticks))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ticks <- time.Now()
	waitWrite(t, w)
	s.Stop()
}

func TestSessionForcedFixErrorIsTolerated(t *testing.T) {
	geo := newFakeGeo()
	calls := 0
	geo.current = func() (Fix, error) {
		calls++
		if calls == 1 {
			return Fix{}, errors.New("timeout")
		}
		return at(10*time.Second, 40), nil
	}
	w := newRecordingWriter()
	ticks := make(chan time.Time)

	s := NewSession("courier-1", geo, w, DefaultConfig(), quietLogger(), WithTicks(ticks))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ticks <- time.Now()
	// the failed acquisition must not stop the loop
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ticks <- time.Now():
		case <-w.wrote:
			s.Stop()
			return
		case <-deadline:
			s.Stop()
			t.Fatal("no write after a failed forced fix")
		}
	}
}

func TestSessionReplayWatchSurvivesForcedTick(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	wall := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	clk := newManualClock(wall)
	geo := NewReplayGeolocator(pr, false, quietLogger())
	geo.now = clk.Now

	w := newRecordingWriter()
	ticks := make(chan time.Time)
	s := NewSession("courier-1", geo, w, Config{Interval: 100 * time.Millisecond}, quietLogger(), WithTicks(ticks), WithClock(clk.Now))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	recorded := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	line := func(i int) string {
		at := recorded.Add(time.Duration(i) * 200 * time.Millisecond).Format(time.RFC3339Nano)
		return fmt.Sprintf(`{"lat":19.4%d,"lng":-99.1,"accuracy":12,"at":%q}`+"\n", i, at)
	}

	if _, err := io.WriteString(pw, line(0)); err != nil {
		t.Fatal(err)
	}
	waitWrite(t, w)

	clk.Advance(50 * time.Millisecond)
	ticks <- clk.Now()
	waitWrite(t, w)

	for i := 1; i <= 5; i++ {
		clk.Advance(200 * time.Millisecond)
		if _, err := io.WriteString(pw, line(i)); err != nil {
			t.Fatal(err)
		}
		waitWrite(t, w)
	}

	stats := s.Gate().GetStats()
	if got := len(w.written()); got != 7 {
		t.Errorf("writes = %d, want 7 (stats %v)", got, stats)
	}
	if stats["throttled"] != 0 || stats["forced"] != 1 {
		t.Errorf("stats = %v, want one forced and nothing throttled", stats)
	}
}

// Package reporter is the device side of live tracking. A Session turns a
// noisy location stream into throttled, quality-filtered position writes
// for exactly one courier.
package reporter

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Fix is one device location sample.
type Fix struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"` // meters, 0 if unknown
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	At        time.Time `json:"at"`
}

// Geolocator is the device location API.
type Geolocator interface {
	// Watch streams fixes until ctx is done, then closes the channel and
	// releases the underlying watch.
	Watch(ctx context.Context) (<-chan Fix, error)
	// Current acquires one fresh fix.
	Current(ctx context.Context) (Fix, error)
}

// Writer persists one accepted fix as the courier's latest position.
type Writer interface {
	WritePosition(ctx context.Context, courierID string, fix Fix) error
}

// WriteTimeout bounds a single position write.
const WriteTimeout = 10 * time.Second

type Option func(*Session)

// WithTicks replaces the periodic timer with an external tick source.
func WithTicks(ticks <-chan time.Time) Option {
	return func(s *Session) { s.ticks = ticks }
}

// WithClock replaces the clock the throttle runs on.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.gate.now = now }
}

type Session struct {
	courierID string
	geo       Geolocator
	writer    Writer
	gate      *Gate
	cfg       Config
	log       *logrus.Logger
	ticks     <-chan time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewSession(courierID string, geo Geolocator, w Writer, cfg Config, log *logrus.Logger, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		courierID: courierID,
		geo:       geo,
		writer:    w,
		gate:      NewGate(cfg),
		cfg:       cfg,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) CourierID() string { return s.courierID }

func (s *Session) Gate() *Gate { return s.gate }

// Start begins the watch and the periodic forced fix. A watch that cannot
// be opened is logged and the timer keeps running on its own.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("reporter session already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	watch, err := s.geo.Watch(ctx)
	if err != nil {
		s.log.WithError(err).WithField("courier_id", s.courierID).Warn("⚠️  Location watch unavailable, using periodic fixes only")
		watch = nil
	}

	ticks := s.ticks
	var ticker *time.Ticker
	if ticks == nil {
		ticker = time.NewTicker(s.cfg.Interval)
		ticks = ticker.C
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, watch, ticks, ticker, s.done)

	s.log.WithField("courier_id", s.courierID).Info("📍 Position reporting started")
	return nil
}

// Stop halts the watch and the timer and returns once no further write can
// happen. Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.WithField("courier_id", s.courierID).Info("📍 Position reporting stopped")
}

type forcedResult struct {
	fix Fix
	err error
}

// loop is the single owner of the gate. Watch fixes, ticks and forced fix
// results are serialized here.
func (s *Session) loop(ctx context.Context, watch <-chan Fix, ticks <-chan time.Time, ticker *time.Ticker, done chan struct{}) {
	var inflight sync.WaitGroup
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		inflight.Wait()
		close(done)
	}()

	forced := make(chan forcedResult, 1)
	pending := false

	for {
		select {
		case <-ctx.Done():
			return

		case fix, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			s.handle(ctx, fix, false)

		case <-ticks:
			if pending {
				continue
			}
			pending = true
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				fix, err := s.geo.Current(ctx)
				select {
				case forced <- forcedResult{fix: fix, err: err}:
				case <-ctx.Done():
				}
			}()

		case r := <-forced:
			pending = false
			if r.err != nil {
				s.log.WithError(r.err).WithField("courier_id", s.courierID).Warn("⚠️  Forced location fix failed")
				continue
			}
			s.handle(ctx, r.fix, true)
		}
	}
}

func (s *Session) handle(ctx context.Context, fix Fix, forced bool) {
	if v := s.gate.Admit(fix, forced); v != Accept {
		s.log.WithFields(logrus.Fields{
			"courier_id": s.courierID,
			"accuracy":   fix.Accuracy,
			"verdict":    v,
		}).Debug("Fix skipped")
		return
	}

	wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	if err := s.writer.WritePosition(wctx, s.courierID, fix); err != nil {
		// not retried; the next accepted fix or forced tick writes again
		s.log.WithError(err).WithFields(logrus.Fields{
			"courier_id": s.courierID,
			"forced":     forced,
		}).Warn("❌ Position write failed")
	}
}

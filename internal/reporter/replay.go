package reporter

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReplayGeolocator plays back fixes from a JSON-lines stream, one Fix per
// line. Recorded timestamps are shifted so the first fix lands on the
// wall clock; the gaps between fixes are kept. With Pace set, fixes are
// spaced by those gaps. Current returns the most recent fix restamped with
// the wall clock.
type ReplayGeolocator struct {
	src  io.Reader
	Pace bool
	log  *logrus.Logger
	now  func() time.Time

	mu   sync.Mutex
	last *Fix
	used bool
}

func NewReplayGeolocator(src io.Reader, pace bool, log *logrus.Logger) *ReplayGeolocator {
	return &ReplayGeolocator{src: src, Pace: pace, log: log, now: time.Now}
}

func (g *ReplayGeolocator) Watch(ctx context.Context) (<-chan Fix, error) {
	g.mu.Lock()
	if g.used {
		g.mu.Unlock()
		return nil, errors.New("replay source already consumed")
	}
	g.used = true
	g.mu.Unlock()

	out := make(chan Fix)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(g.src)
		var prev time.Time
		var offset time.Duration
		rebased := false
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var fix Fix
			if err := json.Unmarshal(line, &fix); err != nil {
				g.log.WithError(err).Warn("⚠️  Skipping malformed fix")
				continue
			}
			if fix.At.IsZero() {
				fix.At = g.now()
			} else {
				if !rebased {
					offset = g.now().Sub(fix.At)
					rebased = true
				}
				fix.At = fix.At.Add(offset)
			}
			if g.Pace && !prev.IsZero() {
				if gap := fix.At.Sub(prev); gap > 0 {
					select {
					case <-time.After(gap):
					case <-ctx.Done():
						return
					}
				}
			}
			prev = fix.At

			g.mu.Lock()
			f := fix
			g.last = &f
			g.mu.Unlock()

			select {
			case out <- fix:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			g.log.WithError(err).Warn("⚠️  Replay source failed")
		}
	}()
	return out, nil
}

func (g *ReplayGeolocator) Current(ctx context.Context) (Fix, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return Fix{}, errors.New("no fix acquired yet")
	}
	fix := *g.last
	fix.At = g.now()
	return fix, nil
}

package reporter

import (
	"sync"
	"time"
)

// Configuration defaults
const (
	// DefaultInterval is both the throttle window for watch fixes and the
	// period of forced single-shot fixes.
	DefaultInterval = 5 * time.Second

	// DefaultGoodAccuracy is the accuracy radius (meters) at or below which
	// a fix is always good enough to write.
	DefaultGoodAccuracy = 50.0

	// DefaultDegradedAccuracy is the radius (meters) above which a watch fix
	// is discarded once a good fix is known.
	DefaultDegradedAccuracy = 120.0
)

type Config struct {
	Interval         time.Duration
	GoodAccuracy     float64
	DegradedAccuracy float64
}

func DefaultConfig() Config {
	return Config{
		Interval:         DefaultInterval,
		GoodAccuracy:     DefaultGoodAccuracy,
		DegradedAccuracy: DefaultDegradedAccuracy,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.GoodAccuracy <= 0 {
		c.GoodAccuracy = DefaultGoodAccuracy
	}
	if c.DegradedAccuracy < c.GoodAccuracy {
		c.DegradedAccuracy = DefaultDegradedAccuracy
	}
	return c
}

// Verdict is the gate's decision for one fix.
type Verdict string

const (
	Accept        Verdict = "accept"
	SkipThrottled Verdict = "throttled"
	SkipDegraded  Verdict = "degraded"
	SkipWorse     Verdict = "worse_than_known"
)

// Gate applies the quality filter and the throttle for one courier session.
// It is driven from the session loop only; the stats are safe to read from
// anywhere.
type Gate struct {
	cfg Config
	now func() time.Time

	lastSent time.Time // session clock at the last write attempt, zero if none
	bestGood float64   // accuracy of the last good fix written, 0 if none

	stats GateStats
}

// GateStats counts verdicts.
type GateStats struct {
	Accepted  int64
	Forced    int64
	Throttled int64
	Degraded  int64
	Worse     int64
	mutex     sync.RWMutex
}

func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg.withDefaults(), now: time.Now}
}

// Admit decides whether fix is written. Forced fixes always pass. The
// throttle runs on the session clock, never on fix.At: device and replay
// timestamps need not share a time base with the forced fixes. Every
// accepted fix stamps the clock whether or not the write that follows
// succeeds.
func (g *Gate) Admit(fix Fix, forced bool) Verdict {
	now := g.now()
	if forced {
		g.accept(fix, now)
		g.record(func(s *GateStats) { s.Forced++ })
		return Accept
	}

	if !g.lastSent.IsZero() && now.Sub(g.lastSent) < g.cfg.Interval {
		g.record(func(s *GateStats) { s.Throttled++ })
		return SkipThrottled
	}

	if g.bestGood > 0 && fix.Accuracy > g.cfg.GoodAccuracy {
		if fix.Accuracy > g.cfg.DegradedAccuracy {
			g.record(func(s *GateStats) { s.Degraded++ })
			return SkipDegraded
		}
		// Middle band: write only if the known fix is not materially better.
		if g.bestGood*2 < fix.Accuracy {
			g.record(func(s *GateStats) { s.Worse++ })
			return SkipWorse
		}
	}

	g.accept(fix, now)
	return Accept
}

func (g *Gate) accept(fix Fix, now time.Time) {
	g.lastSent = now
	if fix.Accuracy > 0 && fix.Accuracy <= g.cfg.GoodAccuracy {
		g.bestGood = fix.Accuracy
	}
	g.record(func(s *GateStats) { s.Accepted++ })
}

func (g *Gate) record(f func(*GateStats)) {
	g.stats.mutex.Lock()
	defer g.stats.mutex.Unlock()
	f(&g.stats)
}

// GetStats returns gate statistics
func (g *Gate) GetStats() map[string]int64 {
	g.stats.mutex.RLock()
	defer g.stats.mutex.RUnlock()
	return map[string]int64{
		"accepted":  g.stats.Accepted,
		"forced":    g.stats.Forced,
		"throttled": g.stats.Throttled,
		"degraded":  g.stats.Degraded,
		"worse":     g.stats.Worse,
	}
}

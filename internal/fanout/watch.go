package fanout

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/changefeed"
)

// DefaultPollInterval is the fallback re-read period for every watch.
const DefaultPollInterval = 30 * time.Second

type Reason string

const (
	ReasonInitial Reason = "initial"
	ReasonPush    Reason = "push"
	ReasonPoll    Reason = "poll"
	ReasonResync  Reason = "resync"
)

// Frame is one snapshot delivered to a view.
type Frame struct {
	Scope  string `json:"scope"`
	Reason Reason `json:"reason"`
	Data   any    `json:"data"`
	At     int64  `json:"at"`
}

// SnapshotFunc reads the current state behind a scope. It returns an error
// wrapping ErrRevoked once the viewer may no longer see the scope.
type SnapshotFunc func(ctx context.Context) (any, error)

// ErrRevoked ends a watch whose viewer lost access to the scope.
var ErrRevoked = errors.New("scope access revoked")

// Watch keeps a view of scope fresh until ctx is done or emit fails. It
// emits an initial snapshot, re-reads on every pushed change and also on
// a fixed poll so a missed push is repaired within one interval. A revoked
// snapshot ends the watch with that error and emits nothing further. The
// subscription is released when Watch returns.
func (h *Hub) Watch(ctx context.Context, scope Scope, snapshot SnapshotFunc, poll time.Duration, emit func(Frame) error) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	sub := h.Subscribe(scope)
	defer sub.Close()

	refresh := func(reason Reason) error {
		data, err := snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrRevoked) {
				return err
			}
			h.log.WithError(err).WithFields(logrus.Fields{"scope": scope.String(), "reason": reason}).Warn("⚠️  Snapshot failed")
			return nil
		}
		return emit(Frame{Scope: scope.String(), Reason: reason, Data: data, At: time.Now().Unix()})
	}

	if err := refresh(ReasonInitial); err != nil {
		return err
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			reason := ReasonPush
			if ev.Op == changefeed.OpResync {
				reason = ReasonResync
			}
			// coalesce whatever else is queued into one re-read
			for drained := false; !drained; {
				select {
				case more, ok := <-sub.C():
					if !ok {
						return nil
					}
					if more.Op == changefeed.OpResync {
						reason = ReasonResync
					}
				default:
					drained = true
				}
			}
			if sub.Lagged() {
				reason = ReasonResync
			}
			if err := refresh(reason); err != nil {
				return err
			}

		case <-ticker.C:
			if err := refresh(ReasonPoll); err != nil {
				return err
			}
		}
	}
}

package database

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"reparto-backend/internal/changefeed"
)

// ChangeChannel is the NOTIFY channel the row triggers publish on.
const ChangeChannel = "cambios"

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingEvery    = 90 * time.Second
)

// Listen opens a dedicated LISTEN connection and streams decoded change
// events until ctx is done. After the connection drops and comes back a
// Resync event is emitted, because notifications sent while disconnected
// are lost.
func (s *Store) Listen(ctx context.Context) (<-chan changefeed.Event, error) {
	listener := pq.NewListener(s.dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			s.log.WithError(err).Warn("⚠️  Change feed disconnected")
		case pq.ListenerEventReconnected:
			s.log.Info("🔄 Change feed reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			s.log.WithError(err).Warn("⚠️  Change feed reconnect attempt failed")
		}
	})
	if err := listener.Listen(ChangeChannel); err != nil {
		listener.Close()
		return nil, errors.Wrapf(err, "listen on %s", ChangeChannel)
	}

	out := make(chan changefeed.Event, 256)
	go func() {
		defer close(out)
		defer listener.Close()

		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				var ev changefeed.Event
				if n == nil {
					ev = changefeed.Resync(s.now().Unix())
				} else {
					decoded, err := changefeed.Decode([]byte(n.Extra))
					if err != nil {
						s.log.WithError(err).Warn("Skipping malformed change notification")
						continue
					}
					ev = decoded
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ticker.C:
				go func() {
					if err := listener.Ping(); err != nil {
						s.log.WithError(err).Debug("Change feed ping failed")
					}
				}()
			}
		}
	}()

	s.log.WithField("channel", ChangeChannel).Info("📡 Listening for row changes")
	return out, nil
}

package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Channel is the postgres notification channel raised when a candidate pool
// changes. The payload is the market id.
const Channel = "candidate_pool_changed"

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	idlePing     = 90 * time.Second
)

// MarketPublisher pushes the current state of a market to live subscribers.
type MarketPublisher interface {
	Publish(ctx context.Context, marketID uint)
}

// Listener forwards pool change notifications from postgres to the
// publisher, so writes made outside this process still reach subscribers.
type Listener struct {
	pql       *pq.Listener
	publisher MarketPublisher
	logger    *zap.Logger
}

// NewListener connects to dsn and listens on Channel.
func NewListener(dsn string, publisher MarketPublisher, logger *zap.Logger) (*Listener, error) {
	events := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warn("pg listener connection problem", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("pg listener reconnected")
		}
	}

	pql := pq.NewListener(dsn, minReconnect, maxReconnect, events)
	if err := pql.Listen(Channel); err != nil {
		pql.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}

	return &Listener{pql: pql, publisher: publisher, logger: logger}, nil
}

// Run dispatches notifications until ctx is done.
func (l *Listener) Run(ctx context.Context) {
	l.logger.Info("pg listener started", zap.String("channel", Channel))
	idle := time.NewTimer(idlePing)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case n := <-l.pql.Notify:
			// nil after a reconnect; notifications may have been missed
			if n == nil {
				continue
			}
			id, err := ParsePayload(n.Extra)
			if err != nil {
				l.logger.Warn("bad pool notification", zap.String("payload", n.Extra), zap.Error(err))
				continue
			}
			l.publisher.Publish(ctx, id)

		case <-idle.C:
			go func() {
				if err := l.pql.Ping(); err != nil {
					l.logger.Warn("pg listener ping failed", zap.Error(err))
				}
			}()
		}
		idle.Reset(idlePing)
	}
}

// Close stops listening.
func (l *Listener) Close() error {
	return l.pql.Close()
}

// ParsePayload reads the market id carried by a notification.
func ParsePayload(payload string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(payload), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid market id %q: %w", payload, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid market id %q", payload)
	}
	return uint(id), nil
}

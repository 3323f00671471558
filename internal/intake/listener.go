package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
)

// WakeListener subscribes to the wake subject carrying newly-inserted inbound
// message ids and drains them into a bounded channel. It is an optimization
// over the periodic poll, never the source of truth: a dropped or missed
// notification is picked up by the next poll cycle.
type WakeListener struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	wake    chan string
}

// NewWakeListener connects to NATS with automatic reconnects. The buffer
// bounds how many pending wake ids are held in memory.
func NewWakeListener(url string, subject string, buffer int) (*WakeListener, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &WakeListener{
		nc:      nc,
		subject: subject,
		wake:    make(chan string, buffer),
	}, nil
}

// Start subscribes to the wake subject. Message payloads are inbound message
// ids, one per message or comma-separated.
func (l *WakeListener) Start() error {
	sub, err := l.nc.Subscribe(l.subject, func(msg *nats.Msg) {
		for _, id := range strings.Split(string(msg.Data), ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			select {
			case l.wake <- id:
			default:
				// Channel full; the poll cycle will find the row.
				logger.Log.Debug("Wake channel full, dropping notification", zap.String("message_id", id))
			}
		}
		observer.SetIntakeQueueLength(len(l.wake))
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to wake subject %s: %w", l.subject, err)
	}
	l.sub = sub
	logger.Log.Info("Wake listener subscribed", zap.String("subject", l.subject))
	return nil
}

// Wake exposes the drained notification channel.
func (l *WakeListener) Wake() <-chan string {
	return l.wake
}

// Active reports whether the listener currently has a live connection.
func (l *WakeListener) Active() bool {
	return l.nc != nil && l.nc.IsConnected()
}

// Close unsubscribes and drains the NATS connection.
func (l *WakeListener) Close() {
	if l.sub != nil {
		if err := l.sub.Unsubscribe(); err != nil {
			logger.Log.Warn("Failed to unsubscribe wake listener", zap.Error(err))
		}
	}
	if l.nc != nil {
		if err := l.nc.Drain(); err != nil {
			logger.Log.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docsync/internal/logging"

	"github.com/lib/pq"
)

// ShareInvalidator drops cached share state for a document.
type ShareInvalidator interface {
	Invalidate(ctx context.Context, documentID string) error
}

// ShareChangeListener LISTENs on the channel fed by the document_shares
// trigger and invalidates the share cache for every notified document.
type ShareChangeListener struct {
	listener    *pq.Listener
	channel     string
	invalidator ShareInvalidator
	logger      logging.Logger
}

// NewShareChangeListener opens a dedicated LISTEN connection using dsn.
func NewShareChangeListener(dsn, channel string, invalidator ShareInvalidator) (*ShareChangeListener, error) {
	logger := logging.New("share-listener")

	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warnf("⚠️  Share listener connection problem: %v", err)
		case pq.ListenerEventReconnected:
			logger.Info("✓ Share listener reconnected")
		}
	})

	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	return &ShareChangeListener{
		listener:    listener,
		channel:     channel,
		invalidator: invalidator,
		logger:      logger,
	}, nil
}

// Run processes notifications until ctx is cancelled.
func (l *ShareChangeListener) Run(ctx context.Context) {
	l.logger.Infof("🔄 Listening for share changes on %q", l.channel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case n, ok := <-l.listener.Notify:
			if !ok {
				return
			}
			l.handle(ctx, n)

		case <-ping.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Warnf("⚠️  Share listener ping failed: %v", err)
			}
		}
	}
}

// handle invalidates the document named by a notification. A nil
// notification is delivered by pq after a reconnect; nothing to do for it
// beyond logging because cached entries expire on their own TTL.
func (l *ShareChangeListener) handle(ctx context.Context, n *pq.Notification) {
	if n == nil {
		l.logger.Warn("⚠️  Share notifications may have been missed during reconnect")
		return
	}

	documentID := strings.TrimSpace(n.Extra)
	if documentID == "" {
		return
	}

	if err := l.invalidator.Invalidate(ctx, documentID); err != nil {
		l.logger.Warnf("⚠️  Failed to invalidate shares for %s: %v", documentID, err)
		return
	}
	l.logger.Debugf("Invalidated cached shares for %s", documentID)
}

// Close stops listening and closes the connection.
func (l *ShareChangeListener) Close() error {
	return l.listener.Close()
}

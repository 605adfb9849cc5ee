package listener

import (
	"context"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	// ChannelName matches the NOTIFY issued by the outbox insert trigger.
	ChannelName       = "ledger_outbox"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// OutboxListener wakes the outbox relay whenever PostgreSQL reports new
// outbox rows, so delivery does not wait for the next poll.
type OutboxListener struct {
	connStr    string
	wake       func()
	logger     *zap.Logger
	shutdownCh chan struct{}
	done       chan struct{}
}

// NewOutboxListener creates a listener that calls wake on every notification.
func NewOutboxListener(connStr string, wake func(), logger *zap.Logger) *OutboxListener {
	return &OutboxListener{
		connStr:    connStr,
		wake:       wake,
		logger:     logger.Named("outbox_listener"),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *OutboxListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.logger.Info("Outbox notification listener started", zap.String("channel", ChannelName))
}

// Stop gracefully shuts down the listener
func (l *OutboxListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.logger.Info("Outbox notification listener stopped")
}

func (l *OutboxListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.logger.Info("Reconnecting to PostgreSQL for notifications")
		}
	}
}

func (l *OutboxListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.logger.Debug("Connected to notification channel")
		case pq.ListenerEventDisconnected:
			l.logger.Warn("Disconnected from notification channel", zap.Error(err))
		case pq.ListenerEventReconnected:
			l.logger.Info("Reconnected to notification channel")
			// rows may have been inserted while disconnected
			l.wake()
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Warn("Notification connection attempt failed", zap.Error(err))
		}
	})
	defer listener.Close()

	if err := listener.Listen(ChannelName); err != nil {
		l.logger.Error("Failed to listen on channel", zap.String("channel", ChannelName), zap.Error(err))
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-listener.Notify:
			// a nil notification signals a reconnect, which may have hidden inserts
			l.wake()
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("Listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

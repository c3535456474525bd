package notification

import (
	"context"
	"log/slog"
)

// Event kinds raised by the ledger's archive coordinator.
const (
	// KindMigrationCommitted reports a batch confirmed by the archive.
	KindMigrationCommitted = "migration_committed"

	// KindMigrationFailed reports a batch the archive rejected or never
	// acknowledged; the ledger retries on later writes.
	KindMigrationFailed = "migration_failed"

	// KindArchiveBreaker reports a circuit state change on the archive
	// append path.
	KindArchiveBreaker = "archive_breaker"
)

// Message describes an operational event payload.
type Message struct {
	Kind string
	Body string
}

// Notifier delivers operational events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes events to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Warn("ledger event", "kind", message.Kind, "body", message.Body)
	return nil
}

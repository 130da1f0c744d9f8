// Package notify provides notification sinks. Sink failures never block or
// fail core logic; the worst case is feedback the user does not see.
package notify

import (
	"github.com/sirupsen/logrus"

	"classync/pkg/interfaces"
)

// LogNotifier writes notifications to the structured log. It is the sink of
// last resort for headless deployments; interactive frontends provide their
// own toast-backed implementation.
type LogNotifier struct {
	logger *logrus.Entry
}

// NewLogNotifier creates a log-backed notification sink.
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithField("component", "notifier")}
}

// Notify logs the notification; destructive variants log at warning level.
func (n *LogNotifier) Notify(notification interfaces.Notification) {
	entry := n.logger.WithField("title", notification.Title)
	if notification.Variant == interfaces.VariantDestructive {
		entry.Warn(notification.Description)
		return
	}
	entry.Info(notification.Description)
}

package notification

import (
	"context"

	"github.com/hospitalops/livemon/internal/logger"
)

// LogNotifier writes notifications to the log. It is used when no push
// service is configured.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Discard()
	}
	return &LogNotifier{log: log.Module("notify")}
}

func (n *LogNotifier) Permission(context.Context) (bool, error) { return true, nil }

func (n *LogNotifier) Show(_ context.Context, title, body, tag string) error {
	n.log.Info(title, logger.String("body", body), logger.String("tag", tag))
	return nil
}

func (n *LogNotifier) Dismiss(tag string) {
	n.log.Debug("notification dismissed", logger.String("tag", tag))
}

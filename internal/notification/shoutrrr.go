package notification

import (
	"context"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
)

// sender is the part of the shoutrrr router used here.
type sender interface {
	Send(message string, params *types.Params) []error
}

// ShoutrrrNotifier delivers notifications to push services addressed by
// shoutrrr service URLs (ntfy, gotify, telegram, ...). Push services cannot
// retract messages, so Dismiss only logs.
type ShoutrrrNotifier struct {
	sender sender
	urls   int
	log    logger.Logger
}

// NewShoutrrrNotifier builds a router for urls.
func NewShoutrrrNotifier(urls []string, log logger.Logger) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("no notification urls configured").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.Newf("invalid notification url: %w", err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("urls", len(urls)).
			Build()
	}
	return newShoutrrrNotifier(router, len(urls), log), nil
}

func newShoutrrrNotifier(s sender, urls int, log logger.Logger) *ShoutrrrNotifier {
	if log == nil {
		log = logger.Discard()
	}
	return &ShoutrrrNotifier{sender: s, urls: urls, log: log.Module("shoutrrr")}
}

// Permission is granted whenever at least one service is configured.
func (n *ShoutrrrNotifier) Permission(context.Context) (bool, error) {
	return n.urls > 0, nil
}

// Show sends body with title to every configured service. It fails only
// when no service accepted the message.
func (n *ShoutrrrNotifier) Show(ctx context.Context, title, body, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := types.Params{}
	params.SetTitle(title)

	var failed []error
	for _, err := range n.sender.Send(body, &params) {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	if len(failed) < n.urls {
		n.log.Warn("notification partially delivered",
			logger.String("tag", tag),
			logger.Int("failed", len(failed)),
			logger.Int("services", n.urls),
			logger.Error(errors.Join(failed...)))
		return nil
	}
	return errors.Newf("notification delivery failed: %w", errors.Join(failed...)).
		Component("notification").
		Category(errors.CategoryNetwork).
		Context("tag", tag).
		Build()
}

func (n *ShoutrrrNotifier) Dismiss(tag string) {
	n.log.Debug("dismiss not supported by push services", logger.String("tag", tag))
}

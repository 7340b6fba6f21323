package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/querygate/pkg/eventbus"
	"github.com/dukex/querygate/pkg/notify"
)

// NotifierConfig lists the enabled notification backends and their settings.
type NotifierConfig struct {
	Names      []string
	EventBus   eventbus.EventPublisher
	RedisURL   string
	RedisQueue string
	WebhookURL string
}

// ParseNotifiers splits a comma separated backend list.
func ParseNotifiers(raw string) []string {
	var names []string

	for _, name := range strings.Split(raw, ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			names = append(names, name)
		}
	}

	return names
}

// NewNotifier combines the configured backends. The close function releases
// backend clients and is never nil.
func NewNotifier(ctx context.Context, logger *slog.Logger, cfg NotifierConfig) (notify.Notifier, func() error, error) {
	var (
		multi   notify.Multi
		closers []func() error
	)

	closeAll := func() error {
		var firstErr error

		for _, c := range closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		return firstErr
	}

	for _, name := range cfg.Names {
		switch name {
		case "log":
			multi = append(multi, notify.NewLog(logger))
		case "eventbus":
			if cfg.EventBus == nil {
				return nil, closeAll, fmt.Errorf("notifier %q needs an event bus", name)
			}

			multi = append(multi, notify.NewBus(cfg.EventBus))
		case "redis":
			client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				_ = closeAll()

				return nil, func() error { return nil }, err
			}

			closers = append(closers, client.Close)
			multi = append(multi, notify.NewRedisQueue(client, cfg.RedisQueue))
		case "webhook":
			if cfg.WebhookURL == "" {
				_ = closeAll()

				return nil, func() error { return nil }, fmt.Errorf("notifier %q needs a webhook url", name)
			}

			multi = append(multi, notify.NewWebhook(cfg.WebhookURL, nil))
		default:
			_ = closeAll()

			return nil, func() error { return nil }, fmt.Errorf("unsupported notifier: %s", name)
		}
	}

	if len(multi) == 0 {
		multi = append(multi, notify.NewLog(logger))
	}

	return multi, closeAll, nil
}

package alert

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	envconfig "engage-notify/pkg/config"
)

// Config selects the alert channels.
//
// Environment variables:
//   - DISCORD_ENABLED, DISCORD_WEBHOOK_URL
//   - SLACK_ENABLED, SLACK_WEBHOOK_URL
//   - ALERT_TIMEOUT: bound for one fan-out (default 5s)
type Config struct {
	DiscordWebhookURL string
	SlackWebhookURL   string
	Timeout           time.Duration
}

// LoadConfig reads the alert environment. A channel whose URL does not
// look like a real webhook is disabled with a warning.
func LoadConfig(logger *slog.Logger) Config {
	cfg := Config{Timeout: envconfig.GetEnvDuration("ALERT_TIMEOUT", 5*time.Second)}
	if envconfig.GetEnvBool("DISCORD_ENABLED", false) {
		cfg.DiscordWebhookURL = checkWebhook(logger, "discord",
			envconfig.GetEnvString("DISCORD_WEBHOOK_URL", ""), "discord.com", "/api/webhooks/")
	}
	if envconfig.GetEnvBool("SLACK_ENABLED", false) {
		cfg.SlackWebhookURL = checkWebhook(logger, "slack",
			envconfig.GetEnvString("SLACK_WEBHOOK_URL", ""), "hooks.slack.com", "/services/")
	}
	return cfg
}

func checkWebhook(logger *slog.Logger, channel, raw, host, pathPrefix string) string {
	logger = logger.With(slog.String("channel", channel))
	if raw == "" {
		logger.Warn("webhook URL is empty, alerts disabled")
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		logger.Warn("invalid webhook URL, alerts disabled", slog.Any("error", err))
		return ""
	}
	if u.Scheme != "https" || u.Host != host || !strings.HasPrefix(u.Path, pathPrefix) {
		logger.Warn("webhook URL must be https://"+host+pathPrefix+"..., alerts disabled",
			slog.String("host", u.Host))
		return ""
	}
	return raw
}

// Build returns an Alerter for cfg. It has no channels when none is set.
func Build(cfg Config, logger *slog.Logger) *Alerter {
	var channels []Channel
	if cfg.DiscordWebhookURL != "" {
		channels = append(channels, NewDiscord(cfg.DiscordWebhookURL, cfg.Timeout))
	}
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, NewSlack(cfg.SlackWebhookURL, cfg.Timeout))
	}
	return New(logger, cfg.Timeout, channels...)
}

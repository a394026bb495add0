package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"engage-notify/internal/domain/entity"
)

const (
	slackMaxSection  = 3000
	slackMaxFallback = 150
)

// Slack posts Block Kit messages to an incoming webhook, at most one per
// second.
type Slack struct {
	url     string
	client  *http.Client
	limiter limiter
}

// NewSlack returns a Slack channel for webhookURL.
func NewSlack(webhookURL string, timeout time.Duration) *Slack {
	return &Slack{
		url:     webhookURL,
		client:  &http.Client{Timeout: timeout},
		limiter: newLimiter(1, 1),
	}
}

func (s *Slack) Name() string { return "slack" }

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Slack) payload(f entity.DeliveryFailure) slackPayload {
	fallback := truncate(
		fmt.Sprintf("WhatsApp %s notification failed for order %s", f.NotificationType, orderLabel(f.OrderID)),
		slackMaxFallback, "...")

	section := fmt.Sprintf("*WhatsApp %s notification failed*\n\n%s", f.NotificationType, f.Error)
	footer := fmt.Sprintf("Order %s • template %s • retries %d • log %d",
		orderLabel(f.OrderID), orDash(f.TemplateName), f.RetryCount, f.LogID)
	if !f.At.IsZero() {
		footer += " • " + f.At.UTC().Format(time.RFC3339)
	}

	return slackPayload{
		Text: fallback,
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: truncate(section, slackMaxSection, "...")}},
			{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: footer}}},
		},
	}
}

// Send posts one alert.
func (s *Slack) Send(ctx context.Context, f entity.DeliveryFailure) error {
	if err := s.limiter.allow(); err != nil {
		return err
	}
	return postJSON(ctx, s.client, "slack", s.url, s.payload(f))
}

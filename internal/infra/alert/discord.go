package alert

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"engage-notify/internal/domain/entity"
)

const (
	discordMaxTitle       = 256
	discordMaxDescription = 4096
	discordRed            = 15548997 // #ED4245
)

// Discord posts embeds to a Discord webhook. Discord allows 30 requests per
// minute per webhook, so the local limit is 0.5/s with a burst of 3.
type Discord struct {
	url     string
	client  *http.Client
	limiter limiter
}

// NewDiscord returns a Discord channel for webhookURL.
func NewDiscord(webhookURL string, timeout time.Duration) *Discord {
	return &Discord{
		url:     webhookURL,
		client:  &http.Client{Timeout: timeout},
		limiter: newLimiter(0.5, 3),
	}
}

func (d *Discord) Name() string { return "discord" }

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func (d *Discord) payload(f entity.DeliveryFailure) discordPayload {
	title := truncate(fmt.Sprintf("WhatsApp %s notification failed", f.NotificationType), discordMaxTitle, "...")
	embed := discordEmbed{
		Title:       title,
		Description: truncate(f.Error, discordMaxDescription, "..."),
		Color:       discordRed,
		Fields: []discordField{
			{Name: "Order", Value: orderLabel(f.OrderID), Inline: true},
			{Name: "Template", Value: orDash(f.TemplateName), Inline: true},
			{Name: "Retries", Value: strconv.Itoa(f.RetryCount), Inline: true},
			{Name: "Log", Value: strconv.FormatInt(f.LogID, 10), Inline: true},
		},
	}
	if !f.At.IsZero() {
		embed.Timestamp = f.At.UTC().Format(time.RFC3339)
	}
	return discordPayload{Embeds: []discordEmbed{embed}}
}

// Send posts one alert.
func (d *Discord) Send(ctx context.Context, f entity.DeliveryFailure) error {
	if err := d.limiter.allow(); err != nil {
		return err
	}
	return postJSON(ctx, d.client, "discord", d.url, d.payload(f))
}

func orderLabel(id int64) string {
	if id == 0 {
		return "account event"
	}
	return "#" + strconv.FormatInt(id, 10)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package gateway

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"engage-notify/internal/domain/entity"
)

// Template is an approved WhatsApp template registered on the inbox.
type Template struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Category   string `json:"category"`
	Language   string `json:"language"`
	Header     string `json:"header"`
	Body       string `json:"body"`
	Footer     string `json:"footer"`
	Variables  []int  `json:"variables"`
	Components []any  `json:"components"`
}

var placeholderNumber = regexp.MustCompile(`\{\{(\d+)\}\}`)

// ListTemplates returns the message templates attached to the inbox.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	switch {
	case c.cfg.APIToken == "":
		return nil, &entity.ConfigurationError{Field: "api_token", Message: "API access token is not configured."}
	case c.cfg.AccountID <= 0:
		return nil, &entity.ConfigurationError{Field: "account_id", Message: "Account ID is not configured."}
	case c.cfg.InboxID <= 0:
		return nil, &entity.ConfigurationError{Field: "inbox_id", Message: "WhatsApp Inbox ID is not configured."}
	}
	if err := c.reserve(); err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, "inboxes.get", c.accountPath("/inboxes/"+strconv.FormatInt(c.cfg.InboxID, 10)), nil)
	if err != nil {
		return nil, err
	}

	raw := asSlice(resp.object()["message_templates"])
	out := make([]Template, 0, len(raw))
	for _, item := range raw {
		out = append(out, parseTemplate(asMap(item)))
	}
	return out, nil
}

func parseTemplate(m map[string]any) Template {
	t := Template{
		ID:         asString(m["id"]),
		Name:       asString(m["name"]),
		Status:     asString(m["status"]),
		Category:   asString(m["category"]),
		Language:   asString(m["language"]),
		Components: asSlice(m["components"]),
		Variables:  []int{},
	}
	if t.Components == nil {
		t.Components = []any{}
	}
	for _, item := range t.Components {
		comp := asMap(item)
		text, hasText := comp["text"].(string)
		switch asString(comp["type"]) {
		case "BODY":
			t.Body = text
		case "HEADER":
			if hasText {
				t.Header = text
			}
		case "FOOTER":
			if hasText {
				t.Footer = text
			}
		}
	}

	seen := make(map[int]bool)
	for _, match := range placeholderNumber.FindAllStringSubmatch(t.Body+t.Header, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		t.Variables = append(t.Variables, n)
	}
	sort.Ints(t.Variables)
	return t
}

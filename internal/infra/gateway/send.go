package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/observability/tracing"
)

// SendRequest describes one template message.
type SendRequest struct {
	Phone        string
	TemplateName string
	// Params are the positional template values, index 0 is {{1}}.
	Params   []string
	MediaURL string
	// Language overrides the configured template_language when set.
	Language string
	// Body is the template text with {{N}} placeholders, used to render the
	// human-readable copy shown in the inbox.
	Body              string
	BodyVariableCount int
	ButtonVariables   []entity.ButtonVariable
}

// SendResult is the outcome of a successful send.
type SendResult struct {
	Success        bool            `json:"success"`
	ConversationID int64           `json:"conversation_id"`
	MessageID      int64           `json:"message_id,omitempty"`
	Status         string          `json:"status"`
	StatusMessage  string          `json:"status_message"`
	RawResponse    json.RawMessage `json:"response_data,omitempty"`
}

// SendTemplateMessage delivers a template message to req.Phone.
//
// Configuration and input problems are reported before any request is made,
// as *entity.ConfigurationError and *entity.ValidationError. Gateway
// failures are *entity.TransportError or *entity.GatewayLogicError.
func (c *Client) SendTemplateMessage(ctx context.Context, req SendRequest) (res *SendResult, err error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}
	phone, err := NormalizePhone(req.Phone, c.settings.CountryCode)
	if err != nil {
		return nil, err
	}
	if err := c.reserve(); err != nil {
		return nil, err
	}

	ctx, span := tracing.GetTracer().Start(ctx, "gateway.SendTemplateMessage")
	span.SetAttributes(attribute.String("template", req.TemplateName))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	contactID, err := c.findOrCreateContact(ctx, phone)
	if err != nil {
		return nil, err
	}
	sourceID, err := c.ensureContactInbox(ctx, contactID, phone)
	if err != nil {
		return nil, err
	}

	params := c.BuildTemplateParams(req)
	content := c.BuildContent(req.TemplateName, req.Params, req.Body)

	if convID, ok := c.findExistingConversation(ctx, contactID); ok {
		res, err := c.sendToConversation(ctx, convID, content, params)
		if err == nil {
			return res, nil
		}
		c.logger.Warn("send to existing conversation failed, creating a new one",
			slog.Int64("conversation_id", convID),
			slog.Any("error", err))
	}
	return c.createConversation(ctx, contactID, sourceID, content, params)
}

func (c *Client) validate(req SendRequest) error {
	switch {
	case strings.TrimSpace(c.cfg.APIToken) == "":
		return &entity.ConfigurationError{Field: "api_token", Message: "API access token is not configured."}
	case c.cfg.AccountID <= 0:
		return &entity.ConfigurationError{Field: "account_id", Message: "Account ID is not configured."}
	case c.cfg.InboxID <= 0:
		return &entity.ConfigurationError{Field: "inbox_id", Message: "WhatsApp Inbox ID is not configured."}
	case strings.TrimSpace(req.Phone) == "":
		return &entity.ValidationError{Field: "phone_number", Message: "Phone number is required."}
	case strings.TrimSpace(req.TemplateName) == "":
		return &entity.ValidationError{Field: "template_name", Message: "Template name is required."}
	}
	return nil
}

func (c *Client) findOrCreateContact(ctx context.Context, phone string) (int64, error) {
	if id, ok := c.searchContact(ctx, phone); ok {
		return id, nil
	}
	return c.createContact(ctx, phone)
}

// searchContact looks for an exact digit match. Search failures are treated
// as "not found" so the contact gets created.
func (c *Client) searchContact(ctx context.Context, phone string) (int64, bool) {
	digits := digitsOnly(phone)
	resp, err := c.get(ctx, "contacts.search", c.accountPath("/contacts/search"),
		url.Values{"q": {strings.TrimPrefix(phone, "+")}})
	if err != nil {
		c.logger.Debug("contact search failed", slog.Any("error", err))
		return 0, false
	}
	for _, item := range asSlice(resp.object()["payload"]) {
		contact := asMap(item)
		if digitsOnly(asString(contact["phone_number"])) != digits {
			continue
		}
		if id, ok := asInt64(contact["id"]); ok {
			return id, true
		}
	}
	return 0, false
}

func (c *Client) createContact(ctx context.Context, phone string) (int64, error) {
	resp, err := c.post(ctx, "contacts.create", c.accountPath("/contacts"), map[string]any{
		"inbox_id":     c.cfg.InboxID,
		"phone_number": phone,
		"name":         phone,
	})
	if err != nil {
		return 0, err
	}
	body := resp.object()
	if contact := asMap(asMap(body["payload"])["contact"]); contact != nil {
		if id, ok := asInt64(contact["id"]); ok {
			return id, nil
		}
	}
	if id, ok := asInt64(body["id"]); ok {
		return id, nil
	}
	return 0, &entity.GatewayLogicError{Message: "Failed to create contact."}
}

// ensureContactInbox returns the source id binding the contact to the
// WhatsApp inbox, creating the binding when it does not exist yet.
func (c *Client) ensureContactInbox(ctx context.Context, contactID int64, phone string) (string, error) {
	contactPath := c.accountPath("/contacts/" + strconv.FormatInt(contactID, 10))
	if resp, err := c.get(ctx, "contacts.get", contactPath, nil); err == nil {
		for _, item := range asSlice(resp.object()["contact_inboxes"]) {
			ci := asMap(item)
			if id, ok := asInt64(asMap(ci["inbox"])["id"]); ok && id == c.cfg.InboxID {
				return asString(ci["source_id"]), nil
			}
		}
	}

	digits := strings.TrimPrefix(phone, "+")
	resp, err := c.post(ctx, "contact_inboxes.create", contactPath+"/contact_inboxes", map[string]any{
		"inbox_id":  c.cfg.InboxID,
		"source_id": digits,
	})
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "already") || strings.Contains(msg, "exists") {
			return digits, nil
		}
		return "", err
	}
	if sid := asString(resp.object()["source_id"]); sid != "" {
		return sid, nil
	}
	return digits, nil
}

// findExistingConversation picks a conversation in the configured inbox:
// the first open one, else the first resolved or pending one.
func (c *Client) findExistingConversation(ctx context.Context, contactID int64) (int64, bool) {
	resp, err := c.get(ctx, "contacts.conversations",
		c.accountPath("/contacts/"+strconv.FormatInt(contactID, 10)+"/conversations"), nil)
	if err != nil {
		return 0, false
	}

	list := asSlice(resp.data)
	if m := asMap(resp.data); m != nil {
		list = asSlice(m["payload"])
	}

	var fallback int64
	for _, item := range list {
		conv := asMap(item)
		inboxID, _ := asInt64(conv["inbox_id"])
		if inboxID != c.cfg.InboxID {
			continue
		}
		id, ok := asInt64(conv["id"])
		if !ok || id == 0 {
			continue
		}
		switch asString(conv["status"]) {
		case "open":
			return id, true
		case "resolved", "pending":
			if fallback == 0 {
				fallback = id
			}
		}
	}
	return fallback, fallback != 0
}

func (c *Client) sendToConversation(ctx context.Context, convID int64, content string, params TemplateParams) (*SendResult, error) {
	resp, err := c.post(ctx, "conversations.messages",
		c.accountPath("/conversations/"+strconv.FormatInt(convID, 10)+"/messages"),
		map[string]any{
			"content":         content,
			"message_type":    "outgoing",
			"template_params": params,
		})
	if err != nil {
		return nil, err
	}
	body := resp.object()
	if msg, ok := errorMessage(body); ok {
		return nil, &entity.GatewayLogicError{Message: msg}
	}
	messageID, _ := asInt64(body["id"])
	return &SendResult{
		Success:        true,
		ConversationID: convID,
		MessageID:      messageID,
		Status:         "sent",
		StatusMessage:  fmt.Sprintf("Message sent to conversation #%d", convID),
		RawResponse:    resp.raw,
	}, nil
}

func (c *Client) createConversation(ctx context.Context, contactID int64, sourceID, content string, params TemplateParams) (*SendResult, error) {
	resp, err := c.post(ctx, "conversations.create", c.accountPath("/conversations"), map[string]any{
		"source_id":  sourceID,
		"inbox_id":   c.cfg.InboxID,
		"contact_id": contactID,
		"status":     "open",
		"message": map[string]any{
			"content":         content,
			"template_params": params,
		},
	})
	if err != nil {
		return nil, err
	}
	return parseSendResponse(resp)
}

func parseSendResponse(resp *response) (*SendResult, error) {
	body := resp.object()
	if msg, ok := errorMessage(body); ok {
		return nil, &entity.GatewayLogicError{Message: msg}
	}
	convID, ok := asInt64(body["id"])
	if !ok {
		return nil, &entity.GatewayLogicError{Message: "Unexpected API response format."}
	}
	var messageID int64
	if msgs := asSlice(body["messages"]); len(msgs) > 0 {
		messageID, _ = asInt64(asMap(msgs[len(msgs)-1])["id"])
	}
	return &SendResult{
		Success:        true,
		ConversationID: convID,
		MessageID:      messageID,
		Status:         "sent",
		StatusMessage:  fmt.Sprintf("Conversation #%d created", convID),
		RawResponse:    resp.raw,
	}, nil
}

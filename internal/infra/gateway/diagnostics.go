package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"engage-notify/internal/domain/entity"
)

// AccessReport is the outcome of TestFullAccess. Messages holds one line per
// stage that ran.
type AccessReport struct {
	Profile  bool     `json:"profile"`
	Account  bool     `json:"account"`
	Inbox    bool     `json:"inbox"`
	Messages []string `json:"messages"`
}

// TestFullAccess checks the token, the account and the inbox in that order
// and stops at the first stage that fails.
func (c *Client) TestFullAccess(ctx context.Context) AccessReport {
	report := AccessReport{Messages: []string{}}

	if err := c.TestConnection(ctx); err != nil {
		report.Messages = append(report.Messages, "Profile: "+err.Error())
		return report
	}
	report.Profile = true
	report.Messages = append(report.Messages, "Profile: Connected successfully")

	if c.cfg.AccountID <= 0 {
		report.Messages = append(report.Messages, "Account: Account ID not configured")
		return report
	}
	account := strconv.FormatInt(c.cfg.AccountID, 10)
	_, err := c.get(ctx, "contacts.list", c.accountPath("/contacts"), url.Values{
		"page":     {"1"},
		"per_page": {"1"},
	})
	if err != nil {
		if hasStatus(err, http.StatusUnauthorized) || strings.Contains(err.Error(), "not authorized") {
			report.Messages = append(report.Messages, "Account: Your API token does not have access to Account ID "+account+
				". Please verify the Account ID is correct and your user has access to this account.")
		} else {
			report.Messages = append(report.Messages, "Account: "+err.Error())
		}
		return report
	}
	report.Account = true
	report.Messages = append(report.Messages, "Account: Access verified for Account ID "+account)

	if c.cfg.InboxID <= 0 {
		report.Messages = append(report.Messages, "Inbox: Inbox ID not configured")
		return report
	}
	resp, err := c.get(ctx, "inboxes.get", c.accountPath("/inboxes/"+strconv.FormatInt(c.cfg.InboxID, 10)), nil)
	if err != nil {
		report.Messages = append(report.Messages, "Inbox: "+err.Error())
		return report
	}
	report.Inbox = true
	name := asString(resp.object()["name"])
	if name == "" {
		name = "Unknown"
	}
	report.Messages = append(report.Messages, fmt.Sprintf("Inbox: Connected to %q (ID: %d)", name, c.cfg.InboxID))
	return report
}

// TestConnection validates the access token against the profile endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIToken) == "" {
		return &entity.ConfigurationError{Field: "api_token", Message: "API access token is required."}
	}
	if err := c.reserve(); err != nil {
		return err
	}
	resp, err := c.get(ctx, "profile", "/api/v1/profile", nil)
	if err != nil {
		if hasStatus(err, http.StatusUnauthorized) || hasStatus(err, http.StatusForbidden) {
			return &entity.ConfigurationError{Field: "api_token", Message: "Invalid API access token."}
		}
		return err
	}
	profile := resp.object()
	for _, key := range []string{"id", "email", "name"} {
		if v, ok := profile[key]; ok && v != nil {
			return nil
		}
	}
	return &entity.GatewayLogicError{Message: "API connection test failed."}
}

func hasStatus(err error, code int) bool {
	var te *entity.TransportError
	return errors.As(err, &te) && te.StatusCode == code
}

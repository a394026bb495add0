package entity

import (
	"fmt"
	"net/url"
	"strings"
)

// maxURLLength defines the maximum allowed length for media URLs.
const maxURLLength = 2048

// ValidateMediaURL checks that a header media URL is absolute and uses the
// http or https scheme. The gateway fetches the media itself, so no
// reachability check is done here.
func ValidateMediaURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "media_url", Message: "URL is required"}
	}
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "media_url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "media_url", Message: err.Error()}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "media_url", Message: "URL must use http or https scheme"}
	}
	if parsedURL.Host == "" {
		return &ValidationError{Field: "media_url", Message: "URL must have a valid host"}
	}
	return nil
}

// Validate checks the inbound transition event before it reaches the
// dispatcher.
func (c *StatusChange) Validate() error {
	if c.OrderID <= 0 {
		return &ValidationError{Field: "order_id", Message: "must be positive"}
	}
	if strings.TrimSpace(c.NewStatus) == "" {
		return &ValidationError{Field: "new_status", Message: "is required"}
	}
	if c.Order == nil {
		return &ValidationError{Field: "order", Message: "is required"}
	}
	if c.Order.ID != 0 && c.Order.ID != c.OrderID {
		return &ValidationError{Field: "order.id", Message: "does not match order_id"}
	}
	return nil
}

// Validate checks an inbound account event.
func (e *AccountEvent) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return &ValidationError{Field: "type", Message: "is required"}
	}
	return nil
}

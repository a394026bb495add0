package entity

import (
	"strconv"
	"strings"
	"time"
)

// Order is a read-only snapshot of a store order as delivered by the order
// event source. The dispatcher never mutates it.
type Order struct {
	ID       int64      `json:"id"`
	Number   string     `json:"number,omitempty"`
	Status   string     `json:"status"`
	Created  time.Time  `json:"date_created"`
	Billing  Address    `json:"billing"`
	Shipping Address    `json:"shipping"`
	Items    []LineItem `json:"line_items"`

	// TotalFormatted is the display total as rendered by the store. It may
	// contain markup and HTML entities.
	TotalFormatted string  `json:"total_formatted"`
	Total          float64 `json:"total"`
	CurrencySymbol string  `json:"currency_symbol"`

	CouponCodes    []string       `json:"coupon_codes,omitempty"`
	PaymentMethod  string         `json:"payment_method_title,omitempty"`
	ShippingMethod string         `json:"shipping_method_title,omitempty"`
	PaymentURL     string         `json:"payment_url,omitempty"`
	Meta           map[string]any `json:"meta_data,omitempty"`
	Store          Store          `json:"store"`
}

// Address holds the billing or shipping contact block of an order.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1,omitempty"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// LineItem is one product line of an order.
type LineItem struct {
	Name             string `json:"name"`
	ProductID        int64  `json:"product_id"`
	Quantity         int    `json:"quantity,omitempty"`
	Permalink        string `json:"permalink,omitempty"`
	FeaturedImageURL string `json:"featured_image_url,omitempty"`
}

// Store carries the storefront URLs referenced by template variables.
type Store struct {
	Name         string `json:"name" yaml:"name"`
	SiteURL      string `json:"site_url" yaml:"site_url"`
	ShopURL      string `json:"shop_url,omitempty" yaml:"shop_url"`
	CartURL      string `json:"cart_url,omitempty" yaml:"cart_url"`
	MyAccountURL string `json:"my_account_url,omitempty" yaml:"my_account_url"`
}

// StatusChange is the inbound order transition event.
type StatusChange struct {
	OrderID   int64  `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Order     *Order `json:"order"`

	// InPaymentOperation is set by the source while a payment gateway is
	// still processing the order.
	InPaymentOperation bool `json:"in_payment_operation,omitempty"`
}

// AccountEvent is a non-order customer event such as a registration.
type AccountEvent struct {
	Type     string  `json:"type"`
	Customer Address `json:"customer"`
	Store    Store   `json:"store"`
}

// DisplayNumber returns the customer facing order number.
func (o *Order) DisplayNumber() string {
	if o.Number != "" {
		return o.Number
	}
	if o.ID == 0 {
		return ""
	}
	return strconv.FormatInt(o.ID, 10)
}

// MetaString looks up a metadata value and returns it as a trimmed string.
// Non-string values yield "".
func (o *Order) MetaString(key string) string {
	if o.Meta == nil {
		return ""
	}
	v, ok := o.Meta[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// FormatAddress joins the non-empty address lines with ", ".
func (a Address) FormatAddress() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	parts := []string{name, a.Company, a.Address1, a.Address2, a.City, a.State, a.Postcode, a.Country}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// IsEmpty reports whether no street level data is present.
func (a Address) IsEmpty() bool {
	return strings.TrimSpace(a.Address1+a.City+a.Postcode) == ""
}

// OrderFromAccountEvent builds the pseudo-order used for account level
// notifications. It has no ID, so it never matches order idempotency keys
// of real orders.
func OrderFromAccountEvent(ev AccountEvent) *Order {
	return &Order{
		Billing: ev.Customer,
		Store:   ev.Store,
		Created: time.Now(),
	}
}

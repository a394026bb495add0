package notify

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"engage-notify/internal/domain/entity"
)

// Placeholder is substituted for any mapped variable whose value is empty.
// The gateway rejects empty template parameters.
const Placeholder = "---"

const customTextField = "custom_text"

// trackingKey=trackingValue is added to outbound store links.
const (
	trackingKey   = "engage"
	trackingValue = "whatsapp"
)

var urlFields = map[string]bool{
	"tracking_url":   true,
	"product_url":    true,
	"cart_url":       true,
	"shop_url":       true,
	"my_account_url": true,
	"payment_url":    true,
}

// wcStatusLabels are the store's display names for its built-in statuses.
var wcStatusLabels = map[string]string{
	"pending":        "Pending payment",
	"processing":     "Processing",
	"on-hold":        "On hold",
	"completed":      "Completed",
	"cancelled":      "Cancelled",
	"refunded":       "Refunded",
	"failed":         "Failed",
	"checkout-draft": "Draft",
}

// Resolver turns a variable map into positional template parameters.
type Resolver struct{}

// Resolve returns the parameter list for the given 1-based variable map.
// The list is as long as the highest mapped index; lower indexes with no
// mapping are filled with Placeholder.
func (Resolver) Resolve(order *entity.Order, variableMap, customText map[int]string) []string {
	highest := 0
	for idx, field := range variableMap {
		if idx > highest && strings.TrimSpace(field) != "" {
			highest = idx
		}
	}
	if highest == 0 {
		return []string{}
	}

	params := make([]string, highest)
	for i := 1; i <= highest; i++ {
		field := strings.TrimSpace(variableMap[i])
		if field == "" {
			params[i-1] = Placeholder
			continue
		}
		var v string
		if field == customTextField {
			v = strings.TrimSpace(customText[i])
		} else {
			v = strings.TrimSpace(fieldValue(order, field))
		}
		if v == "" {
			v = Placeholder
		}
		params[i-1] = v
	}
	return params
}

// fieldValue looks up one catalog field. Unknown fields resolve to "".
func fieldValue(o *entity.Order, field string) string {
	if o == nil {
		return ""
	}
	v := rawFieldValue(o, field)
	if urlFields[field] {
		v = withTracking(v)
	}
	return v
}

func rawFieldValue(o *entity.Order, field string) string {
	switch field {
	case "customer_name", "full_name":
		return orDefault(strings.TrimSpace(o.Billing.FirstName+" "+o.Billing.LastName), "Customer")
	case "customer_first_name", "first_name":
		return orDefault(strings.TrimSpace(o.Billing.FirstName), "Customer")
	case "customer_last_name", "last_name":
		return o.Billing.LastName
	case "customer_email":
		return o.Billing.Email
	case "order_id", "order_number":
		return o.DisplayNumber()
	case "order_total":
		return cleanOrderTotal(o)
	case "order_total_raw":
		return fmt.Sprintf("%.2f", o.Total)
	case "order_date":
		if o.Created.IsZero() {
			return ""
		}
		return o.Created.Format("January 2, 2006")
	case "order_status":
		return StatusLabel(o.Status)
	case "product_names", "order_items":
		names := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			if n := strings.TrimSpace(it.Name); n != "" {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			return "Order Items"
		}
		return strings.Join(names, ", ")
	case "product_count":
		return strconv.Itoa(itemCount(o.Items))
	case "shipping_address":
		if !o.Shipping.IsEmpty() {
			return o.Shipping.FormatAddress()
		}
		return o.Billing.FormatAddress()
	case "billing_address":
		return o.Billing.FormatAddress()
	case "payment_method":
		return o.PaymentMethod
	case "shipping_method":
		return o.ShippingMethod
	case "tracking_url":
		return trackingURL(o)
	case "tracking_number":
		return firstNonEmpty(
			o.MetaString("_tracking_number"),
			o.MetaString("tracking_number"),
			shipmentTracking(o, "tracking_number"),
		)
	case "coupon_code":
		return strings.Join(o.CouponCodes, ", ")
	case "product_url":
		if len(o.Items) > 0 && o.Items[0].Permalink != "" {
			return o.Items[0].Permalink
		}
		return o.Store.ShopURL
	case "cart_url":
		return o.Store.CartURL
	case "shop_url":
		return o.Store.ShopURL
	case "my_account_url":
		return o.Store.MyAccountURL
	case "payment_url":
		return orDefault(o.PaymentURL, o.Store.SiteURL)
	case "site_name":
		return o.Store.Name
	default:
		return ""
	}
}

// StatusLabel renders an order status for display. Built-in statuses use
// the store's labels; anything else is de-slugged.
func StatusLabel(status string) string {
	s := strings.TrimPrefix(strings.TrimSpace(status), "wc-")
	if label, ok := wcStatusLabels[s]; ok {
		return label
	}
	s = strings.ReplaceAll(s, "-", " ")
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func itemCount(items []entity.LineItem) int {
	n := 0
	for _, it := range items {
		if it.Quantity > 0 {
			n += it.Quantity
		} else {
			n++
		}
	}
	return n
}

func trackingURL(o *entity.Order) string {
	if v := firstNonEmpty(
		o.MetaString("_tracking_url"),
		o.MetaString("tracking_url"),
		shipmentTracking(o, "tracking_link"),
	); v != "" {
		return v
	}
	if o.Store.SiteURL == "" {
		return ""
	}
	return strings.TrimRight(o.Store.SiteURL, "/") + "/track-order/"
}

// shipmentTracking reads a key from the first entry of the shipment
// tracking plugin's item list.
func shipmentTracking(o *entity.Order, key string) string {
	items, ok := o.Meta["_wc_shipment_tracking_items"].([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := first[key].(string)
	return strings.TrimSpace(v)
}

// cleanOrderTotal strips markup from the store rendered total.
func cleanOrderTotal(o *entity.Order) string {
	total := ""
	if o.TotalFormatted != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(o.TotalFormatted))
		if err == nil {
			total = doc.Text()
		} else {
			total = o.TotalFormatted
		}
	}
	total = strings.TrimSpace(strings.ReplaceAll(total, "\u00a0", " "))

	if sym := o.CurrencySymbol; sym != "" {
		for strings.Contains(total, sym+sym) {
			total = strings.ReplaceAll(total, sym+sym, sym)
		}
	}

	if total == "" {
		if o.Total > 0 {
			return o.CurrencySymbol + fmt.Sprintf("%.2f", o.Total)
		}
		return Placeholder
	}
	return total
}

// withTracking tags absolute http(s) links so clicks can be attributed. The
// parameter goes into the query, ahead of any fragment, and is added once.
func withTracking(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return link
	}
	if u.Query().Has(trackingKey) {
		return link
	}
	base, fragment, hasFragment := strings.Cut(link, "#")
	switch {
	case !strings.Contains(base, "?"):
		base += "?"
	case !strings.HasSuffix(base, "?") && !strings.HasSuffix(base, "&"):
		base += "&"
	}
	base += trackingKey + "=" + trackingValue
	if hasFragment {
		return base + "#" + fragment
	}
	return base
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

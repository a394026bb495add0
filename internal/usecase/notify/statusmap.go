package notify

import (
	"sort"
	"strings"

	"engage-notify/internal/config"
	"engage-notify/internal/domain/entity"
)

// standardStatuses maps core and common shipping-plugin statuses.
var standardStatuses = map[string]string{
	"cancelled":        entity.TypeOrderCancelled,
	"failed":           entity.TypeOrderFailed,
	"refunded":         entity.TypeOrderRefunded,
	"completed":        entity.TypeOrderCompleted,
	"shipped":          entity.TypeOrderShipped,
	"partial-shipped":  entity.TypeOrderShipped,
	"out-for-delivery": entity.TypeOrderShipped,
	"dispatched":       entity.TypeOrderShipped,
	"in-transit":       entity.TypeOrderShipped,
	"ready-for-pickup": entity.TypeOrderShipped,
	"pickup-ready":     entity.TypeOrderShipped,
	"delivered":        entity.TypeOrderDelivered,
	"picked-up":        entity.TypeOrderDelivered,
}

// thirdPartyStatuses are statuses registered by tracking plugins. They are
// matched with or without the "wc-" prefix.
var thirdPartyStatuses = map[string]string{
	"ast-shipped":           entity.TypeOrderShipped,
	"ast-out-for-delivery":  entity.TypeOrderShipped,
	"ast-in-transit":        entity.TypeOrderShipped,
	"shipstation-shipped":   entity.TypeOrderShipped,
	"ss-shipped":            entity.TypeOrderShipped,
	"ast-delivered":         entity.TypeOrderDelivered,
	"delivered-to-customer": entity.TypeOrderDelivered,
	"ast-return-to-sender":  entity.TypeOrderCancelled,
}

// MatchNotificationTypes returns the notification types an order entering
// newStatus should fire, in firing order and without duplicates.
//
// order_completed is returned as is; the shipped-before-completed priority
// needs the delivery log and is applied by the Dispatcher.
func MatchNotificationTypes(newStatus string, s *config.Settings) []string {
	newStatus = strings.TrimSpace(newStatus)
	if newStatus == "" || s == nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}

	switch newStatus {
	case "pending":
		add(entity.TypeOrderReceived)
	case "processing":
		add(entity.TypeOrderProcessing)
	}

	for _, t := range mappingKeys(s.StatusMapping) {
		if statusMatches(newStatus, s.StatusMapping[t]) {
			add(t)
		}
	}

	add(standardStatuses[newStatus])
	add(thirdPartyStatuses[strings.TrimPrefix(newStatus, "wc-")])

	bare := strings.TrimPrefix(newStatus, "wc-")
	for _, cs := range s.CustomStatuses {
		if !cs.IsOrderStatus() {
			continue
		}
		if w := strings.TrimPrefix(strings.TrimSpace(cs.WCStatus), "wc-"); w != "" && w == bare {
			add(cs.ID)
		}
	}
	return out
}

// AccountEventTypes returns the custom notification types bound to a non
// order event such as "user_registered".
func AccountEventTypes(eventType string, s *config.Settings) []string {
	if eventType == "" || s == nil {
		return nil
	}
	var out []string
	for _, cs := range s.CustomStatuses {
		if cs.IsOrderStatus() || cs.EventType != eventType || cs.ID == "" {
			continue
		}
		out = append(out, cs.ID)
	}
	return out
}

// statusMatches compares an incoming status with an admin mapped one,
// tolerating a "wc-" prefix on either side.
func statusMatches(status, mapped string) bool {
	mapped = strings.TrimSpace(mapped)
	if mapped == "" {
		return false
	}
	switch {
	case status == mapped:
		return true
	case status == "wc-"+mapped:
		return true
	case "wc-"+status == mapped:
		return true
	}
	return false
}

// mappingKeys orders status_mapping keys the way rules are displayed:
// default types first, then the rest alphabetically.
func mappingKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, t := range entity.DefaultNotificationTypes {
		if _, ok := m[t]; ok {
			keys = append(keys, t)
			seen[t] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

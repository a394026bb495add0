package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrNoPhone indicates that neither the configured phone field nor the
	// billing phone holds a number. The attempt is logged as an error and
	// the gateway is not called.
	ErrNoPhone = errors.New("customer phone number not found")

	// ErrRuleDisabled indicates that the notification type has no enabled
	// rule. Nothing is logged for it.
	ErrRuleDisabled = errors.New("notification rule is disabled")

	// ErrUnknownTask is returned by ExecuteTask for a task kind it does not
	// handle.
	ErrUnknownTask = errors.New("unknown deferred task kind")
)

// Delivery log messages. They are shown to store administrators verbatim.
const (
	msgNoPhone             = "Customer phone number not found."
	msgScheduleFailed      = "Failed to schedule delayed notification"
	msgDelayedOrderMissing = "Order not found when executing delayed notification"
	msgDelayedSent         = "Delayed notification sent successfully"
	msgDelayedFailedPrefix = "Delayed notification failed: "
)

package entity

import (
	"encoding/json"
	"time"
)

// Default notification type keys.
const (
	TypeOrderReceived   = "order_received"
	TypeOrderProcessing = "order_processing"
	TypeOrderShipped    = "order_shipped"
	TypeOrderDelivered  = "order_delivered"
	TypeOrderCompleted  = "order_completed"
	TypeOrderCancelled  = "order_cancelled"
	TypeOrderFailed     = "order_failed"
	TypeOrderRefunded   = "order_refunded"
)

// DefaultNotificationTypes lists the built-in keys in display order.
var DefaultNotificationTypes = []string{
	TypeOrderReceived,
	TypeOrderProcessing,
	TypeOrderShipped,
	TypeOrderDelivered,
	TypeOrderCompleted,
	TypeOrderCancelled,
	TypeOrderFailed,
	TypeOrderRefunded,
}

// ButtonVariable binds a template URL button to a body placeholder.
type ButtonVariable struct {
	Type             string `json:"type" yaml:"type"`
	PlaceholderIndex int    `json:"var_num" yaml:"var_num"`
}

// NotificationRule is the normalized per-type message configuration.
//
// Rules are produced once when settings are loaded. Both the current
// template_config shape and the legacy per-field arrays end up here, so the
// dispatcher only deals with one form.
type NotificationRule struct {
	Type              string           `json:"type"`
	Enabled           bool             `json:"enabled"`
	TemplateName      string           `json:"template_name"`
	TemplateLanguage  string           `json:"template_lang,omitempty"`
	TemplateBody      string           `json:"template_body,omitempty"`
	VariableMap       map[int]string   `json:"variable_map,omitempty"`
	CustomText        map[int]string   `json:"custom_text,omitempty"`
	HeaderImageURL    string           `json:"header_image_url,omitempty"`
	LegacyImageURL    string           `json:"legacy_image_url,omitempty"`
	UseProductImage   bool             `json:"use_product_image,omitempty"`
	ButtonVariables   []ButtonVariable `json:"button_variables,omitempty"`
	BodyVariableCount int              `json:"body_variable_count,omitempty"`
	DelayMinutes      int              `json:"delay_minutes,omitempty"`
}

// Delivery log statuses.
const (
	StatusPending   = "pending"
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusRetry     = "retry"
	StatusScheduled = "scheduled"
)

// DeliveryAttempt is one row of the delivery log.
type DeliveryAttempt struct {
	ID           int64
	OrderID      int64
	PhoneNumber  string
	TemplateName string
	Status       string
	ResponseData json.RawMessage
	APIResponse  json.RawMessage
	ErrorMessage string
	RetryCount   int
	// ScheduleEntry marks the bookkeeping row written when a delayed send
	// is queued. It never counts as a delivered message.
	ScheduleEntry bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusUpdate is a partial update of a delivery log row. Nil fields are
// left untouched.
type StatusUpdate struct {
	Status       string
	ResponseData json.RawMessage
	APIResponse  json.RawMessage
	ErrorMessage *string
	RetryCount   *int
}

// LogFilter selects delivery log rows for reporting.
type LogFilter struct {
	OrderID int64
	Status  string
	Limit   int
	Offset  int
	OrderBy string
	Order   string
}

// LogStats counts delivery log rows per status over a time window.
type LogStats struct {
	Success   int64 `json:"success"`
	Error     int64 `json:"error"`
	Pending   int64 `json:"pending"`
	Retry     int64 `json:"retry"`
	Scheduled int64 `json:"scheduled"`
	Total     int64 `json:"total"`
}

// Deferred task kinds.
const (
	TaskDelayedSend = "delayed_send"
	TaskRetry       = "retry"
)

// DeferredTask is a unit of future work kept in the durable queue.
type DeferredTask struct {
	ID               string           `json:"id"`
	Kind             string           `json:"kind"`
	OrderID          int64            `json:"order_id"`
	NotificationType string           `json:"notification_type"`
	LogID            int64            `json:"log_id"`
	Rule             NotificationRule `json:"rule"`
	RunAt            time.Time        `json:"run_at"`
	CreatedAt        time.Time        `json:"created_at"`
}

// DeliveryFailure describes a notification that failed and will not be
// attempted again, either because the error is not retryable or because the
// retry budget is spent.
type DeliveryFailure struct {
	LogID            int64
	OrderID          int64
	NotificationType string
	TemplateName     string
	RetryCount       int
	Error            string
	At               time.Time
}

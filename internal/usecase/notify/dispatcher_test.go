package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engage-notify/internal/domain/entity"
)

/* ─────────────────────────── 1. Immediate send ─────────────────────────── */

func TestDispatcher_ImmediateSend(t *testing.T) {
	h := newHarness(t, "")
	order := sampleOrder()

	h.d.OnOrderStatusChanged(context.Background(), statusChange(order, "processing"))

	calls := h.sender.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "+14155551234", calls[0].Phone)
	assert.Equal(t, "order_confirmation", calls[0].TemplateName)
	assert.Equal(t, []string{"Jane Doe", "1001", "$25.00"}, calls[0].Params)
	assert.Equal(t, "Hi {{1}}, your order #{{2}} is now being processed. Total: {{3}}", calls[0].Body)

	success := h.logs.byStatus(entity.StatusSuccess)
	require.Len(t, success, 1)
	row := success[0]
	assert.Equal(t, int64(1001), row.OrderID)
	assert.Equal(t, "order_confirmation", row.TemplateName)

	var result map[string]any
	require.NoError(t, json.Unmarshal(row.APIResponse, &result))
	assert.Equal(t, float64(77), result["conversation_id"])
	assert.JSONEq(t, string(row.APIResponse), string(row.ResponseData))
	assert.Empty(t, h.queue.pending())
}

func TestDispatcher_PendingRowCarriesTemplateVars(t *testing.T) {
	h := newHarness(t, "")
	h.sender.errs = []error{&entity.ValidationError{Field: "template_name", Message: "Template name is required."}}

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))

	row := h.logs.row(t, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(row.ResponseData, &payload))
	assert.Equal(t, []any{"Jane Doe", "1001", "$25.00"}, payload["template_vars"])
	assert.Equal(t, float64(3), payload["template_vars_count"])
	assert.Equal(t, "order_processing", payload["notification_type"])
	assert.Equal(t, map[string]any{"1": "full_name", "2": "order_id", "3": "order_total"}, payload["variable_map"])
}

/* ─────────────────────────── 2. Idempotency ─────────────────────────── */

func TestDispatcher_Idempotency(t *testing.T) {
	h := newHarness(t, "")
	ev := statusChange(sampleOrder(), "processing")

	h.d.OnOrderStatusChanged(context.Background(), ev)
	h.d.OnOrderStatusChanged(context.Background(), ev)

	assert.Len(t, h.sender.calls(), 1)
	assert.Len(t, h.logs.byStatus(entity.StatusSuccess), 1)
	assert.Equal(t, 1, h.logs.count(), "a skipped duplicate writes no row")
}

func TestDispatcher_LookupErrorStillSends(t *testing.T) {
	h := newHarness(t, "")
	h.logs.sentErr = errBoom

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))

	assert.Len(t, h.sender.calls(), 1)
}

/* ─────────────────────────── 3. Guards ─────────────────────────── */

func TestDispatcher_Guards(t *testing.T) {
	tests := []struct {
		name string
		ev   func() entity.StatusChange
	}{
		{"nil order", func() entity.StatusChange {
			return entity.StatusChange{OrderID: 1, NewStatus: "processing"}
		}},
		{"draft order", func() entity.StatusChange {
			ev := statusChange(sampleOrder(), "processing")
			ev.Order.Status = "draft"
			return ev
		}},
		{"trashed order", func() entity.StatusChange {
			ev := statusChange(sampleOrder(), "processing")
			ev.Order.Status = "trash"
			return ev
		}},
		{"payment in progress", func() entity.StatusChange {
			ev := statusChange(sampleOrder(), "processing")
			ev.InPaymentOperation = true
			return ev
		}},
		{"unmapped status", func() entity.StatusChange {
			return statusChange(sampleOrder(), "on-hold")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			h.d.OnOrderStatusChanged(context.Background(), tt.ev())
			assert.Empty(t, h.sender.calls())
			assert.Equal(t, 0, h.logs.count())
		})
	}
}

func TestDispatcher_DisabledRuleIsSkipped(t *testing.T) {
	h := newHarness(t, "")

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "refunded"))

	assert.Empty(t, h.sender.calls())
	assert.Equal(t, 0, h.logs.count())
}

/* ─────────────────────────── 4. Phone ─────────────────────────── */

func TestDispatcher_MissingPhone(t *testing.T) {
	h := newHarness(t, "")
	order := sampleOrder()
	order.Billing.Phone = ""

	h.d.OnOrderStatusChanged(context.Background(), statusChange(order, "processing"))

	assert.Empty(t, h.sender.calls())
	errs := h.logs.byStatus(entity.StatusError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Customer phone number not found.", errs[0].ErrorMessage)
	assert.Equal(t, "order_confirmation", errs[0].TemplateName)
	assert.Empty(t, h.queue.pending())
}

func TestDispatcher_PhoneField(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		mutate   func(o *entity.Order)
		expected string
	}{
		{
			name:     "shipping phone",
			yaml:     "phone_field: shipping_phone\n",
			mutate:   func(o *entity.Order) { o.Shipping.Phone = "+447700900123" },
			expected: "+447700900123",
		},
		{
			name:     "shipping falls back to billing",
			yaml:     "phone_field: shipping_phone\n",
			mutate:   func(o *entity.Order) {},
			expected: "+14155551234",
		},
		{
			name:     "meta field",
			yaml:     "phone_field: _whatsapp_number\n",
			mutate:   func(o *entity.Order) { o.Meta = map[string]any{"_whatsapp_number": "+919876543210"} },
			expected: "+919876543210",
		},
		{
			name:     "meta field falls back to billing",
			yaml:     "phone_field: _whatsapp_number\n",
			mutate:   func(o *entity.Order) {},
			expected: "+14155551234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.yaml)
			order := sampleOrder()
			tt.mutate(order)

			h.d.OnOrderStatusChanged(context.Background(), statusChange(order, "processing"))

			calls := h.sender.calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.expected, calls[0].Phone)
		})
	}
}

/* ─────────────────────────── 5. Retry policy ─────────────────────────── */

func TestDispatcher_GatewayMismatchSchedulesRetry(t *testing.T) {
	h := newHarness(t, "")
	h.sender.errs = []error{errGatewayMismatch}

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))

	row := h.logs.row(t, 1)
	assert.Equal(t, entity.StatusRetry, row.Status)
	assert.Equal(t, 1, row.RetryCount)
	assert.Equal(t, "Template parameter count mismatch", row.ErrorMessage)

	tasks := h.queue.pending()
	require.Len(t, tasks, 1)
	assert.Equal(t, entity.TaskRetry, tasks[0].Kind)
	assert.Equal(t, row.ID, tasks[0].LogID)
	assert.Equal(t, entity.TypeOrderProcessing, tasks[0].NotificationType)
	assert.Equal(t, fixedNow.Add(5*time.Minute), tasks[0].RunAt)

	// not yet due
	assert.Equal(t, 0, h.runDue(t))

	h.advance(5 * time.Minute)
	assert.Equal(t, 1, h.runDue(t))

	calls := h.sender.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Params, calls[1].Params)
	assert.Equal(t, entity.StatusSuccess, h.logs.row(t, 1).Status)
	assert.Equal(t, 1, h.logs.count(), "a retry updates the original row")
}

func TestDispatcher_RetryBound(t *testing.T) {
	h := newHarness(t, "retry_attempts: 2\nretry_delay: 60\n")
	h.sender.errs = make([]error, 10)
	for i := range h.sender.errs {
		h.sender.errs[i] = &entity.TransportError{StatusCode: 503, Message: "API request failed with status 503: unavailable"}
	}

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
	for i := 0; i < 5; i++ {
		h.advance(time.Minute)
		h.runDue(t)
	}

	assert.Len(t, h.sender.calls(), 3, "one send plus retry_attempts retries")
	row := h.logs.row(t, 1)
	assert.Equal(t, entity.StatusError, row.Status)
	assert.Equal(t, 2, row.RetryCount)
	assert.Empty(t, h.queue.pending())
}

func TestDispatcher_ZeroRetryAttempts(t *testing.T) {
	h := newHarness(t, "retry_attempts: 0\n")
	h.sender.errs = []error{errGatewayMismatch}

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))

	assert.Equal(t, entity.StatusError, h.logs.row(t, 1).Status)
	assert.Empty(t, h.queue.pending())
}

func TestDispatcher_TerminalErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "validation",
			err:     &entity.ValidationError{Field: "phone_number", Message: "Invalid phone number format."},
			message: "Invalid phone number format.",
		},
		{
			name:    "configuration",
			err:     &entity.ConfigurationError{Field: "api_token", Message: "API access token is required."},
			message: "API access token is required.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			h.sender.errs = []error{tt.err}

			h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))

			row := h.logs.row(t, 1)
			assert.Equal(t, entity.StatusError, row.Status)
			assert.Equal(t, tt.message, row.ErrorMessage)
			assert.Equal(t, 0, row.RetryCount)
			assert.Empty(t, h.queue.pending())
		})
	}
}

func TestDispatcher_RetrySkipsWhenAlreadySent(t *testing.T) {
	h := newHarness(t, "")
	h.sender.errs = []error{errGatewayMismatch}
	order := sampleOrder()

	h.d.OnOrderStatusChanged(context.Background(), statusChange(order, "processing"))
	require.Len(t, h.queue.pending(), 1)

	// another path delivers the same template before the retry fires
	_, err := h.logs.Record(context.Background(), &entity.DeliveryAttempt{
		OrderID: order.ID, TemplateName: "order_confirmation", Status: entity.StatusSuccess,
	})
	require.NoError(t, err)

	h.advance(5 * time.Minute)
	h.runDue(t)

	assert.Len(t, h.sender.calls(), 1)
	assert.Equal(t, entity.StatusRetry, h.logs.row(t, 1).Status)
}

func TestDispatcher_RetrySkipsRowNoLongerInRetry(t *testing.T) {
	h := newHarness(t, "")
	id, err := h.logs.Record(context.Background(), &entity.DeliveryAttempt{
		OrderID: 5, TemplateName: "order_confirmation", Status: entity.StatusError,
	})
	require.NoError(t, err)

	err = h.d.ExecuteTask(context.Background(), &entity.DeferredTask{Kind: entity.TaskRetry, LogID: id, OrderID: 5})
	require.NoError(t, err)

	err = h.d.ExecuteTask(context.Background(), &entity.DeferredTask{Kind: entity.TaskRetry, LogID: 999})
	require.NoError(t, err)

	assert.Empty(t, h.sender.calls())
}

/* ─────────────────────────── 6. Delayed send ─────────────────────────── */

const delayedYAML = `
template_delays:
  order_processing: 10
`

func TestDispatcher_DelayedSend(t *testing.T) {
	h := newHarness(t, delayedYAML)
	order := sampleOrder()

	h.d.OnOrderStatusChanged(context.Background(), statusChange(order, "processing"))

	assert.Empty(t, h.sender.calls())
	scheduled := h.logs.row(t, 1)
	assert.Equal(t, entity.StatusScheduled, scheduled.Status)
	assert.Equal(t, "order_processing", scheduled.TemplateName)
	assert.Equal(t, "Notification scheduled to send in 10 minutes at 2026-03-14 09:40:00", scheduled.ErrorMessage)
	assert.JSONEq(t,
		`{"scheduled_time":"2026-03-14 09:40:00","delay_minutes":10,"status":"scheduled"}`,
		string(scheduled.ResponseData))

	tasks := h.queue.pending()
	require.Len(t, tasks, 1)
	assert.Equal(t, entity.TaskDelayedSend, tasks[0].Kind)
	assert.Equal(t, fixedNow.Add(10*time.Minute), tasks[0].RunAt)
	assert.Equal(t, int64(1), tasks[0].LogID)
	assert.True(t, tasks[0].Rule.Enabled)

	stored, err := h.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	h.advance(10 * time.Minute)
	assert.Equal(t, 1, h.runDue(t))

	require.Len(t, h.sender.calls(), 1)
	scheduled = h.logs.row(t, 1)
	assert.Equal(t, entity.StatusSuccess, scheduled.Status)
	assert.Equal(t, "Delayed notification sent successfully", scheduled.ErrorMessage)

	sent := h.logs.row(t, 2)
	assert.Equal(t, entity.StatusSuccess, sent.Status)
	assert.Equal(t, "order_confirmation", sent.TemplateName)
}

func TestDispatcher_DelayedSendRepeatedTransition(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		template string
	}{
		{"default template", delayedYAML, "order_confirmation"},
		{"template named after the type", delayedYAML + `
template_config:
  order_processing:
    enabled: true
    template_name: order_processing
`, "order_processing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.yaml)

			for i := 0; i < 2; i++ {
				h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
				h.advance(10 * time.Minute)
				require.Equal(t, 1, h.runDue(t))
			}

			assert.Empty(t, h.logs.byStatus(entity.StatusScheduled))
			require.Len(t, h.sender.calls(), 1)
			assert.Equal(t, tt.template, h.sender.calls()[0].TemplateName)

			sent, err := h.logs.WasSuccessfullySent(context.Background(), 1001, "order_processing")
			require.NoError(t, err)
			assert.Equal(t, tt.template == "order_processing", sent, "schedule entries never count as delivered")
		})
	}
}

func TestDispatcher_DelayedSendScheduleFailure(t *testing.T) {
	h := newHarness(t, delayedYAML)
	h.queue.err = errBoom

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))

	row := h.logs.row(t, 1)
	assert.Equal(t, entity.StatusError, row.Status)
	assert.Equal(t, "Failed to schedule delayed notification", row.ErrorMessage)
	assert.Len(t, h.sender.calls(), 1, "falls back to an immediate send")
	assert.Equal(t, entity.StatusSuccess, h.logs.row(t, 2).Status)
}

func TestDispatcher_DelayedSendOrderMissing(t *testing.T) {
	h := newHarness(t, delayedYAML)
	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
	h.orders.orders = map[int64]*entity.Order{}

	h.advance(10 * time.Minute)
	h.runDue(t)

	assert.Empty(t, h.sender.calls())
	row := h.logs.row(t, 1)
	assert.Equal(t, entity.StatusError, row.Status)
	assert.Equal(t, "Order not found when executing delayed notification", row.ErrorMessage)
}

func TestDispatcher_DelayedSendFailure(t *testing.T) {
	h := newHarness(t, delayedYAML)
	h.sender.errs = []error{&entity.ValidationError{Field: "phone_number", Message: "Invalid phone number format."}}

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
	h.advance(10 * time.Minute)
	h.runDue(t)

	row := h.logs.row(t, 1)
	assert.Equal(t, entity.StatusError, row.Status)
	assert.Equal(t, "Delayed notification failed: Invalid phone number format.", row.ErrorMessage)
}

func TestDispatcher_ExecuteTaskUnknownKind(t *testing.T) {
	h := newHarness(t, "")
	err := h.d.ExecuteTask(context.Background(), &entity.DeferredTask{Kind: "compost"})
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.NoError(t, h.d.ExecuteTask(context.Background(), nil))
}

/* ─────────────────────────── 7. Matching priority ─────────────────────────── */

func TestDispatcher_CompletedPriority(t *testing.T) {
	h := newHarness(t, "")
	order := sampleOrder()

	h.d.OnOrderStatusChanged(context.Background(), statusChange(order, "completed"))
	h.d.OnOrderStatusChanged(context.Background(), statusChange(order, "completed"))

	calls := h.sender.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "order_shipped_default", calls[0].TemplateName)
	assert.Equal(t, "order_confirmation", calls[1].TemplateName)
}

func TestDispatcher_CompletedWithoutShippedRule(t *testing.T) {
	h := newHarness(t, `
enabled_notifications:
  order_completed: "yes"
`)
	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "completed"))

	calls := h.sender.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "order_confirmation", calls[0].TemplateName)
}

/* ─────────────────────────── 8. Images ─────────────────────────── */

func TestDispatcher_ImagePriority(t *testing.T) {
	const yaml = `
template_config:
  order_processing:
    enabled: true
    template_name: processing_v2
    image_url: https://cdn.test/header.png
    use_product_image: %s
    variable_map:
      var_1: first_name
`
	t.Run("product image first", func(t *testing.T) {
		h := newHarness(t, fmt.Sprintf(yaml, "true"))
		h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
		require.Len(t, h.sender.calls(), 1)
		assert.Equal(t, "https://shop.example/mug.jpg", h.sender.calls()[0].MediaURL)
	})

	t.Run("header image without product image", func(t *testing.T) {
		h := newHarness(t, fmt.Sprintf(yaml, "false"))
		h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
		require.Len(t, h.sender.calls(), 1)
		assert.Equal(t, "https://cdn.test/header.png", h.sender.calls()[0].MediaURL)
		assert.Equal(t, []string{"Jane"}, h.sender.calls()[0].Params)
	})

	t.Run("unusable product image falls back", func(t *testing.T) {
		h := newHarness(t, fmt.Sprintf(yaml, "true"))
		order := sampleOrder()
		order.Items[0].FeaturedImageURL = "/wp-content/uploads/mug.jpg"
		h.d.OnOrderStatusChanged(context.Background(), statusChange(order, "processing"))
		require.Len(t, h.sender.calls(), 1)
		assert.Equal(t, "https://cdn.test/header.png", h.sender.calls()[0].MediaURL)
	})
}

/* ─────────────────────────── 9. Account events ─────────────────────────── */

func TestDispatcher_OnAccountEvent(t *testing.T) {
	h := newHarness(t, `
custom_statuses:
  - id: welcome
    name: Welcome
    event_type: user_registered
template_config:
  welcome:
    enabled: true
    template_name: welcome_v1
    variable_map:
      var_1: first_name
      var_2: site_name
`)
	ev := entity.AccountEvent{
		Type:     "user_registered",
		Customer: entity.Address{FirstName: "Sam", Phone: "+14155550000"},
		Store:    entity.Store{Name: "Example Shop"},
	}

	h.d.OnAccountEvent(context.Background(), ev)
	h.d.OnAccountEvent(context.Background(), ev)
	h.d.OnAccountEvent(context.Background(), entity.AccountEvent{Type: "password_reset"})

	calls := h.sender.calls()
	require.Len(t, calls, 2, "account events carry no order id to deduplicate on")
	assert.Equal(t, "welcome_v1", calls[0].TemplateName)
	assert.Equal(t, []string{"Sam", "Example Shop"}, calls[0].Params)
	assert.Len(t, h.logs.byStatus(entity.StatusSuccess), 2)
}

/* ─────────────────────────── 10. Panic recovery ─────────────────────────── */

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	h := newHarness(t, "")
	h.sender.panicMsg = "gateway exploded"

	assert.NotPanics(t, func() {
		h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
	})
	assert.Equal(t, entity.StatusPending, h.logs.row(t, 1).Status)

	err := h.d.ExecuteTask(context.Background(), &entity.DeferredTask{
		ID: "t1", Kind: entity.TaskRetry, LogID: 1,
	})
	assert.NoError(t, err, "row is pending, not retry, so nothing is sent")
}

func TestDispatcher_ExecuteTaskRecoversFromPanic(t *testing.T) {
	h := newHarness(t, "")
	h.sender.errs = []error{errGatewayMismatch}
	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
	tasks := h.queue.pending()
	require.Len(t, tasks, 1)

	h.sender.panicMsg = "gateway exploded"
	var err error
	assert.NotPanics(t, func() {
		err = h.d.ExecuteTask(context.Background(), tasks[0])
	})
	assert.Error(t, err)
}

/* ─────────────────────────── 11. Failure alerts ─────────────────────────── */

func TestDispatcher_AlertsOnlyTerminalFailures(t *testing.T) {
	h := newHarness(t, "retry_attempts: 1\nretry_delay: 60\n")
	alerts := &recordingAlerter{}
	WithAlerter(alerts)(h.d)
	h.sender.errs = []error{errGatewayMismatch, errGatewayMismatch}

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))
	assert.Empty(t, alerts.all(), "a queued retry is not terminal")

	h.advance(time.Minute)
	require.Equal(t, 1, h.runDue(t))

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].LogID)
	assert.Equal(t, int64(1001), got[0].OrderID)
	assert.Equal(t, entity.TypeOrderProcessing, got[0].NotificationType)
	assert.Equal(t, "order_confirmation", got[0].TemplateName)
	assert.Equal(t, 1, got[0].RetryCount)
	assert.Equal(t, "Template parameter count mismatch", got[0].Error)
	assert.Equal(t, fixedNow.Add(time.Minute), got[0].At)
}

func TestDispatcher_AlertsNonRetryableFailure(t *testing.T) {
	h := newHarness(t, "")
	alerts := &recordingAlerter{}
	WithAlerter(alerts)(h.d)
	h.sender.errs = []error{&entity.ConfigurationError{Field: "api_token", Message: "API access token is required."}}

	h.d.OnOrderStatusChanged(context.Background(), statusChange(sampleOrder(), "processing"))

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].RetryCount)
	assert.Equal(t, "API access token is required.", got[0].Error)
}

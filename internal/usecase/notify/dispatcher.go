// Package notify turns order and account events into WhatsApp template
// notifications. The Dispatcher matches events to configured notification
// types, resolves template variables from the order snapshot, sends through
// the gateway and records every attempt in the delivery log. Delayed sends
// and retries are handed to the deferred task queue and come back through
// ExecuteTask.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"engage-notify/internal/config"
	"engage-notify/internal/domain/entity"
	"engage-notify/internal/infra/gateway"
	"engage-notify/internal/observability/tracing"
	"engage-notify/internal/repository"
)

// scheduledTimeLayout is the timestamp format written to scheduled rows.
const scheduledTimeLayout = "2006-01-02 15:04:05"

// skippedStatuses never trigger notifications.
var skippedStatuses = map[string]bool{
	"draft":      true,
	"auto-draft": true,
	"trash":      true,
}

// Sender delivers one template message. *gateway.Client implements it.
type Sender interface {
	SendTemplateMessage(ctx context.Context, req gateway.SendRequest) (*gateway.SendResult, error)
}

// Alerter is told about deliveries that failed for good. Implementations
// must return promptly; the call happens on the dispatch path.
type Alerter interface {
	DeliveryFailed(ctx context.Context, f entity.DeliveryFailure)
}

// Dispatcher routes events to the gateway. It is safe for concurrent use;
// the settings snapshot it holds is never modified.
type Dispatcher struct {
	logs     repository.DeliveryLogRepository
	queue    repository.DeferredTaskQueue
	orders   repository.OrderRepository
	sender   Sender
	settings *config.Settings
	resolver Resolver
	alerter  Alerter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithAlerter reports terminal delivery failures to a.
func WithAlerter(a Alerter) Option {
	return func(d *Dispatcher) { d.alerter = a }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher wires a Dispatcher. A nil settings pointer falls back to
// config.Defaults().
func NewDispatcher(
	logs repository.DeliveryLogRepository,
	queue repository.DeferredTaskQueue,
	orders repository.OrderRepository,
	sender Sender,
	settings *config.Settings,
	opts ...Option,
) *Dispatcher {
	if settings == nil {
		settings = config.Defaults()
	}
	d := &Dispatcher{
		logs:     logs,
		queue:    queue,
		orders:   orders,
		sender:   sender,
		settings: settings,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnOrderStatusChanged handles one order transition. It never returns an
// error: every failure ends up in the delivery log and the process log.
func (d *Dispatcher) OnOrderStatusChanged(ctx context.Context, ev entity.StatusChange) {
	if ev.Order == nil || ev.InPaymentOperation {
		return
	}
	if skippedStatuses[strings.TrimPrefix(ev.Order.Status, "wc-")] {
		return
	}
	order := *ev.Order
	if order.ID == 0 {
		order.ID = ev.OrderID
	}

	types := MatchNotificationTypes(ev.NewStatus, d.settings)
	if len(types) == 0 {
		return
	}
	types = d.applyCompletedPriority(ctx, &order, types)

	d.logger.Debug("order status matched notifications",
		slog.Int64("order_id", order.ID),
		slog.String("old_status", ev.OldStatus),
		slog.String("new_status", ev.NewStatus),
		slog.Any("types", types))

	for _, t := range types {
		d.dispatchType(ctx, &order, t, true)
	}
}

// OnAccountEvent handles a non-order customer event. Matching custom
// notification types are sent immediately against a pseudo-order built from
// the customer snapshot.
func (d *Dispatcher) OnAccountEvent(ctx context.Context, ev entity.AccountEvent) {
	types := AccountEventTypes(ev.Type, d.settings)
	if len(types) == 0 {
		return
	}
	order := entity.OrderFromAccountEvent(ev)
	for _, t := range types {
		d.dispatchType(ctx, order, t, false)
	}
}

// applyCompletedPriority sends order_shipped in place of order_completed
// while the shipped notification is enabled and has not gone out yet.
func (d *Dispatcher) applyCompletedPriority(ctx context.Context, order *entity.Order, types []string) []string {
	idx := -1
	for i, t := range types {
		if t == entity.TypeOrderCompleted {
			idx = i
			break
		}
	}
	if idx < 0 {
		return types
	}

	shipped, ok := d.settings.Rule(entity.TypeOrderShipped)
	if !ok || !shipped.Enabled || shipped.TemplateName == "" {
		return types
	}
	sent, err := d.logs.WasSuccessfullySent(ctx, order.ID, shipped.TemplateName)
	if err != nil {
		d.logger.Warn("delivery log lookup failed, assuming shipped not sent",
			slog.Int64("order_id", order.ID),
			slog.Any("error", err))
	}
	if sent {
		return types
	}

	out := make([]string, 0, len(types))
	seen := make(map[string]bool, len(types))
	for i, t := range types {
		if i == idx {
			t = entity.TypeOrderShipped
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// dispatchType processes a single notification type. A panic here is
// contained to the type that raised it.
func (d *Dispatcher) dispatchType(ctx context.Context, order *entity.Order, notificationType string, allowDelay bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while dispatching notification",
				slog.Int64("order_id", order.ID),
				slog.String("notification_type", notificationType),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	ctx, span := tracing.GetTracer().Start(ctx, "notify.dispatch",
		trace.WithAttributes(
			attribute.Int64("order.id", order.ID),
			attribute.String("notification.type", notificationType),
		))
	defer span.End()

	rule, ok := d.settings.Rule(notificationType)
	if !ok || !rule.Enabled {
		RecordOutcome(notificationType, outcomeSkipped)
		d.logger.Debug("notification disabled",
			slog.Int64("order_id", order.ID),
			slog.String("notification_type", notificationType))
		return
	}

	if allowDelay && rule.DelayMinutes > 0 {
		d.scheduleDelayed(ctx, order, rule)
		return
	}
	if _, err := d.send(ctx, order, rule); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// send runs the immediate delivery flow for one rule. A nil result with a
// nil error means the notification had already been delivered.
func (d *Dispatcher) send(ctx context.Context, order *entity.Order, rule entity.NotificationRule) (*gateway.SendResult, error) {
	if !rule.Enabled {
		return nil, ErrRuleDisabled
	}
	logger := d.logger.With(
		slog.Int64("order_id", order.ID),
		slog.String("notification_type", rule.Type),
		slog.String("template", rule.TemplateName))

	if order.ID != 0 {
		sent, err := d.logs.WasSuccessfullySent(ctx, order.ID, rule.TemplateName)
		if err != nil {
			logger.Warn("delivery log lookup failed, sending anyway", slog.Any("error", err))
		} else if sent {
			RecordOutcome(rule.Type, outcomeSkipped)
			logger.Debug("notification already sent")
			return nil, nil
		}
	}

	phone := d.customerPhone(order)
	if phone == "" {
		d.record(ctx, logger, &entity.DeliveryAttempt{
			OrderID:      order.ID,
			TemplateName: rule.TemplateName,
			Status:       entity.StatusError,
			ErrorMessage: msgNoPhone,
		})
		RecordOutcome(rule.Type, outcomeFailed)
		logger.Warn("customer phone number not found", slog.String("phone_field", d.settings.PhoneField))
		return nil, ErrNoPhone
	}

	params := d.resolver.Resolve(order, rule.VariableMap, rule.CustomText)
	logID := d.record(ctx, logger, &entity.DeliveryAttempt{
		OrderID:      order.ID,
		PhoneNumber:  phone,
		TemplateName: rule.TemplateName,
		Status:       entity.StatusPending,
		ResponseData: pendingData(rule, params),
	})

	res, err := d.transmit(ctx, order, rule, phone, params)
	return res, d.finish(ctx, logger, order.ID, rule, logID, 0, res, err)
}

// transmit builds the gateway request and sends it.
func (d *Dispatcher) transmit(ctx context.Context, order *entity.Order, rule entity.NotificationRule, phone string, params []string) (*gateway.SendResult, error) {
	req := gateway.SendRequest{
		Phone:             phone,
		TemplateName:      rule.TemplateName,
		Params:            params,
		MediaURL:          imageFor(order, rule),
		Language:          rule.TemplateLanguage,
		Body:              d.templateBody(rule),
		BodyVariableCount: rule.BodyVariableCount,
		ButtonVariables:   rule.ButtonVariables,
	}
	start := time.Now()
	res, err := d.sender.SendTemplateMessage(ctx, req)
	RecordSendDuration(rule.Type, time.Since(start))
	return res, err
}

// finish writes the outcome of a gateway call to the log row and schedules
// a retry for retryable failures.
func (d *Dispatcher) finish(
	ctx context.Context,
	logger *slog.Logger,
	orderID int64,
	rule entity.NotificationRule,
	logID int64,
	retryCount int,
	res *gateway.SendResult,
	sendErr error,
) error {
	if sendErr == nil {
		raw, err := json.Marshal(res)
		if err != nil {
			raw = nil
		}
		if logID > 0 {
			err := d.logs.UpdateStatus(ctx, logID, entity.StatusUpdate{
				Status:       entity.StatusSuccess,
				ResponseData: raw,
				APIResponse:  raw,
			})
			switch {
			case errors.Is(err, entity.ErrAlreadySent):
				logger.Info("success already recorded by a concurrent send", slog.Int64("log_id", logID))
			case err != nil:
				logger.Warn("failed to update delivery log", slog.Int64("log_id", logID), slog.Any("error", err))
			}
		}
		RecordOutcome(rule.Type, outcomeSent)
		logger.Info("notification sent", slog.Int64("log_id", logID))
		return nil
	}

	msg := failureMessage(sendErr)
	if logID > 0 {
		if err := d.logs.UpdateStatus(ctx, logID, entity.StatusUpdate{
			Status:       entity.StatusError,
			ErrorMessage: &msg,
		}); err != nil {
			logger.Warn("failed to update delivery log", slog.Int64("log_id", logID), slog.Any("error", err))
		}
	}
	RecordOutcome(rule.Type, outcomeFailed)
	logger.Warn("notification failed",
		slog.Int64("log_id", logID),
		slog.Int("retry_count", retryCount),
		slog.Any("error", sendErr))

	if !d.scheduleRetry(ctx, logger, orderID, rule, logID, retryCount, sendErr) {
		d.alert(ctx, entity.DeliveryFailure{
			LogID:            logID,
			OrderID:          orderID,
			NotificationType: rule.Type,
			TemplateName:     rule.TemplateName,
			RetryCount:       retryCount,
			Error:            msg,
			At:               d.now(),
		})
	}
	return sendErr
}

func (d *Dispatcher) alert(ctx context.Context, f entity.DeliveryFailure) {
	if d.alerter == nil {
		return
	}
	d.alerter.DeliveryFailed(ctx, f)
}

// scheduleRetry queues another attempt for a retryable failure while the
// attempt budget lasts. The row moves to retry with its count incremented.
// It reports whether a retry was queued.
func (d *Dispatcher) scheduleRetry(
	ctx context.Context,
	logger *slog.Logger,
	orderID int64,
	rule entity.NotificationRule,
	logID int64,
	retryCount int,
	cause error,
) bool {
	if logID <= 0 || !entity.IsRetryable(cause) {
		return false
	}
	if retryCount >= d.settings.RetryAttempts {
		logger.Warn("retry attempts exhausted",
			slog.Int64("log_id", logID),
			slog.Int("retry_attempts", d.settings.RetryAttempts))
		return false
	}

	now := d.now()
	task := &entity.DeferredTask{
		Kind:             entity.TaskRetry,
		OrderID:          orderID,
		NotificationType: rule.Type,
		LogID:            logID,
		Rule:             rule,
		RunAt:            now.Add(d.settings.RetryDelayDuration()),
		CreatedAt:        now,
	}
	if err := d.queue.Schedule(ctx, task); err != nil {
		logger.Error("failed to schedule retry", slog.Int64("log_id", logID), slog.Any("error", err))
		return false
	}

	next := retryCount + 1
	msg := failureMessage(cause)
	if err := d.logs.UpdateStatus(ctx, logID, entity.StatusUpdate{
		Status:       entity.StatusRetry,
		ErrorMessage: &msg,
		RetryCount:   &next,
	}); err != nil {
		logger.Warn("failed to mark delivery log for retry", slog.Int64("log_id", logID), slog.Any("error", err))
	}
	RecordOutcome(rule.Type, outcomeRetry)
	logger.Info("retry scheduled",
		slog.Int64("log_id", logID),
		slog.Int("retry_count", next),
		slog.Time("run_at", task.RunAt))
	return true
}

// scheduleDelayed records a scheduled row and queues a delayed_send task.
// If the task cannot be queued the notification is sent right away.
func (d *Dispatcher) scheduleDelayed(ctx context.Context, order *entity.Order, rule entity.NotificationRule) {
	logger := d.logger.With(
		slog.Int64("order_id", order.ID),
		slog.String("notification_type", rule.Type))

	now := d.now()
	runAt := now.Add(time.Duration(rule.DelayMinutes) * time.Minute)
	at := runAt.Format(scheduledTimeLayout)

	data, _ := json.Marshal(map[string]any{
		"scheduled_time": at,
		"delay_minutes":  rule.DelayMinutes,
		"status":         entity.StatusScheduled,
	})
	logID := d.record(ctx, logger, &entity.DeliveryAttempt{
		OrderID:       order.ID,
		PhoneNumber:   d.customerPhone(order),
		TemplateName:  rule.Type,
		Status:        entity.StatusScheduled,
		ResponseData:  data,
		ErrorMessage:  fmt.Sprintf("Notification scheduled to send in %d minutes at %s", rule.DelayMinutes, at),
		ScheduleEntry: true,
	})

	// the task carries only the order id, the snapshot must be reloadable
	if d.orders != nil {
		if err := d.orders.Upsert(ctx, order); err != nil {
			logger.Warn("failed to store order snapshot", slog.Any("error", err))
		}
	}

	err := d.queue.Schedule(ctx, &entity.DeferredTask{
		Kind:             entity.TaskDelayedSend,
		OrderID:          order.ID,
		NotificationType: rule.Type,
		LogID:            logID,
		Rule:             rule,
		RunAt:            runAt,
		CreatedAt:        now,
	})
	if err != nil {
		logger.Error("failed to schedule delayed notification, sending now", slog.Any("error", err))
		d.markRow(ctx, logger, logID, entity.StatusError, msgScheduleFailed, nil)
		_, _ = d.send(ctx, order, rule)
		return
	}
	RecordOutcome(rule.Type, outcomeScheduled)
	logger.Info("notification scheduled",
		slog.Int64("log_id", logID),
		slog.Int("delay_minutes", rule.DelayMinutes),
		slog.Time("run_at", runAt))
}

// ExecuteTask runs one deferred task claimed from the queue. The returned
// error is informational; the task has already left the queue.
func (d *Dispatcher) ExecuteTask(ctx context.Context, task *entity.DeferredTask) (err error) {
	if task == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while executing deferred task",
				slog.String("task_id", task.ID),
				slog.String("kind", task.Kind),
				slog.Int64("log_id", task.LogID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			RecordTask(task.Kind, "failure")
			err = fmt.Errorf("deferred task %s panicked: %v", task.ID, r)
		}
	}()

	ctx, span := tracing.GetTracer().Start(ctx, "notify.task."+task.Kind,
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.Int64("order.id", task.OrderID),
			attribute.Int64("log.id", task.LogID),
		))
	defer span.End()

	var result string
	switch task.Kind {
	case entity.TaskDelayedSend:
		result, err = d.runDelayed(ctx, task)
	case entity.TaskRetry:
		result, err = d.runRetry(ctx, task)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTask, task.Kind)
	}
	RecordTask(task.Kind, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Dispatcher) runDelayed(ctx context.Context, task *entity.DeferredTask) (string, error) {
	logger := d.logger.With(
		slog.Int64("order_id", task.OrderID),
		slog.String("notification_type", task.NotificationType),
		slog.Int64("log_id", task.LogID))

	order, err := d.orders.Get(ctx, task.OrderID)
	if err != nil {
		d.markRow(ctx, logger, task.LogID, entity.StatusError, msgDelayedFailedPrefix+err.Error(), nil)
		return "failure", fmt.Errorf("load order %d: %w", task.OrderID, err)
	}
	if order == nil {
		d.markRow(ctx, logger, task.LogID, entity.StatusError, msgDelayedOrderMissing, nil)
		logger.Warn("order not found for delayed notification")
		return "failure", fmt.Errorf("order %d: %w", task.OrderID, entity.ErrNotFound)
	}

	res, err := d.send(ctx, order, task.Rule)
	if err != nil {
		d.markRow(ctx, logger, task.LogID, entity.StatusError, msgDelayedFailedPrefix+failureMessage(err), nil)
		return "failure", err
	}

	raw := json.RawMessage(`{"status":"sent"}`)
	if res != nil {
		if b, err := json.Marshal(res); err == nil {
			raw = b
		}
	}
	d.markRow(ctx, logger, task.LogID, entity.StatusSuccess, msgDelayedSent, raw)
	return "success", nil
}

func (d *Dispatcher) runRetry(ctx context.Context, task *entity.DeferredTask) (string, error) {
	row, err := d.logs.Get(ctx, task.LogID)
	if err != nil {
		return "failure", fmt.Errorf("load delivery log %d: %w", task.LogID, err)
	}
	if row == nil || row.Status != entity.StatusRetry {
		d.logger.Debug("retry target no longer pending retry", slog.Int64("log_id", task.LogID))
		return "skipped", nil
	}

	rule := task.Rule
	rule.TemplateName = row.TemplateName
	logger := d.logger.With(
		slog.Int64("order_id", row.OrderID),
		slog.String("notification_type", rule.Type),
		slog.String("template", rule.TemplateName),
		slog.Int64("log_id", row.ID))

	if row.OrderID != 0 {
		sent, err := d.logs.WasSuccessfullySent(ctx, row.OrderID, row.TemplateName)
		if err != nil {
			logger.Warn("delivery log lookup failed, retrying anyway", slog.Any("error", err))
		} else if sent {
			logger.Info("retry skipped, notification already sent")
			return "skipped", nil
		}
	}

	var order *entity.Order
	if d.orders != nil && row.OrderID != 0 {
		if order, err = d.orders.Get(ctx, row.OrderID); err != nil {
			logger.Warn("failed to load order snapshot for retry", slog.Any("error", err))
		}
	}

	d.markRow(ctx, logger, row.ID, entity.StatusPending, "", nil)
	res, sendErr := d.transmit(ctx, order, rule, row.PhoneNumber, storedParams(row.ResponseData))
	if err := d.finish(ctx, logger, row.OrderID, rule, row.ID, row.RetryCount, res, sendErr); err != nil {
		return "failure", err
	}
	return "success", nil
}

// record inserts a log row. Storage failures are logged and yield id 0.
func (d *Dispatcher) record(ctx context.Context, logger *slog.Logger, a *entity.DeliveryAttempt) int64 {
	id, err := d.logs.Record(ctx, a)
	if err != nil {
		logger.Warn("failed to record delivery attempt",
			slog.String("status", a.Status),
			slog.Any("error", err))
		return 0
	}
	return id
}

// markRow updates a log row's status. An empty message leaves the stored
// message untouched.
func (d *Dispatcher) markRow(ctx context.Context, logger *slog.Logger, logID int64, status, msg string, data json.RawMessage) {
	if logID <= 0 {
		return
	}
	upd := entity.StatusUpdate{Status: status, ResponseData: data}
	if msg != "" {
		upd.ErrorMessage = &msg
	}
	if err := d.logs.UpdateStatus(ctx, logID, upd); err != nil {
		logger.Warn("failed to update delivery log",
			slog.Int64("log_id", logID),
			slog.String("status", status),
			slog.Any("error", err))
	}
}

// customerPhone picks the number to message according to phone_field.
func (d *Dispatcher) customerPhone(order *entity.Order) string {
	billing := strings.TrimSpace(order.Billing.Phone)
	switch field := strings.TrimSpace(d.settings.PhoneField); field {
	case "", "billing_phone":
		return billing
	case "shipping_phone":
		return firstNonEmpty(strings.TrimSpace(order.Shipping.Phone), billing)
	default:
		return firstNonEmpty(order.MetaString(field), billing)
	}
}

func (d *Dispatcher) templateBody(rule entity.NotificationRule) string {
	if rule.TemplateBody != "" {
		return rule.TemplateBody
	}
	if body := d.settings.TemplateBodyFor(rule.TemplateName); body != "" {
		return body
	}
	return d.settings.TemplateMessages[rule.Type]
}

// imageFor picks the header image: product image, uploaded image, then the
// legacy per-type URL. Candidates the gateway could not fetch are skipped.
func imageFor(order *entity.Order, rule entity.NotificationRule) string {
	var candidates []string
	if rule.UseProductImage && order != nil && len(order.Items) > 0 {
		candidates = append(candidates, order.Items[0].FeaturedImageURL)
	}
	candidates = append(candidates, rule.HeaderImageURL, rule.LegacyImageURL)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && entity.ValidateMediaURL(c) == nil {
			return c
		}
	}
	return ""
}

type pendingPayload struct {
	TemplateVars      []string       `json:"template_vars"`
	TemplateVarsCount int            `json:"template_vars_count"`
	NotificationType  string         `json:"notification_type"`
	VariableMap       map[int]string `json:"variable_map"`
	CustomTextValues  map[int]string `json:"custom_text_values"`
}

func pendingData(rule entity.NotificationRule, params []string) json.RawMessage {
	b, err := json.Marshal(pendingPayload{
		TemplateVars:      params,
		TemplateVarsCount: len(params),
		NotificationType:  rule.Type,
		VariableMap:       rule.VariableMap,
		CustomTextValues:  rule.CustomText,
	})
	if err != nil {
		return nil
	}
	return b
}

// storedParams reads template_vars back from a pending row's payload.
func storedParams(data json.RawMessage) []string {
	var p pendingPayload
	if len(data) == 0 || json.Unmarshal(data, &p) != nil || p.TemplateVars == nil {
		return []string{}
	}
	return p.TemplateVars
}

// failureMessage is the text stored on the log row for a failed send.
func failureMessage(err error) string {
	var ve *entity.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, ErrNoPhone):
		return msgNoPhone
	default:
		return err.Error()
	}
}

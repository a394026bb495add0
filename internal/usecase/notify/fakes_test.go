package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"engage-notify/internal/config"
	"engage-notify/internal/domain/entity"
	"engage-notify/internal/infra/gateway"
)

/* ─────────────────────────── Fakes ─────────────────────────── */

// fakeLogs is an in-memory delivery log that enforces the one-success rule
// the database index provides.
type fakeLogs struct {
	mu        sync.Mutex
	rows      map[int64]*entity.DeliveryAttempt
	nextID    int64
	recordErr error
	sentErr   error
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{rows: make(map[int64]*entity.DeliveryAttempt)}
}

func (f *fakeLogs) Record(_ context.Context, a *entity.DeliveryAttempt) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return 0, &entity.StorageError{Op: "record", Err: f.recordErr}
	}
	f.nextID++
	cp := *a
	cp.ID = f.nextID
	f.rows[cp.ID] = &cp
	a.ID = cp.ID
	return cp.ID, nil
}

func (f *fakeLogs) UpdateStatus(_ context.Context, id int64, upd entity.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil
	}
	if upd.Status == entity.StatusSuccess && row.OrderID != 0 && !row.ScheduleEntry {
		for _, other := range f.rows {
			if other.ID != id && other.OrderID == row.OrderID && !other.ScheduleEntry &&
				other.TemplateName == row.TemplateName && other.Status == entity.StatusSuccess {
				return entity.ErrAlreadySent
			}
		}
	}
	row.Status = upd.Status
	if len(upd.ResponseData) > 0 {
		row.ResponseData = upd.ResponseData
	}
	if len(upd.APIResponse) > 0 {
		row.APIResponse = upd.APIResponse
	}
	if upd.ErrorMessage != nil {
		row.ErrorMessage = *upd.ErrorMessage
	}
	if upd.RetryCount != nil {
		row.RetryCount = *upd.RetryCount
	}
	return nil
}

func (f *fakeLogs) WasSuccessfullySent(_ context.Context, orderID int64, templateName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sentErr != nil {
		return false, f.sentErr
	}
	for _, r := range f.rows {
		if r.OrderID == orderID && r.TemplateName == templateName &&
			r.Status == entity.StatusSuccess && !r.ScheduleEntry {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLogs) Get(_ context.Context, id int64) (*entity.DeliveryAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeLogs) List(context.Context, entity.LogFilter) ([]*entity.DeliveryAttempt, int64, error) {
	return nil, 0, nil
}

func (f *fakeLogs) Stats(context.Context, int) (entity.LogStats, error) {
	return entity.LogStats{}, nil
}

func (f *fakeLogs) RecentErrors(context.Context, int) ([]*entity.DeliveryAttempt, error) {
	return nil, nil
}

func (f *fakeLogs) CleanupOlderThan(context.Context, int) (int64, error) {
	return 0, nil
}

func (f *fakeLogs) FindScheduled(context.Context, int64, string) (*entity.DeliveryAttempt, error) {
	return nil, nil
}

func (f *fakeLogs) ListScheduled(context.Context, int) ([]*entity.DeliveryAttempt, error) {
	return nil, nil
}

// row returns a copy of the row with the given id.
func (f *fakeLogs) row(t *testing.T, id int64) entity.DeliveryAttempt {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	require.True(t, ok, "log row %d", id)
	return *r
}

func (f *fakeLogs) byStatus(status string) []entity.DeliveryAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.DeliveryAttempt
	for id := int64(1); id <= f.nextID; id++ {
		if r, ok := f.rows[id]; ok && r.Status == status {
			out = append(out, *r)
		}
	}
	return out
}

func (f *fakeLogs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*entity.DeferredTask
	err   error
}

func (q *fakeQueue) Schedule(_ context.Context, task *entity.DeferredTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

// ConsumeDue hands out due tasks once, like the real queues.
func (q *fakeQueue) ConsumeDue(_ context.Context, now time.Time, limit int) ([]*entity.DeferredTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due, rest []*entity.DeferredTask
	for _, t := range q.tasks {
		if !t.RunAt.After(now) && (limit <= 0 || len(due) < limit) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	q.tasks = rest
	return due, nil
}

func (q *fakeQueue) pending() []*entity.DeferredTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*entity.DeferredTask(nil), q.tasks...)
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[int64]*entity.Order
	getErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[int64]*entity.Order)}
}

func (o *fakeOrders) Upsert(_ context.Context, order *entity.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := *order
	o.orders[order.ID] = &cp
	return nil
}

func (o *fakeOrders) Get(_ context.Context, id int64) (*entity.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.getErr != nil {
		return nil, o.getErr
	}
	order, ok := o.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *order
	return &cp, nil
}

// fakeSender replays queued errors, then succeeds.
type fakeSender struct {
	mu       sync.Mutex
	requests []gateway.SendRequest
	errs     []error
	panicMsg string
}

func (s *fakeSender) SendTemplateMessage(_ context.Context, req gateway.SendRequest) (*gateway.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.requests = append(s.requests, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &gateway.SendResult{
		Success:        true,
		ConversationID: 77,
		MessageID:      int64(len(s.requests)),
		Status:         "sent",
		StatusMessage:  "Message sent to new conversation",
	}, nil
}

func (s *fakeSender) calls() []gateway.SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.SendRequest(nil), s.requests...)
}

type recordingAlerter struct {
	mu       sync.Mutex
	failures []entity.DeliveryFailure
}

func (a *recordingAlerter) DeliveryFailed(_ context.Context, f entity.DeliveryFailure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, f)
}

func (a *recordingAlerter) all() []entity.DeliveryFailure {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]entity.DeliveryFailure(nil), a.failures...)
}

/* ─────────────────────────── Fixtures ─────────────────────────── */

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type harness struct {
	d      *Dispatcher
	logs   *fakeLogs
	queue  *fakeQueue
	orders *fakeOrders
	sender *fakeSender
	clock  *time.Time
}

func newHarness(t *testing.T, settingsYAML string) *harness {
	t.Helper()
	settings, _, err := config.ParseSettings([]byte(settingsYAML))
	require.NoError(t, err)

	now := fixedNow
	h := &harness{
		logs:   newFakeLogs(),
		queue:  &fakeQueue{},
		orders: newFakeOrders(),
		sender: &fakeSender{},
		clock:  &now,
	}
	h.d = NewDispatcher(h.logs, h.queue, h.orders, h.sender, settings,
		WithClock(func() time.Time { return *h.clock }))
	return h
}

func (h *harness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

// runDue executes every task that is due at the harness clock.
func (h *harness) runDue(t *testing.T) int {
	t.Helper()
	tasks, err := h.queue.ConsumeDue(context.Background(), *h.clock, 0)
	require.NoError(t, err)
	for _, task := range tasks {
		_ = h.d.ExecuteTask(context.Background(), task)
	}
	return len(tasks)
}

func sampleOrder() *entity.Order {
	return &entity.Order{
		ID:             1001,
		Number:         "1001",
		Status:         "processing",
		Created:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Billing:        entity.Address{FirstName: "Jane", LastName: "Doe", Phone: "+14155551234", Email: "jane@example.com"},
		Items:          []entity.LineItem{{Name: "Mug", ProductID: 5, Quantity: 2, Permalink: "https://shop.example/mug", FeaturedImageURL: "https://shop.example/mug.jpg"}},
		TotalFormatted: `<span class="amount"><bdi><span class="currency">$</span>25.00</bdi></span>`,
		Total:          25,
		CurrencySymbol: "$",
		Store:          entity.Store{Name: "Example Shop", SiteURL: "https://shop.example", ShopURL: "https://shop.example/shop"},
	}
}

func statusChange(order *entity.Order, newStatus string) entity.StatusChange {
	cp := *order
	cp.Status = newStatus
	return entity.StatusChange{OrderID: order.ID, OldStatus: order.Status, NewStatus: newStatus, Order: &cp}
}

var errGatewayMismatch = &entity.GatewayLogicError{Message: "Template parameter count mismatch"}

var errBoom = errors.New("boom")

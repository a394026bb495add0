package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func fast(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

/* ─── 1. WithBackoff ─── */

func TestWithBackoff(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
		wantErr   string
	}{
		{name: "first call succeeds", attempts: 3, wantCalls: 1},
		{name: "gateway 502 then success", errs: []error{statusErr(502)}, attempts: 3, wantCalls: 2},
		{name: "database refused twice then success", errs: []error{syscall.ECONNREFUSED, syscall.ECONNREFUSED}, attempts: 3, wantCalls: 3},
		{
			name:      "attempts exhausted",
			errs:      []error{statusErr(503), statusErr(503), statusErr(503)},
			attempts:  3,
			wantCalls: 3,
			wantErr:   "max retry attempts (3) exceeded: status 503",
		},
		{
			name:      "client error is final",
			errs:      []error{statusErr(404)},
			attempts:  3,
			wantCalls: 1,
			wantErr:   "status 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithBackoff(context.Background(), fast(tt.attempts), func() error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestWithBackoff_ContextCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Minute, MaxDelay: time.Minute, Multiplier: 1}

	calls := 0
	err := WithBackoff(ctx, cfg, func() error {
		calls++
		cancel()
		return statusErr(500)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

/* ─── 2. IsRetryable ─── */

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), false},
		{"network timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"network unreachable", syscall.ENETUNREACH, true},
		{"500", statusErr(500), true},
		{"599", statusErr(599), true},
		{"429", statusErr(429), true},
		{"408", statusErr(408), true},
		{"wrapped 503", fmt.Errorf("contacts search: %w", statusErr(503)), true},
		{"401", statusErr(401), false},
		{"422", statusErr(422), false},
		{"plain error", errors.New("template parameter count mismatch"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

/* ─── 3. Presets and jitter ─── */

func TestPresets(t *testing.T) {
	for name, cfg := range map[string]Config{"gateway read": GatewayReadConfig(), "db": DBConfig()} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 3, cfg.MaxAttempts)
			assert.Positive(t, cfg.InitialDelay)
			assert.GreaterOrEqual(t, cfg.MaxDelay, cfg.InitialDelay)
			assert.Greater(t, cfg.Multiplier, 1.0)
			assert.Greater(t, cfg.JitterFraction, 0.0)
			assert.LessOrEqual(t, cfg.JitterFraction, 1.0)
		})
	}
}

func TestAddJitter(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, addJitter(base, 0))
	for i := 0; i < 50; i++ {
		got := addJitter(base, 0.5)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/2)
	}
	assert.LessOrEqual(t, addJitter(base, 3), 2*base, "fraction is capped at 1")
}

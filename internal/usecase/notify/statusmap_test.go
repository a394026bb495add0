package notify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engage-notify/internal/config"
)

func TestMatchNotificationTypes(t *testing.T) {
	s := config.Defaults()

	tests := []struct {
		status string
		want   []string
	}{
		{"pending", []string{"order_received"}},
		{"processing", []string{"order_processing"}},
		{"completed", []string{"order_completed"}},
		{"cancelled", []string{"order_cancelled"}},
		{"failed", []string{"order_failed"}},
		{"refunded", []string{"order_refunded"}},
		{"shipped", []string{"order_shipped"}},
		{"wc-shipped", []string{"order_shipped"}},
		{"in-transit", []string{"order_shipped"}},
		{"ready-for-pickup", []string{"order_shipped"}},
		{"delivered", []string{"order_delivered"}},
		{"picked-up", []string{"order_delivered"}},
		{"ast-shipped", []string{"order_shipped"}},
		{"wc-ast-delivered", []string{"order_delivered"}},
		{"ss-shipped", []string{"order_shipped"}},
		{"wc-ast-return-to-sender", []string{"order_cancelled"}},
		{"on-hold", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := MatchNotificationTypes(tt.status, s)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MatchNotificationTypes(%q) mismatch (-want +got):\n%s", tt.status, diff)
			}
		})
	}
}

func TestMatchNotificationTypes_StatusMapping(t *testing.T) {
	s, _, err := config.ParseSettings([]byte(`
status_mapping:
  order_shipped: pp-in-transit
  order_delivered: wc-arrived
  order_completed: shipped
custom_statuses:
  - id: backordered
    wc_status: wc-backordered
  - id: welcome
    wc_status: processing
    event_type: user_registered
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"order_shipped"}, MatchNotificationTypes("pp-in-transit", s))
	assert.Equal(t, []string{"order_delivered"}, MatchNotificationTypes("arrived", s))
	assert.Equal(t, []string{"order_completed", "order_shipped"}, MatchNotificationTypes("shipped", s),
		"mapped types come before the standard map and duplicates are dropped")
	assert.Equal(t, []string{"backordered"}, MatchNotificationTypes("backordered", s))
	assert.Equal(t, []string{"order_processing"}, MatchNotificationTypes("processing", s),
		"account event statuses never fire on order transitions")
}

func TestAccountEventTypes(t *testing.T) {
	s, _, err := config.ParseSettings([]byte(`
custom_statuses:
  - id: welcome
    event_type: user_registered
  - id: shipped_custom
    wc_status: shipped
    event_type: order_status
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"welcome"}, AccountEventTypes("user_registered", s))
	assert.Empty(t, AccountEventTypes("order_status", s))
	assert.Empty(t, AccountEventTypes("", s))
}

func TestStatusMatches(t *testing.T) {
	tests := []struct {
		status, mapped string
		want           bool
	}{
		{"shipped", "shipped", true},
		{"wc-shipped", "shipped", true},
		{"shipped", "wc-shipped", true},
		{"pp-delivered", "pp-delivered", true},
		{"delivered", "pp-delivered", false},
		{"shipped", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusMatches(tt.status, tt.mapped), "%s vs %s", tt.status, tt.mapped)
	}
}

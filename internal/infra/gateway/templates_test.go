package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engage-notify/internal/domain/entity"
)

func TestListTemplates(t *testing.T) {
	f, srv := newFakeEngage(t)
	f.json(pathInbox, 200, `{"id":5,"message_templates":[
		{"id":"tpl-1","name":"order_shipped_default","status":"APPROVED","category":"UTILITY","language":"en_US",
		 "components":[
			{"type":"HEADER","format":"IMAGE"},
			{"type":"BODY","text":"Hi {{1}}, order {{3}} shipped. Track: {{2}} {{1}}"},
			{"type":"FOOTER","text":"Reply STOP to opt out"},
			{"type":"BUTTONS","buttons":[{"type":"URL","url":"https://shop.test/{{1}}"}]}
		 ]},
		{"id":12,"name":"welcome","components":[
			{"type":"HEADER","format":"TEXT","text":"Welcome {{4}}"},
			{"type":"BODY","text":"Thanks for joining"}
		 ]}
	]}`)

	c := New(testGatewayConfig(srv.URL), nil, WithReadRetry(fastRetry()))
	got, err := c.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "tpl-1", first.ID)
	assert.Equal(t, "order_shipped_default", first.Name)
	assert.Equal(t, "APPROVED", first.Status)
	assert.Equal(t, "", first.Header)
	assert.Equal(t, "Reply STOP to opt out", first.Footer)
	assert.Equal(t, []int{1, 2, 3}, first.Variables)
	assert.Len(t, first.Components, 4)

	second := got[1]
	assert.Equal(t, "12", second.ID)
	assert.Equal(t, "Welcome {{4}}", second.Header)
	assert.Equal(t, []int{4}, second.Variables)
	assert.Equal(t, "", second.Language)
}

func TestListTemplates_RequiresConfiguration(t *testing.T) {
	_, srv := newFakeEngage(t)
	cfg := testGatewayConfig(srv.URL)
	cfg.InboxID = 0

	_, err := New(cfg, nil).ListTemplates(context.Background())
	var ce *entity.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "inbox_id", ce.Field)
}

func TestListTemplates_NoTemplates(t *testing.T) {
	f, srv := newFakeEngage(t)
	f.json(pathInbox, 200, `{"id":5}`)

	got, err := New(testGatewayConfig(srv.URL), nil, WithReadRetry(fastRetry())).ListTemplates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

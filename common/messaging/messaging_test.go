package messaging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort-stack/common/messaging"
	"github.com/cohortlabs/cohort-stack/common/messaging/messagingtest"
)

func TestAuditSubject(t *testing.T) {
	assert.Equal(t, "groups.audit.MEMBER_UPDATE", messaging.AuditSubject("MEMBER_UPDATE"))
}

func TestMessageHeader(t *testing.T) {
	var m messaging.Message
	assert.Equal(t, "", m.Header(messaging.HeaderRequestID))

	m.Metadata = map[string]string{messaging.HeaderRequestID: "r1"}
	assert.Equal(t, "r1", m.Header(messaging.HeaderRequestID))
}

func TestCheckClientHealth(t *testing.T) {
	ctx := context.Background()

	status := messaging.CheckClientHealth(ctx, nil)
	assert.False(t, status.Connected)
	assert.Equal(t, "client is nil", status.Error)

	bus := messagingtest.NewBus()
	status = messaging.CheckClientHealth(ctx, bus)
	assert.True(t, status.Connected, "no responders still means the broker is reachable")
	assert.Empty(t, status.Error)

	bus.Disconnect()
	status = messaging.CheckClientHealth(ctx, bus)
	assert.False(t, status.Connected)
	assert.NotEmpty(t, status.Error)
}

func TestBusQueueGroupDeliversOnce(t *testing.T) {
	bus := messagingtest.NewBus()
	var a, b, fan int
	_, err := bus.QueueSubscribe("s", messaging.QueueGroupWorkers, func(context.Context, *messaging.Message) error { a++; return nil })
	require.NoError(t, err)
	_, err = bus.QueueSubscribe("s", messaging.QueueGroupWorkers, func(context.Context, *messaging.Message) error { b++; return nil })
	require.NoError(t, err)
	_, err = bus.Subscribe("s", func(context.Context, *messaging.Message) error { fan++; return nil })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "s", []byte("x")))

	assert.Equal(t, 1, a+b)
	assert.Equal(t, 1, fan)
	assert.Len(t, bus.Published(), 1)
}

package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort-stack/common/messaging"
)

func TestMessageConversion_RoundTripsHeaders(t *testing.T) {
	msg := &messaging.Message{
		Subject: messaging.SubjectGroupsMembershipUpdate,
		Data:    []byte(`{"id":"r1"}`),
		Reply:   "_INBOX.abc",
		Metadata: map[string]string{
			messaging.HeaderContentType: "application/cbor",
			messaging.HeaderRequestID:   "req-1",
		},
	}

	nm := messageToNATS(msg)
	require.NotNil(t, nm.Header)
	assert.Equal(t, "application/cbor", nm.Header.Get(messaging.HeaderContentType))

	back := natsToMessage(nm)
	assert.Equal(t, msg.Subject, back.Subject)
	assert.Equal(t, msg.Reply, back.Reply)
	assert.Equal(t, "req-1", back.Header(messaging.HeaderRequestID))
	assert.False(t, back.Timestamp.IsZero())
}

func TestMessageConversion_NoHeaders(t *testing.T) {
	nm := messageToNATS(&messaging.Message{Subject: "s", Data: []byte("x")})
	assert.Nil(t, nm.Header)

	back := natsToMessage(&nats.Msg{Subject: "s"})
	assert.Nil(t, back.Metadata)
	assert.Equal(t, "", back.Header(messaging.HeaderContentType))
}

func TestAuditStreamCapturesAuditSubjects(t *testing.T) {
	assert.Equal(t, []string{"groups.audit.>"}, AuditStream.Subjects)
}

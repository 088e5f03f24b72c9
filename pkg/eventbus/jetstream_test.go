package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.gmail.email_sent", Subject("gmail", "email_sent"))
	assert.Equal(t, "events.whatsapp.wa_status", Subject("whatsapp", "wa_status"))
	assert.Equal(t, "events.a_b.unknown", Subject("a.b", ""))
	assert.Equal(t, "events.__.x", Subject("*>", "x"))
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher()
	assert.NoError(t, p.Publish("events.gmail.email_sent", []byte("{}"), "gmail:M1"))
	p.Close()
}

func TestNewJetStreamPublisher_Unreachable(t *testing.T) {
	_, err := NewJetStreamPublisher("nats://127.0.0.1:1")
	assert.ErrorContains(t, err, "failed to connect to NATS")
}

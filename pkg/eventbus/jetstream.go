package eventbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	StreamName    = "OUTBOUND_EVENTS"
	subjectPrefix = "events"
)

// Publisher fans stored events out to downstream consumers.
type Publisher interface {
	Publish(subject string, payload []byte, msgID string) error
	Close()
}

// JetStreamPublisher publishes to a NATS JetStream stream with
// server-side deduplication on the message id.
type JetStreamPublisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

func NewJetStreamPublisher(url string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("msgtracker-api"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js}, nil
}

// EnsureStream creates the OUTBOUND_EVENTS stream if it does not exist yet.
func (p *JetStreamPublisher) EnsureStream() error {
	if info, err := p.js.StreamInfo(StreamName); err == nil && info != nil {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{subjectPrefix + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     30 * 24 * time.Hour,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func (p *JetStreamPublisher) Publish(subject string, payload []byte, msgID string) error {
	if _, err := p.js.Publish(subject, payload, nats.MsgId(msgID)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *JetStreamPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Subject returns events.<provider>.<eventType>.
func Subject(provider, eventType string) string {
	return strings.Join([]string{subjectPrefix, token(provider), token(eventType)}, ".")
}

// token keeps a subject segment free of NATS separators and wildcards.
func token(s string) string {
	s = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

type noopPublisher struct{}

// NewNoopPublisher is used when NATS_URL is not configured.
func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(string, []byte, string) error { return nil }
func (noopPublisher) Close()                               {}

package whatsapp

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"
)

// WebhookPayload is the body Meta posts to the webhook. Only statuses are read.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string   `json:"messaging_product"`
	Statuses         []Status `json:"statuses"`
}

// Status is one delivery report. Raw keeps the object exactly as received.
type Status struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	RecipientID string          `json:"recipient_id"`
	Raw         json.RawMessage `json:"-"`
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var fields struct {
		ID          string          `json:"id"`
		Status      string          `json:"status"`
		Timestamp   json.RawMessage `json:"timestamp"`
		RecipientID string          `json:"recipient_id"`
	}
	s.Raw = append(json.RawMessage(nil), data...)
	if err := json.Unmarshal(data, &fields); err != nil {
		// A mistyped status decodes as empty and is dropped downstream as
		// malformed; the other statuses in the delivery are unaffected.
		log.Printf("[WhatsApp] Malformed status in webhook: %v", err)
		*s = Status{Raw: s.Raw}
		return nil
	}
	s.ID = fields.ID
	s.Status = fields.Status
	s.Timestamp = strings.Trim(string(fields.Timestamp), `"`)
	s.RecipientID = fields.RecipientID
	return nil
}

// Time converts the unix-seconds timestamp, falling back to now.
func (s Status) Time() time.Time {
	if secs, err := strconv.ParseInt(s.Timestamp, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}

// Statuses flattens every status in the payload, in delivery order.
func (p *WebhookPayload) Statuses() []Status {
	var out []Status
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			out = append(out, change.Value.Statuses...)
		}
	}
	return out
}

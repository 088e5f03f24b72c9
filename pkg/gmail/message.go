package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"
)

type PartKind int

const (
	PartOther PartKind = iota
	PartContainer
	PartText
	PartAttachment
)

// Part is one node of a message's MIME tree, classified by what it carries.
type Part struct {
	Kind         PartKind
	MimeType     string
	Filename     string
	Text         string
	AttachmentID string
	Size         int64
	Children     []Part
}

// SentMessage is a fetched message reduced to the fields ingestion needs.
type SentMessage struct {
	ID           string
	ThreadID     string
	LabelIDs     []string
	Snippet      string
	InternalDate time.Time
	Subject      string
	To           string
	Date         time.Time
	Root         Part
}

// AttachmentPart describes one attachment found in the MIME tree.
type AttachmentPart struct {
	Filename     string
	MimeType     string
	Size         int64
	AttachmentID string
}

func ParseMessage(msg *gmail.Message) *SentMessage {
	out := &SentMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		LabelIDs: msg.LabelIds,
		Snippet:  msg.Snippet,
	}
	if msg.InternalDate > 0 {
		out.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return out
	}

	var h mail.Header
	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject", "to", "date":
			h.Add(header.Name, header.Value)
		}
	}
	out.Subject = decodedText(&h, "Subject")
	out.To = decodedText(&h, "To")
	if date, err := h.Date(); err == nil && !date.IsZero() {
		out.Date = date.UTC()
	}

	out.Root = parsePart(msg.Payload)
	return out
}

func decodedText(h *mail.Header, key string) string {
	if v, err := h.Text(key); err == nil {
		return v
	}
	return h.Get(key)
}

func parsePart(p *gmail.MessagePart) Part {
	part := Part{MimeType: p.MimeType, Filename: p.Filename}
	if p.Body != nil {
		part.Size = p.Body.Size
	}

	switch {
	case p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "":
		part.Kind = PartAttachment
		part.AttachmentID = p.Body.AttachmentId
	case (p.MimeType == "text/plain" || p.MimeType == "text/html") && p.Body != nil && p.Body.Data != "":
		if text, ok := decodeBody(p.Body.Data); ok {
			part.Kind = PartText
			part.Text = text
		}
	case len(p.Parts) > 0:
		part.Kind = PartContainer
	}

	for _, child := range p.Parts {
		if child != nil {
			part.Children = append(part.Children, parsePart(child))
		}
	}
	return part
}

// decodeBody decodes Gmail's URL-safe base64, padded or not.
func decodeBody(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	return "", false
}

func (m *SentMessage) HasLabel(label string) bool {
	for _, l := range m.LabelIDs {
		if l == label {
			return true
		}
	}
	return false
}

// Body joins all decoded text parts in tree order.
func (m *SentMessage) Body() string {
	var texts []string
	m.Root.walk(func(p Part) {
		if p.Kind == PartText {
			texts = append(texts, p.Text)
		}
	})
	return strings.Join(texts, "\n")
}

func (m *SentMessage) Attachments() []AttachmentPart {
	var out []AttachmentPart
	m.Root.walk(func(p Part) {
		if p.Kind == PartAttachment {
			out = append(out, AttachmentPart{
				Filename:     p.Filename,
				MimeType:     p.MimeType,
				Size:         p.Size,
				AttachmentID: p.AttachmentID,
			})
		}
	})
	return out
}

// OccurredAt prefers the Date header and falls back to the internal date.
func (m *SentMessage) OccurredAt() time.Time {
	if !m.Date.IsZero() {
		return m.Date
	}
	if !m.InternalDate.IsZero() {
		return m.InternalDate
	}
	return time.Now().UTC()
}

func (p Part) walk(fn func(Part)) {
	fn(p)
	for _, child := range p.Children {
		child.walk(fn)
	}
}

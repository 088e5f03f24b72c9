package domain

import "time"

// OutboundMessage is the provider-neutral form of a sent message, ready for ingestion.
type OutboundMessage struct {
	UserID     string
	Provider   string
	EventType  EventType
	ExternalID string
	OccurredAt time.Time
	Recipient  string
	Subject    string
	Preview    string
	// LinkText is scanned for links. It is not stored.
	LinkText    []string
	RawRef      interface{}
	Attachments []AttachmentMeta
}

type AttachmentMeta struct {
	Filename             string
	MimeType             string
	SizeBytes            *int64
	ExternalAttachmentID string
}

// StatusUpdate is one delivery status reported for a previously sent message.
type StatusUpdate struct {
	MessageID   string
	Status      string
	RecipientID string
	Timestamp   time.Time
	Raw         interface{}
}

// ExternalID is the identity of the wa_status event for this update. Repeats of
// the same status for the same recipient share it; a new status does not.
func (s StatusUpdate) ExternalID() string {
	return s.MessageID + ":" + s.Status + ":" + s.RecipientID
}

// IngestResult reports what the engine wrote for one message.
type IngestResult struct {
	Event              *Event
	Created            bool
	LinksRecorded      int
	AttachmentsWritten int
	AttachmentsFailed  int
}

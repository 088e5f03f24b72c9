package domain

import (
	"time"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventTypeEmailSent EventType = "email_sent"
	EventTypeWASent    EventType = "wa_sent"
	EventTypeWAStatus  EventType = "wa_status"
)

// Event is one communication action or status change, unique by (provider, external id).
type Event struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	UserID      string         `json:"user_id" gorm:"not null;index"`
	Provider    string         `json:"provider" gorm:"not null;uniqueIndex:idx_events_provider_external,priority:1"`
	EventType   EventType      `json:"event_type" gorm:"type:varchar(16);not null;index"`
	ExternalID  string         `json:"external_id" gorm:"not null;uniqueIndex:idx_events_provider_external,priority:2"`
	OccurredAt  time.Time      `json:"occurred_at" gorm:"not null;index"`
	ToRecipient *string        `json:"to_recipient,omitempty"`
	Subject     *string        `json:"subject,omitempty"`
	Preview     *string        `json:"preview,omitempty"`
	RawRef      datatypes.JSON `json:"raw_ref,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	Attachments []Attachment `json:"attachments,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	EventLinks  []EventLink  `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// Link is shared by every event that mentions the same normalized URL.
type Link struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	URL           string    `json:"url" gorm:"not null"`
	NormalizedURL string    `json:"normalized_url" gorm:"not null;uniqueIndex"`
	Domain        string    `json:"domain" gorm:"not null;index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type EventLink struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	EventID   string    `json:"event_id" gorm:"not null;uniqueIndex:idx_event_links_event_link,priority:1"`
	LinkID    string    `json:"link_id" gorm:"not null;uniqueIndex:idx_event_links_event_link,priority:2;index"`
	Link      *Link     `json:"link,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is metadata only. Rows are not unique; a retried ingestion may add duplicates.
type Attachment struct {
	ID                   string    `json:"id" gorm:"primaryKey"`
	EventID              string    `json:"event_id" gorm:"not null;index"`
	Filename             string    `json:"filename" gorm:"not null"`
	MimeType             string    `json:"mime_type" gorm:"not null"`
	SizeBytes            *int64    `json:"size_bytes,omitempty"`
	ExternalAttachmentID *string   `json:"external_attachment_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

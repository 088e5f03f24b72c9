package dto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kdrangari/msgtracker-api/internal/integration/domain"
)

// PushEnvelope is the body of a Pub/Sub push delivery.
type PushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Notification is the decoded payload Gmail publishes on every mailbox change.
type Notification struct {
	EmailAddress string    `json:"emailAddress"`
	HistoryID    HistoryID `json:"historyId"`
}

// HistoryID accepts both JSON numbers and numeric strings.
type HistoryID uint64

func (h *HistoryID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*h = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid historyId %q: %w", s, err)
	}
	*h = HistoryID(v)
	return nil
}

func (h HistoryID) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(h), 10))
}

type AuthURLResponse struct {
	URL string `json:"url"`
}

type ConnectResponse struct {
	Connected    bool   `json:"connected"`
	GmailAddress string `json:"gmailAddress"`
	Watching     bool   `json:"watching"`
}

type WatchResponse struct {
	HistoryID  uint64    `json:"historyId,string"`
	Expiration time.Time `json:"expiration"`
	Labels     []string  `json:"labels"`
}

type StatusResponse struct {
	Connected       bool              `json:"connected"`
	GmailAddress    *string           `json:"gmailAddress"`
	HasRefreshToken bool              `json:"hasRefreshToken"`
	Sync            *domain.SyncState `json:"sync"`
}

// SyncResult summarizes one notification's pull sync.
type SyncResult struct {
	MessagesSeen     int    `json:"messagesSeen"`
	EventsIngested   int    `json:"eventsIngested"`
	SkippedNotSent   int    `json:"skippedNotSent"`
	CursorAdvancedTo uint64 `json:"cursorAdvancedTo,omitempty"`
	CursorReset      bool   `json:"cursorReset,omitempty"`
}

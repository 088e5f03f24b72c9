package domain

import (
	"strings"
	"time"
)

const (
	ProviderGmail    = "gmail"
	ProviderWhatsApp = "whatsapp"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// SyncState is the provider cursor plus the watch registration that feeds it.
// A zero HistoryID means no cursor has been observed yet.
type SyncState struct {
	HistoryID       uint64     `json:"historyId,omitempty"`
	WatchExpiration *time.Time `json:"watchExpiration,omitempty"`
	WatchLabels     string     `json:"watchLabels,omitempty"`
}

func (s SyncState) HasCursor() bool {
	return s.HistoryID != 0
}

func (s SyncState) Labels() []string {
	if s.WatchLabels == "" {
		return nil
	}
	return strings.Split(s.WatchLabels, ",")
}

// Integration is one user's connection to one provider.
type Integration struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	UserID            string    `json:"user_id" gorm:"not null;uniqueIndex:idx_integrations_user_provider"`
	Provider          string    `json:"provider" gorm:"not null;uniqueIndex:idx_integrations_user_provider;index:idx_integrations_account"`
	Status            Status    `json:"status" gorm:"type:varchar(16);not null;default:pending"`
	ExternalAccountID *string   `json:"external_account_id,omitempty" gorm:"index:idx_integrations_account"`
	Sync              SyncState `json:"sync" gorm:"embedded;embeddedPrefix:sync_"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (i *Integration) Connected() bool {
	return i != nil && i.Status == StatusConnected
}

// OAuthToken holds delegated credentials for an Integration. Token values are
// sealed at rest by the repository.
type OAuthToken struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	IntegrationID string     `json:"integration_id" gorm:"not null;uniqueIndex"`
	RefreshToken  string     `json:"-" gorm:"not null"`
	AccessToken   string     `json:"-"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	Scopes        string     `json:"scopes"`
	TokenVersion  int        `json:"token_version" gorm:"not null;default:1"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TokenGrant is what an OAuth exchange or refresh returned. Empty fields mean
// "not returned" and leave the stored value in place.
type TokenGrant struct {
	RefreshToken string
	AccessToken  string
	Expiry       *time.Time
	Scopes       string
}

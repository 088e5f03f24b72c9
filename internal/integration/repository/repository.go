package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kdrangari/msgtracker-api/internal/integration/domain"
)

// ErrMissingRefreshToken is returned when a first token grant carries no refresh token.
var ErrMissingRefreshToken = errors.New("no refresh token stored or returned")

// IntegrationRepository is the cursor store and OAuth token store.
type IntegrationRepository interface {
	// Upsert creates or updates the (user, provider) integration's status and account id.
	Upsert(ctx context.Context, userID, provider string, status domain.Status, externalAccountID *string) (*domain.Integration, error)
	FindByID(ctx context.Context, id string) (*domain.Integration, error)
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*domain.Integration, error)
	// FindConnectedByAccount resolves a provider notification to its integration.
	FindConnectedByAccount(ctx context.Context, provider, externalAccountID string) (*domain.Integration, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	// ListWatchesExpiringBefore returns connected integrations whose watch is
	// missing or lapses before the given time.
	ListWatchesExpiringBefore(ctx context.Context, provider string, before time.Time) ([]domain.Integration, error)

	// SaveWatch replaces the watch registration. The cursor it carries is only
	// applied when no cursor is stored yet; after that only AdvanceCursor moves it.
	SaveWatch(ctx context.Context, id string, state domain.SyncState) error
	// AdvanceCursor moves the cursor forward to historyID. It reports false
	// when the stored cursor is already at or past historyID.
	AdvanceCursor(ctx context.Context, id string, historyID uint64) (bool, error)

	// UpsertOAuthToken stores a grant without ever clearing a stored refresh token.
	UpsertOAuthToken(ctx context.Context, integrationID string, grant domain.TokenGrant) (*domain.OAuthToken, error)
	FindOAuthToken(ctx context.Context, integrationID string) (*domain.OAuthToken, error)
	// RecordTokenRefresh persists a refreshed access token and bumps the token version.
	RecordTokenRefresh(ctx context.Context, integrationID, accessToken, refreshToken string, expiry time.Time) error
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kdrangari/msgtracker-api/internal/integration/domain"
	"github.com/kdrangari/msgtracker-api/pkg/utils/crypto"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// integrationRepository implements IntegrationRepository interface
type integrationRepository struct {
	db     *gorm.DB
	sealer crypto.Sealer
}

// NewIntegrationRepository creates a new instance of integrationRepository
func NewIntegrationRepository(db *gorm.DB, sealer crypto.Sealer) IntegrationRepository {
	return &integrationRepository{
		db:     db,
		sealer: sealer,
	}
}

func (r *integrationRepository) Upsert(ctx context.Context, userID, provider string, status domain.Status, externalAccountID *string) (*domain.Integration, error) {
	now := time.Now()
	integration := domain.Integration{
		ID:                uuid.New().String(),
		UserID:            userID,
		Provider:          provider,
		Status:            status,
		ExternalAccountID: externalAccountID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "external_account_id", "updated_at"}),
	}).Create(&integration).Error
	if err != nil {
		return nil, fmt.Errorf("upsert integration: %w", err)
	}

	return r.FindByUserAndProvider(ctx, userID, provider)
}

func (r *integrationRepository) FindByID(ctx context.Context, id string) (*domain.Integration, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *integrationRepository) FindByUserAndProvider(ctx context.Context, userID, provider string) (*domain.Integration, error) {
	return r.first(ctx, "user_id = ? AND provider = ?", userID, provider)
}

func (r *integrationRepository) FindConnectedByAccount(ctx context.Context, provider, externalAccountID string) (*domain.Integration, error) {
	return r.first(ctx, "provider = ? AND external_account_id = ? AND status = ?", provider, externalAccountID, domain.StatusConnected)
}

func (r *integrationRepository) ListWatchesExpiringBefore(ctx context.Context, provider string, before time.Time) ([]domain.Integration, error) {
	var integrations []domain.Integration
	err := r.db.WithContext(ctx).
		Where("provider = ? AND status = ?", provider, domain.StatusConnected).
		Where("sync_watch_expiration IS NULL OR sync_watch_expiration < ?", before.UTC()).
		Order("sync_watch_expiration").
		Find(&integrations).Error
	if err != nil {
		return nil, fmt.Errorf("list expiring watches: %w", err)
	}
	return integrations, nil
}

func (r *integrationRepository) first(ctx context.Context, query string, args ...interface{}) (*domain.Integration, error) {
	var integration domain.Integration
	err := r.db.WithContext(ctx).Where(query, args...).First(&integration).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	return r.db.WithContext(ctx).Model(&domain.Integration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

func (r *integrationRepository) SaveWatch(ctx context.Context, id string, state domain.SyncState) error {
	updates := map[string]interface{}{
		"sync_watch_expiration": state.WatchExpiration,
		"sync_watch_labels":     state.WatchLabels,
		"updated_at":            time.Now(),
	}
	if state.HistoryID != 0 {
		updates["sync_history_id"] = gorm.Expr(
			"CASE WHEN sync_history_id IS NULL OR sync_history_id = 0 THEN ? ELSE sync_history_id END",
			state.HistoryID,
		)
	}

	result := r.db.WithContext(ctx).Model(&domain.Integration{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("save watch state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("save watch state: integration %s not found", id)
	}
	return nil
}

func (r *integrationRepository) AdvanceCursor(ctx context.Context, id string, historyID uint64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Integration{}).
		Where("id = ? AND (sync_history_id IS NULL OR sync_history_id < ?)", id, historyID).
		Updates(map[string]interface{}{"sync_history_id": historyID, "updated_at": time.Now()})
	if result.Error != nil {
		return false, fmt.Errorf("advance cursor: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *integrationRepository) UpsertOAuthToken(ctx context.Context, integrationID string, grant domain.TokenGrant) (*domain.OAuthToken, error) {
	var saved domain.OAuthToken

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.OAuthToken
		err := tx.Where("integration_id = ?", integrationID).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		now := time.Now()

		if errors.Is(err, gorm.ErrRecordNotFound) {
			if grant.RefreshToken == "" {
				return ErrMissingRefreshToken
			}
			saved = domain.OAuthToken{
				ID:            uuid.New().String(),
				IntegrationID: integrationID,
				RefreshToken:  grant.RefreshToken,
				AccessToken:   grant.AccessToken,
				Expiry:        grant.Expiry,
				Scopes:        grant.Scopes,
				TokenVersion:  1,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			sealed, err := r.seal(saved)
			if err != nil {
				return err
			}
			return tx.Create(&sealed).Error
		}

		saved, err = r.open(existing)
		if err != nil {
			return err
		}
		if grant.RefreshToken != "" {
			saved.RefreshToken = grant.RefreshToken
		}
		if grant.AccessToken != "" {
			saved.AccessToken = grant.AccessToken
		}
		if grant.Expiry != nil {
			saved.Expiry = grant.Expiry
		}
		if grant.Scopes != "" {
			saved.Scopes = grant.Scopes
		}
		saved.TokenVersion++
		saved.UpdatedAt = now

		sealed, err := r.seal(saved)
		if err != nil {
			return err
		}
		return tx.Save(&sealed).Error
	})
	if err != nil {
		if errors.Is(err, ErrMissingRefreshToken) {
			return nil, err
		}
		return nil, fmt.Errorf("upsert oauth token: %w", err)
	}

	return &saved, nil
}

func (r *integrationRepository) FindOAuthToken(ctx context.Context, integrationID string) (*domain.OAuthToken, error) {
	var token domain.OAuthToken
	err := r.db.WithContext(ctx).Where("integration_id = ?", integrationID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	opened, err := r.open(token)
	if err != nil {
		return nil, err
	}
	return &opened, nil
}

func (r *integrationRepository) RecordTokenRefresh(ctx context.Context, integrationID, accessToken, refreshToken string, expiry time.Time) error {
	sealedAccess, err := r.sealer.Seal(accessToken)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"access_token":  sealedAccess,
		"token_version": gorm.Expr("token_version + 1"),
		"updated_at":    time.Now(),
	}
	if !expiry.IsZero() {
		updates["expiry"] = expiry
	}
	// Google only returns a refresh token when it rotates one.
	if refreshToken != "" {
		sealedRefresh, err := r.sealer.Seal(refreshToken)
		if err != nil {
			return err
		}
		updates["refresh_token"] = sealedRefresh
	}

	return r.db.WithContext(ctx).Model(&domain.OAuthToken{}).
		Where("integration_id = ?", integrationID).
		Updates(updates).Error
}

func (r *integrationRepository) seal(t domain.OAuthToken) (domain.OAuthToken, error) {
	var err error
	if t.RefreshToken, err = r.sealer.Seal(t.RefreshToken); err != nil {
		return t, fmt.Errorf("seal refresh token: %w", err)
	}
	if t.AccessToken, err = r.sealer.Seal(t.AccessToken); err != nil {
		return t, fmt.Errorf("seal access token: %w", err)
	}
	return t, nil
}

func (r *integrationRepository) open(t domain.OAuthToken) (domain.OAuthToken, error) {
	var err error
	if t.RefreshToken, err = r.sealer.Open(t.RefreshToken); err != nil {
		return t, fmt.Errorf("open refresh token: %w", err)
	}
	if t.AccessToken, err = r.sealer.Open(t.AccessToken); err != nil {
		return t, fmt.Errorf("open access token: %w", err)
	}
	return t, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kdrangari/msgtracker-api/internal/event/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var eventIdentity = []clause.Column{{Name: "provider"}, {Name: "external_id"}}

// eventRepository implements EventRepository interface
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new instance of eventRepository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{
		db: db,
	}
}

func (r *eventRepository) UpsertEvent(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	prepareEvent(event)

	err := r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: eventIdentity,
		DoUpdates: clause.AssignmentColumns([]string{
			"occurred_at", "to_recipient", "subject", "preview", "raw_ref", "updated_at",
		}),
	}).Create(event).Error
	if err != nil {
		return nil, fmt.Errorf("upsert event %s/%s: %w", event.Provider, event.ExternalID, err)
	}

	// The row id is the one already stored when the insert turned into an update.
	return r.findByIdentity(ctx, event.Provider, event.ExternalID)
}

func (r *eventRepository) CreateEventIfAbsent(ctx context.Context, event *domain.Event) (*domain.Event, bool, error) {
	prepareEvent(event)

	result := r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   eventIdentity,
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return nil, false, fmt.Errorf("create event %s/%s: %w", event.Provider, event.ExternalID, result.Error)
	}

	stored, err := r.findByIdentity(ctx, event.Provider, event.ExternalID)
	if err != nil {
		return nil, false, err
	}
	return stored, result.RowsAffected > 0, nil
}

func (r *eventRepository) FindEventByExternalID(ctx context.Context, provider string, eventType domain.EventType, externalID string) (*domain.Event, error) {
	var event domain.Event
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_type = ? AND external_id = ?", provider, eventType, externalID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) findByIdentity(ctx context.Context, provider, externalID string) (*domain.Event, error) {
	var event domain.Event
	err := r.db.WithContext(ctx).Where("provider = ? AND external_id = ?", provider, externalID).First(&event).Error
	if err != nil {
		return nil, fmt.Errorf("reload event %s/%s: %w", provider, externalID, err)
	}
	return &event, nil
}

func (r *eventRepository) UpsertLink(ctx context.Context, link *domain.Link) (*domain.Link, error) {
	now := time.Now()
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.CreatedAt = now
	link.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_url"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "domain", "updated_at"}),
	}).Create(link).Error
	if err != nil {
		return nil, fmt.Errorf("upsert link %s: %w", link.NormalizedURL, err)
	}

	var stored domain.Link
	if err := r.db.WithContext(ctx).Where("normalized_url = ?", link.NormalizedURL).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload link %s: %w", link.NormalizedURL, err)
	}
	return &stored, nil
}

func (r *eventRepository) UpsertEventLink(ctx context.Context, eventID, linkID string) error {
	edge := domain.EventLink{
		ID:        uuid.New().String(),
		EventID:   eventID,
		LinkID:    linkID,
		CreatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "link_id"}},
		DoNothing: true,
	}).Create(&edge).Error
}

func (r *eventRepository) CreateAttachment(ctx context.Context, attachment *domain.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.New().String()
	}
	attachment.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(attachment).Error
}

func prepareEvent(event *domain.Event) {
	now := time.Now()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
}

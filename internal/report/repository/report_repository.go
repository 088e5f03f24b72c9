package repository

import (
	"context"
	"strings"

	eventdomain "github.com/kdrangari/msgtracker-api/internal/event/domain"
	reportdto "github.com/kdrangari/msgtracker-api/internal/report/dto"

	"gorm.io/gorm"
)

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// eventScope restricts a query joined on events to the filter.
func eventScope(f reportdto.Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("events.user_id = ? AND events.occurred_at >= ? AND events.occurred_at <= ?", f.UserID, f.From.UTC(), f.To.UTC())
		if f.Provider != "" {
			db = db.Where("events.provider = ?", f.Provider)
		}
		return db
	}
}

func (r *reportRepository) events(ctx context.Context, f reportdto.Filter) *gorm.DB {
	return r.db.WithContext(ctx).Model(&eventdomain.Event{}).Scopes(eventScope(f))
}

func (r *reportRepository) CountEvents(ctx context.Context, f reportdto.Filter) (int64, error) {
	var n int64
	err := r.events(ctx, f).Count(&n).Error
	return n, err
}

func (r *reportRepository) CountByProvider(ctx context.Context, f reportdto.Filter) ([]reportdto.ProviderCount, error) {
	rows := []reportdto.ProviderCount{}
	err := r.events(ctx, f).
		Select("events.provider AS provider, COUNT(*) AS count").
		Group("events.provider").
		Order("count DESC, provider").
		Scan(&rows).Error
	return rows, err
}

func (r *reportRepository) CountByType(ctx context.Context, f reportdto.Filter) ([]reportdto.TypeCount, error) {
	rows := []reportdto.TypeCount{}
	err := r.events(ctx, f).
		Select("events.event_type AS event_type, COUNT(*) AS count").
		Group("events.event_type").
		Order("count DESC, event_type").
		Scan(&rows).Error
	return rows, err
}

func (r *reportRepository) links(ctx context.Context, f reportdto.Filter) *gorm.DB {
	return r.db.WithContext(ctx).Table("event_links").
		Joins("JOIN links ON links.id = event_links.link_id").
		Joins("JOIN events ON events.id = event_links.event_id").
		Scopes(eventScope(f))
}

func (r *reportRepository) TopLinks(ctx context.Context, f reportdto.Filter, limit int) ([]reportdto.LinkCount, error) {
	rows := []reportdto.LinkCount{}
	err := r.links(ctx, f).
		Select("links.normalized_url AS normalized_url, links.url AS url, links.domain AS domain, COUNT(DISTINCT event_links.event_id) AS count").
		Group("links.id, links.normalized_url, links.url, links.domain").
		Order("count DESC, normalized_url").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *reportRepository) TopDomains(ctx context.Context, f reportdto.Filter, limit int) ([]reportdto.DomainCount, error) {
	rows := []reportdto.DomainCount{}
	err := r.links(ctx, f).
		Select("links.domain AS domain, COUNT(*) AS count").
		Group("links.domain").
		Order("count DESC, domain").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *reportRepository) attachments(ctx context.Context, f reportdto.Filter) *gorm.DB {
	return r.db.WithContext(ctx).Table("attachments").
		Joins("JOIN events ON events.id = attachments.event_id").
		Scopes(eventScope(f))
}

func (r *reportRepository) CountAttachments(ctx context.Context, f reportdto.Filter) (int64, error) {
	var n int64
	err := r.attachments(ctx, f).Count(&n).Error
	return n, err
}

func (r *reportRepository) MimeSummary(ctx context.Context, f reportdto.Filter) ([]reportdto.MimeCount, error) {
	rows := []reportdto.MimeCount{}
	err := r.attachments(ctx, f).
		Select("attachments.mime_type AS mime_type, COUNT(*) AS count").
		Group("attachments.mime_type").
		Order("count DESC, mime_type").
		Scan(&rows).Error
	return rows, err
}

func (r *reportRepository) RecentAttachments(ctx context.Context, f reportdto.Filter, limit int) ([]reportdto.AttachmentItem, error) {
	rows := []reportdto.AttachmentItem{}
	err := r.attachments(ctx, f).
		Select("attachments.id AS id, events.provider AS provider, events.occurred_at AS occurred_at, " +
			"events.to_recipient AS to_recipient, attachments.filename AS filename, " +
			"attachments.mime_type AS mime_type, attachments.size_bytes AS size_bytes").
		Order("attachments.created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *reportRepository) SearchEvents(ctx context.Context, f reportdto.Filter, limit int) ([]eventdomain.Event, error) {
	query := r.events(ctx, f)
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		query = query.Where(
			"(LOWER(events.subject) LIKE ? OR LOWER(events.to_recipient) LIKE ? OR LOWER(events.preview) LIKE ?)",
			like, like, like,
		)
	}

	var events []eventdomain.Event
	err := query.
		Preload("Attachments").
		Preload("EventLinks.Link").
		Order("events.occurred_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

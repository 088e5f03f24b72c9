package repository

import (
	"context"

	eventdomain "github.com/kdrangari/msgtracker-api/internal/event/domain"
	reportdto "github.com/kdrangari/msgtracker-api/internal/report/dto"
)

// ReportRepository runs read-only aggregations over the event store.
type ReportRepository interface {
	CountEvents(ctx context.Context, f reportdto.Filter) (int64, error)
	CountByProvider(ctx context.Context, f reportdto.Filter) ([]reportdto.ProviderCount, error)
	CountByType(ctx context.Context, f reportdto.Filter) ([]reportdto.TypeCount, error)
	TopLinks(ctx context.Context, f reportdto.Filter, limit int) ([]reportdto.LinkCount, error)
	TopDomains(ctx context.Context, f reportdto.Filter, limit int) ([]reportdto.DomainCount, error)
	CountAttachments(ctx context.Context, f reportdto.Filter) (int64, error)
	MimeSummary(ctx context.Context, f reportdto.Filter) ([]reportdto.MimeCount, error)
	RecentAttachments(ctx context.Context, f reportdto.Filter, limit int) ([]reportdto.AttachmentItem, error)
	// SearchEvents returns the latest events, with links and attachments loaded.
	SearchEvents(ctx context.Context, f reportdto.Filter, limit int) ([]eventdomain.Event, error)
}

package usecase

import (
	"context"

	reportdto "github.com/kdrangari/msgtracker-api/internal/report/dto"
)

type ReportUsecase interface {
	Overview(ctx context.Context, f reportdto.Filter) (*reportdto.OverviewResponse, error)
	Links(ctx context.Context, f reportdto.Filter) (*reportdto.LinksResponse, error)
	Attachments(ctx context.Context, f reportdto.Filter) (*reportdto.AttachmentsResponse, error)
	Events(ctx context.Context, f reportdto.Filter) (*reportdto.EventsResponse, error)
}

package usecase

import (
	"context"

	reportdto "github.com/kdrangari/msgtracker-api/internal/report/dto"
	"github.com/kdrangari/msgtracker-api/internal/report/repository"
)

const (
	topLinksLimit    = 200
	topDomainsLimit  = 100
	attachmentsLimit = 500
	eventsLimit      = 200
)

type reportUsecase struct {
	reportRepo repository.ReportRepository
}

func NewReportUsecase(reportRepo repository.ReportRepository) ReportUsecase {
	return &reportUsecase{reportRepo: reportRepo}
}

func (u *reportUsecase) Overview(ctx context.Context, f reportdto.Filter) (*reportdto.OverviewResponse, error) {
	total, err := u.reportRepo.CountEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	byProvider, err := u.reportRepo.CountByProvider(ctx, f)
	if err != nil {
		return nil, err
	}
	byType, err := u.reportRepo.CountByType(ctx, f)
	if err != nil {
		return nil, err
	}

	return &reportdto.OverviewResponse{
		Range:       reportdto.RangeOf(f),
		TotalEvents: total,
		ByProvider:  byProvider,
		ByType:      byType,
	}, nil
}

func (u *reportUsecase) Links(ctx context.Context, f reportdto.Filter) (*reportdto.LinksResponse, error) {
	links, err := u.reportRepo.TopLinks(ctx, f, topLinksLimit)
	if err != nil {
		return nil, err
	}
	domains, err := u.reportRepo.TopDomains(ctx, f, topDomainsLimit)
	if err != nil {
		return nil, err
	}

	return &reportdto.LinksResponse{
		Range:      reportdto.RangeOf(f),
		TopLinks:   links,
		TopDomains: domains,
	}, nil
}

func (u *reportUsecase) Attachments(ctx context.Context, f reportdto.Filter) (*reportdto.AttachmentsResponse, error) {
	total, err := u.reportRepo.CountAttachments(ctx, f)
	if err != nil {
		return nil, err
	}
	summary, err := u.reportRepo.MimeSummary(ctx, f)
	if err != nil {
		return nil, err
	}
	items, err := u.reportRepo.RecentAttachments(ctx, f, attachmentsLimit)
	if err != nil {
		return nil, err
	}

	return &reportdto.AttachmentsResponse{
		Range:            reportdto.RangeOf(f),
		TotalAttachments: total,
		MimeSummary:      summary,
		Items:            items,
	}, nil
}

func (u *reportUsecase) Events(ctx context.Context, f reportdto.Filter) (*reportdto.EventsResponse, error) {
	events, err := u.reportRepo.SearchEvents(ctx, f, eventsLimit)
	if err != nil {
		return nil, err
	}

	items := make([]reportdto.EventItem, 0, len(events))
	for _, e := range events {
		item := reportdto.EventItem{
			ID:          e.ID,
			Provider:    e.Provider,
			EventType:   string(e.EventType),
			ExternalID:  e.ExternalID,
			OccurredAt:  e.OccurredAt,
			To:          e.ToRecipient,
			Subject:     e.Subject,
			Preview:     e.Preview,
			Links:       []string{},
			Attachments: []reportdto.AttachmentSummary{},
		}
		for _, el := range e.EventLinks {
			if el.Link != nil {
				item.Links = append(item.Links, el.Link.URL)
			}
		}
		for _, a := range e.Attachments {
			item.Attachments = append(item.Attachments, reportdto.AttachmentSummary{
				Filename:  a.Filename,
				MimeType:  a.MimeType,
				SizeBytes: a.SizeBytes,
			})
		}
		items = append(items, item)
	}

	return &reportdto.EventsResponse{Range: reportdto.RangeOf(f), Items: items}, nil
}

package usecase

import (
	"context"

	"github.com/kdrangari/msgtracker-api/internal/event/domain"
)

// IngestUsecase writes provider-neutral messages into the event graph.
type IngestUsecase interface {
	// IngestMessage upserts a pulled message by identity, so it can be replayed any number of times.
	IngestMessage(ctx context.Context, msg *domain.OutboundMessage) (*domain.IngestResult, error)
	// RecordSent stores a message sent through the API. Existing rows are never updated.
	RecordSent(ctx context.Context, msg *domain.OutboundMessage) (*domain.IngestResult, error)
	// CorrelateStatus attaches a status update to its earlier wa_sent event.
	// It returns a nil result when there is nothing to attach it to.
	CorrelateStatus(ctx context.Context, status domain.StatusUpdate) (*domain.IngestResult, error)
}

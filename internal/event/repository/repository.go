package repository

import (
	"context"

	"github.com/kdrangari/msgtracker-api/internal/event/domain"
)

// EventRepository is the write side of the event store. Every write is keyed by
// a natural identity so concurrent or repeated writers converge.
type EventRepository interface {
	// UpsertEvent inserts or refreshes the event identified by (provider, external id).
	UpsertEvent(ctx context.Context, event *domain.Event) (*domain.Event, error)
	// CreateEventIfAbsent inserts the event unless its identity already exists.
	// created is false when the stored row was returned instead.
	CreateEventIfAbsent(ctx context.Context, event *domain.Event) (stored *domain.Event, created bool, err error)
	FindEventByExternalID(ctx context.Context, provider string, eventType domain.EventType, externalID string) (*domain.Event, error)

	// UpsertLink stores the link under its normalized URL, keeping the last-seen original form.
	UpsertLink(ctx context.Context, link *domain.Link) (*domain.Link, error)
	UpsertEventLink(ctx context.Context, eventID, linkID string) error
	CreateAttachment(ctx context.Context, attachment *domain.Attachment) error
}

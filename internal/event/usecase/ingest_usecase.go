package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/kdrangari/msgtracker-api/internal/event/domain"
	"github.com/kdrangari/msgtracker-api/internal/event/repository"
	integrationdomain "github.com/kdrangari/msgtracker-api/internal/integration/domain"
	"github.com/kdrangari/msgtracker-api/pkg/eventbus"
	"github.com/kdrangari/msgtracker-api/pkg/links"
	"github.com/kdrangari/msgtracker-api/pkg/metrics"
	"github.com/kdrangari/msgtracker-api/pkg/utils/text"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PreviewLimit is the longest preview stored on an event, in runes.
const PreviewLimit = 240

type ingestUsecase struct {
	eventRepo repository.EventRepository
	metrics   metrics.Recorder
	publisher eventbus.Publisher
}

func NewIngestUsecase(eventRepo repository.EventRepository, recorder metrics.Recorder, publisher eventbus.Publisher) IngestUsecase {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	if publisher == nil {
		publisher = eventbus.NewNoopPublisher()
	}
	return &ingestUsecase{
		eventRepo: eventRepo,
		metrics:   recorder,
		publisher: publisher,
	}
}

func (u *ingestUsecase) IngestMessage(ctx context.Context, msg *domain.OutboundMessage) (*domain.IngestResult, error) {
	event, err := toEvent(msg)
	if err != nil {
		return nil, err
	}
	freshID := event.ID

	stored, err := u.eventRepo.UpsertEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	result := &domain.IngestResult{Event: stored, Created: stored.ID == freshID}
	if err := u.recordLinks(ctx, stored, msg.LinkText, result); err != nil {
		return nil, err
	}
	u.recordAttachments(ctx, stored, msg.Attachments, result)
	u.emit(stored)

	return result, nil
}

func (u *ingestUsecase) RecordSent(ctx context.Context, msg *domain.OutboundMessage) (*domain.IngestResult, error) {
	event, err := toEvent(msg)
	if err != nil {
		return nil, err
	}

	stored, created, err := u.eventRepo.CreateEventIfAbsent(ctx, event)
	if err != nil {
		return nil, err
	}

	result := &domain.IngestResult{Event: stored, Created: created}
	if err := u.recordLinks(ctx, stored, msg.LinkText, result); err != nil {
		return nil, err
	}
	if created {
		u.recordAttachments(ctx, stored, msg.Attachments, result)
		u.emit(stored)
	}

	return result, nil
}

func (u *ingestUsecase) CorrelateStatus(ctx context.Context, status domain.StatusUpdate) (*domain.IngestResult, error) {
	if status.MessageID == "" || status.Status == "" {
		u.metrics.RecordStatusDropped("malformed")
		return nil, nil
	}

	sent, err := u.eventRepo.FindEventByExternalID(ctx, integrationdomain.ProviderWhatsApp, domain.EventTypeWASent, status.MessageID)
	if err != nil {
		return nil, fmt.Errorf("find sent event %s: %w", status.MessageID, err)
	}
	if sent == nil {
		log.Printf("[Ingest] No wa_sent event for message %s, dropping %q status", status.MessageID, status.Status)
		u.metrics.RecordStatusDropped("uncorrelated")
		return nil, nil
	}

	recipient := status.RecipientID
	if recipient == "" && sent.ToRecipient != nil {
		recipient = *sent.ToRecipient
	}
	occurredAt := status.Timestamp
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	event, err := toEvent(&domain.OutboundMessage{
		UserID:     sent.UserID,
		Provider:   integrationdomain.ProviderWhatsApp,
		EventType:  domain.EventTypeWAStatus,
		ExternalID: status.ExternalID(),
		OccurredAt: occurredAt,
		Recipient:  recipient,
		Preview:    status.Status,
		RawRef:     status.Raw,
	})
	if err != nil {
		return nil, err
	}

	stored, created, err := u.eventRepo.CreateEventIfAbsent(ctx, event)
	if err != nil {
		return nil, err
	}
	if created {
		u.emit(stored)
	}
	return &domain.IngestResult{Event: stored, Created: created}, nil
}

// recordLinks upserts every link found in texts. These writes are fatal: a
// failure leaves the unit of work incomplete so it is retried as a whole.
func (u *ingestUsecase) recordLinks(ctx context.Context, event *domain.Event, texts []string, result *domain.IngestResult) error {
	seen := make(map[string]struct{})
	for _, t := range texts {
		for _, raw := range links.Extract(t) {
			normalized, err := links.Normalize(raw)
			if err != nil {
				log.Printf("[Ingest] Skipping unparsable link %q on event %s", raw, event.ID)
				continue
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}

			link, err := u.eventRepo.UpsertLink(ctx, &domain.Link{
				URL:           raw,
				NormalizedURL: normalized,
				Domain:        links.Domain(normalized),
			})
			if err != nil {
				return err
			}
			if err := u.eventRepo.UpsertEventLink(ctx, event.ID, link.ID); err != nil {
				return fmt.Errorf("link event %s to %s: %w", event.ID, link.ID, err)
			}
			result.LinksRecorded++
		}
	}
	return nil
}

// recordAttachments is a relaxed write: each failure is logged and counted, never returned.
func (u *ingestUsecase) recordAttachments(ctx context.Context, event *domain.Event, attachments []domain.AttachmentMeta, result *domain.IngestResult) {
	for _, a := range attachments {
		row := &domain.Attachment{
			EventID:   event.ID,
			Filename:  a.Filename,
			MimeType:  a.MimeType,
			SizeBytes: a.SizeBytes,
		}
		if row.MimeType == "" {
			row.MimeType = "application/octet-stream"
		}
		if a.ExternalAttachmentID != "" {
			id := a.ExternalAttachmentID
			row.ExternalAttachmentID = &id
		}

		if err := u.eventRepo.CreateAttachment(ctx, row); err != nil {
			log.Printf("[Ingest] Failed to record attachment %q on event %s: %v", a.Filename, event.ID, err)
			u.metrics.RecordAttachmentWriteFailure(event.Provider)
			result.AttachmentsFailed++
			continue
		}
		result.AttachmentsWritten++
	}
}

func (u *ingestUsecase) emit(event *domain.Event) {
	u.metrics.RecordEventIngested(event.Provider, string(event.EventType))

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[NATS] Failed to encode event %s: %v", event.ID, err)
		return
	}
	subject := eventbus.Subject(event.Provider, string(event.EventType))
	if err := u.publisher.Publish(subject, payload, event.Provider+":"+event.ExternalID); err != nil {
		log.Printf("[NATS] Failed to publish event %s: %v", event.ID, err)
	}
}

func toEvent(msg *domain.OutboundMessage) (*domain.Event, error) {
	if msg.ExternalID == "" {
		return nil, fmt.Errorf("message from %s has no external id", msg.Provider)
	}

	event := &domain.Event{
		UserID:      msg.UserID,
		Provider:    msg.Provider,
		EventType:   msg.EventType,
		ExternalID:  msg.ExternalID,
		OccurredAt:  msg.OccurredAt,
		ToRecipient: optional(msg.Recipient),
		Subject:     optional(msg.Subject),
		Preview:     optional(text.Truncate(msg.Preview, PreviewLimit)),
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if msg.RawRef != nil {
		raw, err := json.Marshal(msg.RawRef)
		if err != nil {
			return nil, fmt.Errorf("encode raw payload for %s: %w", msg.ExternalID, err)
		}
		event.RawRef = datatypes.JSON(raw)
	}

	// Assigned here so IngestMessage can tell an insert from an update.
	event.ID = uuid.New().String()
	return event, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

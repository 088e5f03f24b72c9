package usecase

import (
	"context"
	"crypto/subtle"
	"log"
	"time"

	eventdomain "github.com/kdrangari/msgtracker-api/internal/event/domain"
	eventusecase "github.com/kdrangari/msgtracker-api/internal/event/usecase"
	integrationdomain "github.com/kdrangari/msgtracker-api/internal/integration/domain"
	"github.com/kdrangari/msgtracker-api/internal/integration/repository"
	wadto "github.com/kdrangari/msgtracker-api/internal/whatsapp/dto"
	"github.com/kdrangari/msgtracker-api/pkg/whatsapp"
)

const (
	documentMimeType = "application/octet-stream"
	subscribeMode    = "subscribe"
)

type whatsAppUsecase struct {
	sender          Sender
	integrationRepo repository.IntegrationRepository
	ingest          eventusecase.IngestUsecase
	verifyToken     string
}

func NewWhatsAppUsecase(sender Sender, integrationRepo repository.IntegrationRepository, ingest eventusecase.IngestUsecase, verifyToken string) WhatsAppUsecase {
	return &whatsAppUsecase{
		sender:          sender,
		integrationRepo: integrationRepo,
		ingest:          ingest,
		verifyToken:     verifyToken,
	}
}

func (u *whatsAppUsecase) EnsureConnected(ctx context.Context, userID string) (*integrationdomain.Integration, error) {
	if err := u.sender.Configured(); err != nil {
		return nil, err
	}
	phoneNumberID := u.sender.PhoneNumberID()
	return u.integrationRepo.Upsert(ctx, userID, integrationdomain.ProviderWhatsApp, integrationdomain.StatusConnected, &phoneNumberID)
}

func (u *whatsAppUsecase) GetStatus(ctx context.Context, userID string) (*wadto.StatusResponse, error) {
	integration, err := u.integrationRepo.FindByUserAndProvider(ctx, userID, integrationdomain.ProviderWhatsApp)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		return &wadto.StatusResponse{}, nil
	}
	return &wadto.StatusResponse{
		Connected:         integration.Connected(),
		ExternalAccountID: integration.ExternalAccountID,
	}, nil
}

func (u *whatsAppUsecase) SendText(ctx context.Context, userID string, req *wadto.SendTextRequest) (*wadto.SendResponse, error) {
	if _, err := u.EnsureConnected(ctx, userID); err != nil {
		return nil, err
	}

	res, err := u.sender.SendText(ctx, req.To, req.Text)
	if err != nil {
		log.Printf("[WhatsApp] Text send to %s failed: %v", req.To, err)
		return nil, err
	}

	return u.recordSent(ctx, res, &eventdomain.OutboundMessage{
		UserID:    userID,
		Recipient: req.To,
		Preview:   req.Text,
		LinkText:  []string{req.Text},
	})
}

func (u *whatsAppUsecase) SendDocument(ctx context.Context, userID string, req *wadto.SendDocumentRequest) (*wadto.SendResponse, error) {
	if _, err := u.EnsureConnected(ctx, userID); err != nil {
		return nil, err
	}

	res, err := u.sender.SendDocument(ctx, req.To, req.DocumentURL, req.Filename, req.Caption)
	if err != nil {
		log.Printf("[WhatsApp] Document send to %s failed: %v", req.To, err)
		return nil, err
	}

	preview := req.Filename
	if req.Caption != "" {
		preview += " – " + req.Caption
	}

	return u.recordSent(ctx, res, &eventdomain.OutboundMessage{
		UserID:    userID,
		Recipient: req.To,
		Preview:   preview,
		LinkText:  []string{req.Caption, req.DocumentURL},
		Attachments: []eventdomain.AttachmentMeta{{
			Filename:             req.Filename,
			MimeType:             documentMimeType,
			ExternalAttachmentID: req.DocumentURL,
		}},
	})
}

// recordSent stores the wa_sent event for a send the provider accepted.
func (u *whatsAppUsecase) recordSent(ctx context.Context, res *whatsapp.SendResult, msg *eventdomain.OutboundMessage) (*wadto.SendResponse, error) {
	msg.Provider = integrationdomain.ProviderWhatsApp
	msg.EventType = eventdomain.EventTypeWASent
	msg.ExternalID = res.MessageID
	msg.OccurredAt = time.Now().UTC()
	msg.RawRef = res.Raw

	result, err := u.ingest.RecordSent(ctx, msg)
	if err != nil {
		log.Printf("[WhatsApp] Message %s was sent but could not be recorded: %v", res.MessageID, err)
		return nil, err
	}

	return &wadto.SendResponse{
		OK:        true,
		MessageID: res.MessageID,
		EventID:   result.Event.ID,
	}, nil
}

func (u *whatsAppUsecase) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode != subscribeMode || token == "" || u.verifyToken == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(u.verifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

func (u *whatsAppUsecase) HandleWebhook(ctx context.Context, payload *whatsapp.WebhookPayload) *wadto.WebhookResult {
	result := &wadto.WebhookResult{}
	if payload == nil {
		return result
	}

	for _, st := range payload.Statuses() {
		result.Statuses++

		ingested, err := u.ingest.CorrelateStatus(ctx, eventdomain.StatusUpdate{
			MessageID:   st.ID,
			Status:      st.Status,
			RecipientID: st.RecipientID,
			Timestamp:   st.Time(),
			Raw:         st.Raw,
		})
		switch {
		case err != nil:
			log.Printf("[WhatsApp] Failed to record %q status for %s: %v", st.Status, st.ID, err)
			result.Failed++
		case ingested == nil:
			result.Dropped++
		default:
			result.Recorded++
		}
	}

	if result.Statuses > 0 {
		log.Printf("[WhatsApp] Webhook processed: %d statuses, %d recorded, %d dropped, %d failed",
			result.Statuses, result.Recorded, result.Dropped, result.Failed)
	}
	return result
}

package usecase

import (
	"context"

	integrationdomain "github.com/kdrangari/msgtracker-api/internal/integration/domain"
	wadto "github.com/kdrangari/msgtracker-api/internal/whatsapp/dto"
	"github.com/kdrangari/msgtracker-api/pkg/whatsapp"
)

// Sender is the part of whatsapp.Client the usecase needs.
type Sender interface {
	PhoneNumberID() string
	Configured() error
	SendText(ctx context.Context, to, text string) (*whatsapp.SendResult, error)
	SendDocument(ctx context.Context, to, documentURL, filename, caption string) (*whatsapp.SendResult, error)
}

type WhatsAppUsecase interface {
	// EnsureConnected records the user's WhatsApp integration against the
	// configured business number.
	EnsureConnected(ctx context.Context, userID string) (*integrationdomain.Integration, error)
	GetStatus(ctx context.Context, userID string) (*wadto.StatusResponse, error)
	SendText(ctx context.Context, userID string, req *wadto.SendTextRequest) (*wadto.SendResponse, error)
	SendDocument(ctx context.Context, userID string, req *wadto.SendDocumentRequest) (*wadto.SendResponse, error)

	// VerifyWebhook answers the subscription handshake. ok is false when the
	// token does not match.
	VerifyWebhook(mode, token, challenge string) (string, bool)
	// HandleWebhook correlates every status in the payload. Per-status
	// failures are logged and counted, never returned.
	HandleWebhook(ctx context.Context, payload *whatsapp.WebhookPayload) *wadto.WebhookResult
}

package usecase

import (
	"context"
	"time"

	gmaildto "github.com/kdrangari/msgtracker-api/internal/gmail/dto"
	"github.com/kdrangari/msgtracker-api/pkg/gmail"

	"golang.org/x/oauth2"
)

// MailboxProvider is the part of gmail.Service the sync driver needs.
type MailboxProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Open(ctx context.Context, creds gmail.Credentials, onTokenRefresh gmail.TokenUpdateFunc) (gmail.Mailbox, error)
}

type GmailUsecase interface {
	BuildAuthURL(userID string) (string, error)
	// HandleOAuthCallback finishes the connect flow and starts a watch when possible.
	HandleOAuthCallback(ctx context.Context, code, state string) (*gmaildto.ConnectResponse, error)
	EnsureWatch(ctx context.Context, userID string) (*gmaildto.WatchResponse, error)
	RenewWatches(ctx context.Context, within time.Duration) (int, error)
	GetStatus(ctx context.Context, userID string) (*gmaildto.StatusResponse, error)

	// HandlePushEnvelope decodes a Pub/Sub push body and runs HandleNotification.
	HandlePushEnvelope(ctx context.Context, envelope *gmaildto.PushEnvelope) (*gmaildto.SyncResult, error)
	// HandleNotificationData runs HandleNotification on raw notification JSON.
	HandleNotificationData(ctx context.Context, data []byte) (*gmaildto.SyncResult, error)
	// HandleNotification pulls everything sent between the stored cursor and
	// the notification's history id, then advances the cursor.
	HandleNotification(ctx context.Context, n gmaildto.Notification) (*gmaildto.SyncResult, error)
}

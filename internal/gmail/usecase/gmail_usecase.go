package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	eventdomain "github.com/kdrangari/msgtracker-api/internal/event/domain"
	eventusecase "github.com/kdrangari/msgtracker-api/internal/event/usecase"
	gmaildto "github.com/kdrangari/msgtracker-api/internal/gmail/dto"
	"github.com/kdrangari/msgtracker-api/internal/integration/domain"
	"github.com/kdrangari/msgtracker-api/internal/integration/repository"
	"github.com/kdrangari/msgtracker-api/pkg/apperror"
	"github.com/kdrangari/msgtracker-api/pkg/gmail"
	"github.com/kdrangari/msgtracker-api/pkg/metrics"

	"golang.org/x/oauth2"
)

const defaultMimeType = "application/octet-stream"

type gmailUsecase struct {
	provider        MailboxProvider
	integrationRepo repository.IntegrationRepository
	ingest          eventusecase.IngestUsecase
	state           *StateSigner
	recorder        metrics.Recorder
	topicName       string
}

func NewGmailUsecase(
	provider MailboxProvider,
	integrationRepo repository.IntegrationRepository,
	ingest eventusecase.IngestUsecase,
	state *StateSigner,
	recorder metrics.Recorder,
	topicName string,
) GmailUsecase {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &gmailUsecase{
		provider:        provider,
		integrationRepo: integrationRepo,
		ingest:          ingest,
		state:           state,
		recorder:        recorder,
		topicName:       topicName,
	}
}

func (u *gmailUsecase) BuildAuthURL(userID string) (string, error) {
	state, err := u.state.Sign(userID)
	if err != nil {
		return "", err
	}
	return u.provider.AuthURL(state), nil
}

func (u *gmailUsecase) HandleOAuthCallback(ctx context.Context, code, state string) (*gmaildto.ConnectResponse, error) {
	if code == "" || state == "" {
		return nil, fmt.Errorf("%w: code and state are required", apperror.ErrInvalidInput)
	}

	userID, err := u.state.Verify(state)
	if err != nil {
		return nil, err
	}

	token, err := u.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	mb, err := u.provider.Open(ctx, credentialsFromToken(token), nil)
	if err != nil {
		return nil, err
	}
	profile, err := mb.Profile(ctx)
	if err != nil {
		return nil, err
	}

	address := strings.ToLower(profile.EmailAddress)
	integration, err := u.integrationRepo.Upsert(ctx, userID, domain.ProviderGmail, domain.StatusConnected, &address)
	if err != nil {
		return nil, err
	}

	grant := domain.TokenGrant{
		RefreshToken: token.RefreshToken,
		AccessToken:  token.AccessToken,
		Scopes:       gmail.GrantedScopes(token),
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		grant.Expiry = &expiry
	}
	if _, err := u.integrationRepo.UpsertOAuthToken(ctx, integration.ID, grant); err != nil {
		if errors.Is(err, repository.ErrMissingRefreshToken) {
			return nil, fmt.Errorf("%w: Google returned no refresh token, reconnect with consent", apperror.ErrAuthentication)
		}
		return nil, err
	}

	log.Printf("[Gmail] Connected %s for user %s", address, userID)

	resp := &gmaildto.ConnectResponse{Connected: true, GmailAddress: address}
	if _, err := u.EnsureWatch(ctx, userID); err != nil {
		log.Printf("[WARN] [Gmail] Could not start watch for %s: %v", address, err)
	} else {
		resp.Watching = true
	}
	return resp, nil
}

func (u *gmailUsecase) EnsureWatch(ctx context.Context, userID string) (*gmaildto.WatchResponse, error) {
	if u.topicName == "" {
		return nil, fmt.Errorf("%w: GMAIL_PUBSUB_TOPIC is not set", apperror.ErrConfiguration)
	}

	integration, err := u.integrationRepo.FindByUserAndProvider(ctx, userID, domain.ProviderGmail)
	if err != nil {
		return nil, err
	}
	if !integration.Connected() {
		return nil, fmt.Errorf("%w: gmail", apperror.ErrNotConnected)
	}

	mb, err := u.openMailbox(ctx, integration)
	if err != nil {
		return nil, err
	}

	labels := []string{gmail.LabelSent}
	watch, err := mb.Watch(ctx, u.topicName, labels)
	if err != nil {
		return nil, err
	}

	state := domain.SyncState{
		HistoryID:   watch.HistoryID,
		WatchLabels: strings.Join(labels, ","),
	}
	if !watch.Expiration.IsZero() {
		expiration := watch.Expiration
		state.WatchExpiration = &expiration
	}
	if err := u.integrationRepo.SaveWatch(ctx, integration.ID, state); err != nil {
		return nil, err
	}

	return &gmaildto.WatchResponse{
		HistoryID:  watch.HistoryID,
		Expiration: watch.Expiration,
		Labels:     labels,
	}, nil
}

// RenewWatches re-registers every connected mailbox whose watch lapses
// within the window. Failures are logged and the rest still run.
func (u *gmailUsecase) RenewWatches(ctx context.Context, within time.Duration) (int, error) {
	if u.topicName == "" {
		return 0, nil
	}

	due, err := u.integrationRepo.ListWatchesExpiringBefore(ctx, domain.ProviderGmail, time.Now().Add(within))
	if err != nil {
		return 0, err
	}

	renewed := 0
	for _, integration := range due {
		if ctx.Err() != nil {
			return renewed, ctx.Err()
		}
		if _, err := u.EnsureWatch(ctx, integration.UserID); err != nil {
			log.Printf("[WARN] [Gmail] Watch renewal failed for integration %s: %v", integration.ID, err)
			u.recorder.RecordSyncFailure(domain.ProviderGmail, "watch")
			continue
		}
		renewed++
	}
	return renewed, nil
}

func (u *gmailUsecase) GetStatus(ctx context.Context, userID string) (*gmaildto.StatusResponse, error) {
	integration, err := u.integrationRepo.FindByUserAndProvider(ctx, userID, domain.ProviderGmail)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		return &gmaildto.StatusResponse{}, nil
	}

	token, err := u.integrationRepo.FindOAuthToken(ctx, integration.ID)
	if err != nil {
		return nil, err
	}

	sync := integration.Sync
	return &gmaildto.StatusResponse{
		Connected:       integration.Connected(),
		GmailAddress:    integration.ExternalAccountID,
		HasRefreshToken: token != nil && token.RefreshToken != "",
		Sync:            &sync,
	}, nil
}

func (u *gmailUsecase) HandlePushEnvelope(ctx context.Context, envelope *gmaildto.PushEnvelope) (*gmaildto.SyncResult, error) {
	if envelope == nil || envelope.Message.Data == "" {
		return nil, fmt.Errorf("%w: push envelope has no data", apperror.ErrInvalidInput)
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		if data, err = base64.URLEncoding.DecodeString(envelope.Message.Data); err != nil {
			return nil, fmt.Errorf("%w: push data is not base64: %v", apperror.ErrInvalidInput, err)
		}
	}
	return u.HandleNotificationData(ctx, data)
}

func (u *gmailUsecase) HandleNotificationData(ctx context.Context, data []byte) (*gmaildto.SyncResult, error) {
	var n gmaildto.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: decode notification: %v", apperror.ErrInvalidInput, err)
	}
	return u.HandleNotification(ctx, n)
}

func (u *gmailUsecase) HandleNotification(ctx context.Context, n gmaildto.Notification) (*gmaildto.SyncResult, error) {
	newCursor := uint64(n.HistoryID)
	address := strings.ToLower(strings.TrimSpace(n.EmailAddress))
	if address == "" || newCursor == 0 {
		return nil, fmt.Errorf("%w: notification needs emailAddress and historyId", apperror.ErrInvalidInput)
	}

	integration, err := u.integrationRepo.FindConnectedByAccount(ctx, domain.ProviderGmail, address)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		log.Printf("[WARN] [Gmail] No connected integration for %s, dropping notification %d", address, newCursor)
		return &gmaildto.SyncResult{}, nil
	}

	result := &gmaildto.SyncResult{}

	if !integration.Sync.HasCursor() {
		if _, err := u.integrationRepo.AdvanceCursor(ctx, integration.ID, newCursor); err != nil {
			return nil, err
		}
		log.Printf("[Gmail] First notification for %s, cursor set to %d", address, newCursor)
		result.CursorAdvancedTo = newCursor
		return result, nil
	}

	start := integration.Sync.HistoryID
	if newCursor <= start {
		log.Printf("[Gmail] Skipping notification for %s (historyId %d <= cursor %d)", address, newCursor, start)
		return result, nil
	}

	err = u.syncHistory(ctx, integration, start, result)
	if errors.Is(err, gmail.ErrHistoryTooOld) {
		log.Printf("[WARN] [Gmail] History %d too old for %s, resetting cursor to %d; messages in between are skipped", start, address, newCursor)
		u.recorder.RecordCursorReset(domain.ProviderGmail)
		result.CursorReset = true
	} else if err != nil {
		return nil, err
	}

	advanced, err := u.integrationRepo.AdvanceCursor(ctx, integration.ID, newCursor)
	if err != nil {
		u.recorder.RecordSyncFailure(domain.ProviderGmail, "cursor")
		return nil, err
	}
	if advanced {
		result.CursorAdvancedTo = newCursor
	}

	log.Printf("[Gmail] Synced %s: %d messages seen, %d ingested, cursor %d -> %d", address, result.MessagesSeen, result.EventsIngested, start, newCursor)
	return result, nil
}

func (u *gmailUsecase) syncHistory(ctx context.Context, integration *domain.Integration, start uint64, result *gmaildto.SyncResult) error {
	mb, err := u.openMailbox(ctx, integration)
	if err != nil {
		u.recorder.RecordSyncFailure(domain.ProviderGmail, "auth")
		return err
	}

	ids, err := collectMessageIDs(ctx, mb, start)
	if err != nil {
		if !errors.Is(err, gmail.ErrHistoryTooOld) {
			u.recorder.RecordSyncFailure(domain.ProviderGmail, "history")
		}
		return err
	}
	result.MessagesSeen = len(ids)

	for _, id := range ids {
		msg, err := mb.GetMessage(ctx, id)
		if errors.Is(err, gmail.ErrMessageNotFound) {
			// Deleted since it was listed, so it no longer carries SENT either.
			log.Printf("[Gmail] Message %s no longer exists, skipping", id)
			result.SkippedNotSent++
			continue
		}
		if err != nil {
			u.recorder.RecordSyncFailure(domain.ProviderGmail, "message")
			return err
		}
		if !msg.HasLabel(gmail.LabelSent) {
			result.SkippedNotSent++
			continue
		}

		if _, err := u.ingest.IngestMessage(ctx, toOutboundMessage(integration.UserID, msg)); err != nil {
			u.recorder.RecordSyncFailure(domain.ProviderGmail, "ingest")
			return fmt.Errorf("ingest message %s: %w", id, err)
		}
		result.EventsIngested++
	}
	return nil
}

// collectMessageIDs walks every history page after start and returns the
// distinct added message ids in first-seen order.
func collectMessageIDs(ctx context.Context, mb gmail.Mailbox, start uint64) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	pageToken := ""
	for {
		page, err := mb.ListHistory(ctx, start, gmail.HistoryTypeMessageAdded, gmail.LabelSent, pageToken)
		if err != nil {
			return nil, err
		}
		for _, id := range page.MessageIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if page.NextPageToken == "" {
			return ids, nil
		}
		pageToken = page.NextPageToken
	}
}

func (u *gmailUsecase) openMailbox(ctx context.Context, integration *domain.Integration) (gmail.Mailbox, error) {
	token, err := u.integrationRepo.FindOAuthToken(ctx, integration.ID)
	if err != nil {
		return nil, err
	}
	if token == nil || token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: gmail has no stored refresh token", apperror.ErrNotConnected)
	}

	creds := gmail.Credentials{
		RefreshToken: token.RefreshToken,
		AccessToken:  token.AccessToken,
	}
	if token.Expiry != nil {
		creds.Expiry = *token.Expiry
	}

	integrationID := integration.ID
	onRefresh := func(t *oauth2.Token) error {
		return u.integrationRepo.RecordTokenRefresh(context.Background(), integrationID, t.AccessToken, t.RefreshToken, t.Expiry)
	}
	return u.provider.Open(ctx, creds, onRefresh)
}

func credentialsFromToken(token *oauth2.Token) gmail.Credentials {
	return gmail.Credentials{
		RefreshToken: token.RefreshToken,
		AccessToken:  token.AccessToken,
		Expiry:       token.Expiry,
	}
}

func toOutboundMessage(userID string, msg *gmail.SentMessage) *eventdomain.OutboundMessage {
	out := &eventdomain.OutboundMessage{
		UserID:     userID,
		Provider:   domain.ProviderGmail,
		EventType:  eventdomain.EventTypeEmailSent,
		ExternalID: msg.ID,
		OccurredAt: msg.OccurredAt(),
		Recipient:  msg.To,
		Subject:    msg.Subject,
		Preview:    msg.Snippet,
		LinkText:   []string{msg.Body()},
		RawRef: map[string]string{
			"id":           msg.ID,
			"threadId":     msg.ThreadID,
			"internalDate": internalDateString(msg.InternalDate),
		},
	}

	for _, att := range msg.Attachments() {
		meta := eventdomain.AttachmentMeta{
			Filename:             att.Filename,
			MimeType:             att.MimeType,
			ExternalAttachmentID: att.AttachmentID,
		}
		if meta.MimeType == "" {
			meta.MimeType = defaultMimeType
		}
		if att.Size > 0 {
			size := att.Size
			meta.SizeBytes = &size
		}
		out.Attachments = append(out.Attachments, meta)
	}
	return out
}

func internalDateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

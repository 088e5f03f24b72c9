package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	eventdomain "github.com/kdrangari/msgtracker-api/internal/event/domain"
	eventrepo "github.com/kdrangari/msgtracker-api/internal/event/repository"
	eventusecase "github.com/kdrangari/msgtracker-api/internal/event/usecase"
	gmaildto "github.com/kdrangari/msgtracker-api/internal/gmail/dto"
	"github.com/kdrangari/msgtracker-api/internal/integration/domain"
	"github.com/kdrangari/msgtracker-api/internal/integration/repository"
	"github.com/kdrangari/msgtracker-api/pkg/apperror"
	"github.com/kdrangari/msgtracker-api/pkg/gmail"
	"github.com/kdrangari/msgtracker-api/pkg/utils/crypto"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const testAddress = "me@example.com"

type fakeMailbox struct {
	mu         sync.Mutex
	pages      map[string]*gmail.HistoryPage
	messages   map[string]*gmail.SentMessage
	gone       map[string]bool
	historyErr error
	messageErr error
	listCalls  int
	getCalls   map[string]int
	watchCalls int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		pages:    map[string]*gmail.HistoryPage{},
		messages: map[string]*gmail.SentMessage{},
		gone:     map[string]bool{},
		getCalls: map[string]int{},
	}
}

func (m *fakeMailbox) Profile(ctx context.Context) (*gmail.Profile, error) {
	return &gmail.Profile{EmailAddress: "Me@Example.com", HistoryID: 10}, nil
}

func (m *fakeMailbox) Watch(ctx context.Context, topicName string, labelIDs []string) (*gmail.WatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchCalls++
	return &gmail.WatchResult{HistoryID: 100, Expiration: time.Now().Add(7 * 24 * time.Hour).UTC()}, nil
}

func (m *fakeMailbox) ListHistory(ctx context.Context, start uint64, historyType, labelID, pageToken string) (*gmail.HistoryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	if page, ok := m.pages[pageToken]; ok {
		return page, nil
	}
	return &gmail.HistoryPage{}, nil
}

func (m *fakeMailbox) GetMessage(ctx context.Context, id string) (*gmail.SentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls[id]++
	if m.gone[id] {
		return nil, fmt.Errorf("get message %s: %w", id, gmail.ErrMessageNotFound)
	}
	if m.messageErr != nil {
		return nil, m.messageErr
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s not found", apperror.ErrProvider, id)
	}
	return msg, nil
}

type fakeProvider struct {
	mailbox      *fakeMailbox
	token        *oauth2.Token
	lastCreds    gmail.Credentials
	lastCallback gmail.TokenUpdateFunc
}

func (p *fakeProvider) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "bad" {
		return nil, fmt.Errorf("%w: invalid_grant", apperror.ErrAuthentication)
	}
	return p.token, nil
}

func (p *fakeProvider) Open(ctx context.Context, creds gmail.Credentials, onTokenRefresh gmail.TokenUpdateFunc) (gmail.Mailbox, error) {
	p.lastCreds = creds
	p.lastCallback = onTokenRefresh
	return p.mailbox, nil
}

type harness struct {
	uc           GmailUsecase
	db           *gorm.DB
	integrations repository.IntegrationRepository
	provider     *fakeProvider
	mailbox      *fakeMailbox
}

func newHarness(t *testing.T, topic string) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:gmail-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, db.AutoMigrate(
		&domain.Integration{}, &domain.OAuthToken{},
		&eventdomain.Event{}, &eventdomain.Link{}, &eventdomain.EventLink{}, &eventdomain.Attachment{},
	))

	sealer, err := crypto.NewSealer("test-key")
	require.NoError(t, err)
	integrations := repository.NewIntegrationRepository(db, sealer)
	ingest := eventusecase.NewIngestUsecase(eventrepo.NewEventRepository(db), nil, nil)

	mb := newFakeMailbox()
	provider := &fakeProvider{
		mailbox: mb,
		token: &oauth2.Token{
			AccessToken:  "a1",
			RefreshToken: "r1",
			Expiry:       time.Now().Add(time.Hour),
		},
	}

	return &harness{
		uc:           NewGmailUsecase(provider, integrations, ingest, NewStateSigner("state-secret", time.Minute), nil, topic),
		db:           db,
		integrations: integrations,
		provider:     provider,
		mailbox:      mb,
	}
}

// connect stores a connected integration with a refresh token and an optional cursor.
func (h *harness) connect(t *testing.T, cursor uint64) *domain.Integration {
	t.Helper()
	ctx := context.Background()
	address := testAddress
	integration, err := h.integrations.Upsert(ctx, "u1", domain.ProviderGmail, domain.StatusConnected, &address)
	require.NoError(t, err)
	_, err = h.integrations.UpsertOAuthToken(ctx, integration.ID, domain.TokenGrant{RefreshToken: "r1", AccessToken: "a1"})
	require.NoError(t, err)
	if cursor > 0 {
		_, err = h.integrations.AdvanceCursor(ctx, integration.ID, cursor)
		require.NoError(t, err)
	}
	return integration
}

func (h *harness) cursor(t *testing.T, id string) uint64 {
	t.Helper()
	integration, err := h.integrations.FindByID(context.Background(), id)
	require.NoError(t, err)
	return integration.Sync.HistoryID
}

func (h *harness) countEvents(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&eventdomain.Event{}).Count(&n).Error)
	return n
}

func sentMessage(id, body string) *gmail.SentMessage {
	return &gmail.SentMessage{
		ID:           id,
		ThreadID:     "T-" + id,
		LabelIDs:     []string{gmail.LabelSent},
		Snippet:      "snippet " + id,
		InternalDate: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Subject:      "Subject " + id,
		To:           "bob@example.com",
		Root: gmail.Part{
			Kind:     gmail.PartContainer,
			MimeType: "multipart/mixed",
			Children: []gmail.Part{
				{Kind: gmail.PartText, MimeType: "text/plain", Text: body},
				{Kind: gmail.PartAttachment, Filename: "a.pdf", AttachmentID: "ATT-" + id, Size: 10},
			},
		},
	}
}

func notification(historyID uint64) gmaildto.Notification {
	return gmaildto.Notification{EmailAddress: testAddress, HistoryID: gmaildto.HistoryID(historyID)}
}

func TestHandleNotification_FirstNotificationSetsBaseline(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 0)

	result, err := h.uc.HandleNotification(context.Background(), notification(500))
	require.NoError(t, err)

	assert.Equal(t, uint64(500), result.CursorAdvancedTo)
	assert.Equal(t, uint64(500), h.cursor(t, integration.ID))
	assert.Zero(t, h.mailbox.listCalls, "no backfill on first notification")
	assert.Zero(t, h.countEvents(t))
}

func TestHandleNotification_DuplicateAcrossPagesFetchedOnce(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 100)

	h.mailbox.pages[""] = &gmail.HistoryPage{MessageIDs: []string{"M1"}, NextPageToken: "p2"}
	h.mailbox.pages["p2"] = &gmail.HistoryPage{MessageIDs: []string{"M1"}}
	h.mailbox.messages["M1"] = sentMessage("M1", "see https://example.com/a?b=2&a=1#frag")

	result, err := h.uc.HandleNotification(context.Background(), notification(200))
	require.NoError(t, err)

	assert.Equal(t, 2, h.mailbox.listCalls)
	assert.Equal(t, 1, h.mailbox.getCalls["M1"])
	assert.Equal(t, 1, result.MessagesSeen)
	assert.Equal(t, 1, result.EventsIngested)
	assert.Equal(t, int64(1), h.countEvents(t))
	assert.Equal(t, uint64(200), h.cursor(t, integration.ID))

	var event eventdomain.Event
	require.NoError(t, h.db.Preload("Attachments").First(&event, "external_id = ?", "M1").Error)
	assert.Equal(t, eventdomain.EventTypeEmailSent, event.EventType)
	assert.Equal(t, "u1", event.UserID)
	require.NotNil(t, event.Preview)
	assert.Equal(t, "snippet M1", *event.Preview)
	assert.JSONEq(t, `{"id":"M1","threadId":"T-M1","internalDate":"1714554000000"}`, string(event.RawRef))
	require.Len(t, event.Attachments, 1)
	assert.Equal(t, "application/octet-stream", event.Attachments[0].MimeType)

	var link eventdomain.Link
	require.NoError(t, h.db.First(&link).Error)
	assert.Equal(t, "https://example.com/a?a=1&b=2", link.NormalizedURL)
}

func TestHandleNotification_OutOfOrderNeverRollsBack(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 100)

	_, err := h.uc.HandleNotification(context.Background(), notification(300))
	require.NoError(t, err)
	assert.Equal(t, uint64(300), h.cursor(t, integration.ID))
	calls := h.mailbox.listCalls

	result, err := h.uc.HandleNotification(context.Background(), notification(150))
	require.NoError(t, err)

	assert.Zero(t, result.CursorAdvancedTo)
	assert.Equal(t, calls, h.mailbox.listCalls, "stale notification must not sync")
	assert.Equal(t, uint64(300), h.cursor(t, integration.ID))
}

func TestHandleNotification_ReprocessingIsIdempotent(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 100)

	h.mailbox.pages[""] = &gmail.HistoryPage{MessageIDs: []string{"M1", "M2"}}
	h.mailbox.messages["M1"] = sentMessage("M1", "https://a.com")
	h.mailbox.messages["M2"] = sentMessage("M2", "https://a.com/")

	_, err := h.uc.HandleNotification(context.Background(), notification(200))
	require.NoError(t, err)

	// Replaying the same range, as an overlapping delivery would.
	require.NoError(t, h.db.Model(&domain.Integration{}).Where("id = ?", integration.ID).Update("sync_history_id", 100).Error)
	_, err = h.uc.HandleNotification(context.Background(), notification(200))
	require.NoError(t, err)

	assert.Equal(t, int64(2), h.countEvents(t))
	var links, edges int64
	require.NoError(t, h.db.Model(&eventdomain.Link{}).Count(&links).Error)
	require.NoError(t, h.db.Model(&eventdomain.EventLink{}).Count(&edges).Error)
	assert.Equal(t, int64(1), links)
	assert.Equal(t, int64(2), edges)
}

func TestHandleNotification_SkipsMessagesWithoutSentLabel(t *testing.T) {
	h := newHarness(t, "")
	h.connect(t, 100)

	draft := sentMessage("M1", "")
	draft.LabelIDs = []string{"DRAFT"}
	h.mailbox.pages[""] = &gmail.HistoryPage{MessageIDs: []string{"M1"}}
	h.mailbox.messages["M1"] = draft

	result, err := h.uc.HandleNotification(context.Background(), notification(200))
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedNotSent)
	assert.Zero(t, h.countEvents(t))
}

func TestHandleNotification_HistoryTooOldResetsCursor(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 100)
	h.mailbox.historyErr = fmt.Errorf("list history: %w", gmail.ErrHistoryTooOld)

	result, err := h.uc.HandleNotification(context.Background(), notification(900))
	require.NoError(t, err)

	assert.True(t, result.CursorReset)
	assert.Equal(t, 1, h.mailbox.listCalls, "too-old history is not retried")
	assert.Equal(t, uint64(900), h.cursor(t, integration.ID))
}

func TestHandleNotification_FailureLeavesCursor(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 100)
	h.mailbox.pages[""] = &gmail.HistoryPage{MessageIDs: []string{"M1"}}
	h.mailbox.messageErr = fmt.Errorf("%w: backend error", apperror.ErrProvider)

	_, err := h.uc.HandleNotification(context.Background(), notification(200))
	assert.ErrorIs(t, err, apperror.ErrProvider)
	assert.Equal(t, uint64(100), h.cursor(t, integration.ID))
}

func TestHandleNotification_DeletedMessageIsSkipped(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 100)

	h.mailbox.pages[""] = &gmail.HistoryPage{MessageIDs: []string{"GONE", "M2"}}
	h.mailbox.gone["GONE"] = true
	h.mailbox.messages["M2"] = sentMessage("M2", "")

	result, err := h.uc.HandleNotification(context.Background(), notification(200))
	require.NoError(t, err)

	assert.Equal(t, 2, result.MessagesSeen)
	assert.Equal(t, 1, result.SkippedNotSent)
	assert.Equal(t, 1, result.EventsIngested)
	assert.Equal(t, int64(1), h.countEvents(t))
	assert.Equal(t, uint64(200), h.cursor(t, integration.ID))
}

func TestHandleNotification_UnknownAccountDropped(t *testing.T) {
	h := newHarness(t, "")

	result, err := h.uc.HandleNotification(context.Background(), gmaildto.Notification{EmailAddress: "nobody@example.com", HistoryID: 5})
	require.NoError(t, err)
	assert.Zero(t, result.CursorAdvancedTo)
}

func TestHandleNotification_InvalidInput(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.uc.HandleNotification(context.Background(), gmaildto.Notification{EmailAddress: testAddress})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestHandlePushEnvelope(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 0)

	env := &gmaildto.PushEnvelope{}
	env.Message.Data = base64.StdEncoding.EncodeToString([]byte(`{"emailAddress":"ME@example.com","historyId":"777"}`))

	_, err := h.uc.HandlePushEnvelope(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), h.cursor(t, integration.ID))

	_, err = h.uc.HandlePushEnvelope(context.Background(), &gmaildto.PushEnvelope{})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	bad := &gmaildto.PushEnvelope{}
	bad.Message.Data = "!!!"
	_, err = h.uc.HandlePushEnvelope(context.Background(), bad)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestHandleOAuthCallback_ConnectsAndWatches(t *testing.T) {
	h := newHarness(t, "projects/p/topics/gmail")
	ctx := context.Background()

	authURL, err := h.uc.BuildAuthURL("u1")
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")

	resp, err := h.uc.HandleOAuthCallback(ctx, "code-1", state)
	require.NoError(t, err)
	assert.True(t, resp.Connected)
	assert.True(t, resp.Watching)
	assert.Equal(t, testAddress, resp.GmailAddress)

	status, err := h.uc.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.Connected)
	require.NotNil(t, status.GmailAddress)
	assert.Equal(t, testAddress, *status.GmailAddress)
	assert.True(t, status.HasRefreshToken)
	assert.Equal(t, uint64(100), status.Sync.HistoryID)
	assert.Equal(t, []string{gmail.LabelSent}, status.Sync.Labels())
	assert.Equal(t, 1, h.mailbox.watchCalls)
}

func TestHandleOAuthCallback_WithoutTopicStillConnects(t *testing.T) {
	h := newHarness(t, "")
	state, err := h.uc.(*gmailUsecase).state.Sign("u1")
	require.NoError(t, err)

	resp, err := h.uc.HandleOAuthCallback(context.Background(), "code-1", state)
	require.NoError(t, err)
	assert.True(t, resp.Connected)
	assert.False(t, resp.Watching)

	_, err = h.uc.EnsureWatch(context.Background(), "u1")
	assert.ErrorIs(t, err, apperror.ErrConfiguration)
}

func TestHandleOAuthCallback_NoRefreshTokenOnFirstConnect(t *testing.T) {
	h := newHarness(t, "")
	h.provider.token = &oauth2.Token{AccessToken: "a1"}
	state, err := h.uc.(*gmailUsecase).state.Sign("u1")
	require.NoError(t, err)

	_, err = h.uc.HandleOAuthCallback(context.Background(), "code-1", state)
	assert.ErrorIs(t, err, apperror.ErrAuthentication)
}

func TestHandleOAuthCallback_ReconnectKeepsRefreshToken(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 0)
	h.provider.token = &oauth2.Token{AccessToken: "a2"}
	state, err := h.uc.(*gmailUsecase).state.Sign("u1")
	require.NoError(t, err)

	_, err = h.uc.HandleOAuthCallback(context.Background(), "code-2", state)
	require.NoError(t, err)

	token, err := h.integrations.FindOAuthToken(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", token.RefreshToken)
	assert.Equal(t, "a2", token.AccessToken)
}

func TestHandleOAuthCallback_RejectsBadState(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.uc.HandleOAuthCallback(context.Background(), "code-1", "not-a-jwt")
	assert.ErrorIs(t, err, apperror.ErrAuthentication)

	_, err = h.uc.HandleOAuthCallback(context.Background(), "", "")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestOpenMailbox_PersistsRefreshedToken(t *testing.T) {
	h := newHarness(t, "")
	integration := h.connect(t, 100)

	_, err := h.uc.HandleNotification(context.Background(), notification(200))
	require.NoError(t, err)
	assert.Equal(t, "r1", h.provider.lastCreds.RefreshToken)
	require.NotNil(t, h.provider.lastCallback)

	require.NoError(t, h.provider.lastCallback(&oauth2.Token{AccessToken: "a9", RefreshToken: "r1", Expiry: time.Now().Add(time.Hour)}))

	token, err := h.integrations.FindOAuthToken(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.Equal(t, "a9", token.AccessToken)
	assert.Equal(t, 2, token.TokenVersion)
}

func TestGetStatus_NotConnected(t *testing.T) {
	h := newHarness(t, "")

	status, err := h.uc.GetStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Nil(t, status.Sync)

	_, err = h.uc.EnsureWatch(context.Background(), "u1")
	assert.True(t, errors.Is(err, apperror.ErrConfiguration) || errors.Is(err, apperror.ErrNotConnected))
}

func TestStateSigner(t *testing.T) {
	signer := NewStateSigner("secret", time.Minute)
	state, err := signer.Sign("u1")
	require.NoError(t, err)

	userID, err := signer.Verify(state)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = NewStateSigner("other", time.Minute).Verify(state)
	assert.ErrorIs(t, err, apperror.ErrAuthentication)

	expired := NewStateSigner("secret", time.Nanosecond)
	old, err := expired.Sign("u1")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = expired.Verify(old)
	assert.ErrorIs(t, err, apperror.ErrAuthentication)

	_, err = NewStateSigner("", 0).Sign("u1")
	assert.ErrorIs(t, err, apperror.ErrConfiguration)
}

func TestRenewWatches_OnlyRenewsDueMailboxes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "projects/p/topics/gmail-sent")
	integration := h.connect(t, 0)

	renewed, err := h.uc.RenewWatches(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)

	reloaded, err := h.integrations.FindByID(ctx, integration.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Sync.WatchExpiration)
	assert.Equal(t, uint64(100), reloaded.Sync.HistoryID)

	renewed, err = h.uc.RenewWatches(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, renewed)
}

func TestRenewWatches_NoTopicIsNoop(t *testing.T) {
	h := newHarness(t, "")
	h.connect(t, 0)

	renewed, err := h.uc.RenewWatches(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, renewed)
}

func TestRenewWatches_KeepsCursorAfterFailedSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "projects/p/topics/gmail-sent")
	integration := h.connect(t, 50)

	h.mailbox.pages[""] = &gmail.HistoryPage{MessageIDs: []string{"M1"}}
	h.mailbox.messageErr = fmt.Errorf("%w: transient", apperror.ErrProvider)

	_, err := h.uc.HandleNotification(ctx, notification(80))
	require.ErrorIs(t, err, apperror.ErrProvider)
	require.Equal(t, uint64(50), h.cursor(t, integration.ID))

	renewed, err := h.uc.RenewWatches(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)
	assert.Equal(t, uint64(50), h.cursor(t, integration.ID), "renewal must not skip the failed range")

	// The next notification retries the same range and picks M1 up.
	h.mailbox.messageErr = nil
	h.mailbox.messages["M1"] = sentMessage("M1", "")
	result, err := h.uc.HandleNotification(ctx, notification(80))
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsIngested)
	assert.Equal(t, uint64(80), h.cursor(t, integration.ID))
}

package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kdrangari/msgtracker-api/pkg/apperror"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	LabelSent               = "SENT"
	HistoryTypeMessageAdded = "messageAdded"
	HistoryPageSize         = 100
	ReadonlyScope           = gmail.GmailReadonlyScope
)

// ErrHistoryTooOld means the start history id is no longer available and
// listing from it will never succeed.
var ErrHistoryTooOld = errors.New("gmail history id too old")

// ErrMessageNotFound means a message listed in history was deleted before it
// could be fetched.
var ErrMessageNotFound = errors.New("gmail message not found")

// TokenUpdateFunc is called whenever the access token is refreshed.
type TokenUpdateFunc func(*oauth2.Token) error

// Credentials are the stored OAuth tokens for one mailbox.
type Credentials struct {
	RefreshToken string
	AccessToken  string
	Expiry       time.Time
}

type Service struct {
	oauth      *oauth2.Config
	endpoint   string
	httpClient *http.Client
}

type Option func(*Service)

// WithEndpoint points API calls at a different base URL.
func WithEndpoint(endpoint string) Option {
	return func(s *Service) { s.endpoint = endpoint }
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(s *Service) { s.oauth.Endpoint.TokenURL = tokenURL }
}

// WithHTTPClient sets the base transport for token and API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

func NewService(clientID, clientSecret, redirectURI string, opts ...Option) *Service {
	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{ReadonlyScope},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthURL builds the consent URL. Offline access with forced consent makes
// Google return a refresh token on every connect.
func (s *Service) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for tokens.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.oauth.Exchange(s.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w: %v", apperror.ErrAuthentication, err)
	}
	return token, nil
}

// GrantedScopes returns the scope string Google attached to a token response.
func GrantedScopes(token *oauth2.Token) string {
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		return scope
	}
	return ReadonlyScope
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// Open builds a credentialed session for one mailbox. The access token is
// refreshed from the refresh token whenever it is missing or expired.
func (s *Service) Open(ctx context.Context, creds Credentials, onTokenRefresh TokenUpdateFunc) (Mailbox, error) {
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("open mailbox: %w: no refresh token", apperror.ErrNotConnected)
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}
	if token.AccessToken == "" || token.Expiry.IsZero() {
		token.Expiry = time.Now()
	}

	ctx = s.withHTTPClient(ctx)
	wrapped := &notifyTokenSource{
		src:      s.oauth.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, wrapped))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &mailbox{srv: srv}, nil
}

func (s *Service) withHTTPClient(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Mailbox is an authenticated session against one user's mailbox.
type Mailbox interface {
	Profile(ctx context.Context) (*Profile, error)
	Watch(ctx context.Context, topicName string, labelIDs []string) (*WatchResult, error)
	ListHistory(ctx context.Context, startHistoryID uint64, historyType, labelID, pageToken string) (*HistoryPage, error)
	GetMessage(ctx context.Context, id string) (*SentMessage, error)
}

type Profile struct {
	EmailAddress string
	HistoryID    uint64
}

type WatchResult struct {
	HistoryID  uint64
	Expiration time.Time
}

// HistoryPage is one page of history, reduced to the ids of added messages.
type HistoryPage struct {
	MessageIDs    []string
	NextPageToken string
	HistoryID     uint64
}

type mailbox struct {
	srv *gmail.Service
}

func (m *mailbox) Profile(ctx context.Context) (*Profile, error) {
	resp, err := m.srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, classify("get profile", err)
	}
	return &Profile{EmailAddress: resp.EmailAddress, HistoryID: resp.HistoryId}, nil
}

func (m *mailbox) Watch(ctx context.Context, topicName string, labelIDs []string) (*WatchResult, error) {
	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  labelIDs,
	}

	log.Printf("[Gmail] Starting watch on topic %s for labels %s", topicName, strings.Join(labelIDs, ","))
	resp, err := m.srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return nil, classify("watch mailbox", err)
	}
	log.Printf("[Gmail] Watch started. Expiration: %d, HistoryId: %d", resp.Expiration, resp.HistoryId)

	result := &WatchResult{HistoryID: resp.HistoryId}
	if resp.Expiration > 0 {
		result.Expiration = time.UnixMilli(resp.Expiration).UTC()
	}
	return result, nil
}

func (m *mailbox) ListHistory(ctx context.Context, startHistoryID uint64, historyType, labelID, pageToken string) (*HistoryPage, error) {
	call := m.srv.Users.History.List("me").
		StartHistoryId(startHistoryID).
		MaxResults(HistoryPageSize).
		Context(ctx)
	if historyType != "" {
		call = call.HistoryTypes(historyType)
	}
	if labelID != "" {
		call = call.LabelId(labelID)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("list history from %d: %w", startHistoryID, ErrHistoryTooOld)
		}
		return nil, classify("list history", err)
	}

	page := &HistoryPage{NextPageToken: resp.NextPageToken, HistoryID: resp.HistoryId}
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil && added.Message.Id != "" {
				page.MessageIDs = append(page.MessageIDs, added.Message.Id)
			}
		}
	}
	return page, nil
}

func (m *mailbox) GetMessage(ctx context.Context, id string) (*SentMessage, error) {
	msg, err := m.srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("get message %s: %w", id, ErrMessageNotFound)
		}
		return nil, classify("get message "+id, err)
	}
	return ParseMessage(msg), nil
}

// classify maps a failed API call onto the error kinds callers branch on.
func classify(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%s: %w: %v", op, apperror.ErrAuthentication, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %v", op, apperror.ErrAuthentication, err)
	}
	return fmt.Errorf("%s: %w: %v", op, apperror.ErrProvider, err)
}

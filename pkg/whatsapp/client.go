package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kdrangari/msgtracker-api/pkg/apperror"
)

const (
	DefaultBaseURL      = "https://graph.facebook.com"
	DefaultGraphVersion = "v20.0"
	maxErrorBody        = 4 << 10
)

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api returned %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return apperror.ErrProvider }

// SendResult is the provider message id plus the raw response body.
type SendResult struct {
	MessageID string
	Raw       json.RawMessage
}

// Client sends messages from one business phone number.
type Client struct {
	baseURL       string
	version       string
	phoneNumberID string
	accessToken   string
	httpClient    *http.Client
}

func NewClient(baseURL, version, phoneNumberID, accessToken string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultGraphVersion
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		version:       version,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		httpClient:    httpClient,
	}
}

// PhoneNumberID is the sending number, used as the integration's account id.
func (c *Client) PhoneNumberID() string { return c.phoneNumberID }

// Configured reports whether credentials are present.
func (c *Client) Configured() error {
	if c.accessToken == "" {
		return fmt.Errorf("%w: WHATSAPP_ACCESS_TOKEN is not set", apperror.ErrConfiguration)
	}
	if c.phoneNumberID == "" {
		return fmt.Errorf("%w: WHATSAPP_PHONE_NUMBER_ID is not set", apperror.ErrConfiguration)
	}
	return nil
}

type textBody struct {
	Body string `json:"body"`
}

type documentBody struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Caption  string `json:"caption,omitempty"`
}

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Document         *documentBody `json:"document,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (c *Client) SendText(ctx context.Context, to, text string) (*SendResult, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

func (c *Client) SendDocument(ctx context.Context, to, documentURL, filename, caption string) (*SendResult, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "document",
		Document:         &documentBody{Link: documentURL, Filename: filename, Caption: caption},
	})
}

func (c *Client) send(ctx context.Context, payload sendRequest) (*SendResult, error) {
	if err := c.Configured(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s message: %w: %v", payload.Type, apperror.ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %v", apperror.ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w: %v", apperror.ErrProvider, err)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return nil, fmt.Errorf("no message id in response %s: %w", raw, apperror.ErrProvider)
	}

	return &SendResult{MessageID: parsed.Messages[0].ID, Raw: raw}, nil
}

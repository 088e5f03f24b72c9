package dto

import (
	"fmt"
	"strings"
	"time"

	integrationdomain "github.com/kdrangari/msgtracker-api/internal/integration/domain"
	"github.com/kdrangari/msgtracker-api/pkg/apperror"
)

// DefaultRange is used when a report request has no from.
const DefaultRange = 7 * 24 * time.Hour

// Filter scopes every report to one user's events in a time range.
type Filter struct {
	UserID   string
	From     time.Time
	To       time.Time
	Provider string
	Query    string
}

// ParseFilter reads the from/to/provider/q query parameters. Empty from and
// to default to the last seven days ending now.
func ParseFilter(userID, from, to, provider, query string, now time.Time) (Filter, error) {
	f := Filter{
		UserID: userID,
		From:   now.Add(-DefaultRange),
		To:     now,
		Query:  strings.TrimSpace(query),
	}

	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: from must be RFC 3339", apperror.ErrInvalidInput)
		}
		f.From = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: to must be RFC 3339", apperror.ErrInvalidInput)
		}
		f.To = t
	}
	if f.From.After(f.To) {
		return Filter{}, fmt.Errorf("%w: from is after to", apperror.ErrInvalidInput)
	}

	switch provider {
	case "", integrationdomain.ProviderGmail, integrationdomain.ProviderWhatsApp:
		f.Provider = provider
	default:
		return Filter{}, fmt.Errorf("%w: unknown provider %q", apperror.ErrInvalidInput, provider)
	}
	return f, nil
}

type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func RangeOf(f Filter) Range {
	return Range{From: f.From.UTC(), To: f.To.UTC()}
}

type ProviderCount struct {
	Provider string `json:"provider"`
	Count    int64  `json:"count"`
}

type TypeCount struct {
	EventType string `json:"eventType"`
	Count     int64  `json:"count"`
}

type OverviewResponse struct {
	Range       Range           `json:"range"`
	TotalEvents int64           `json:"totalEvents"`
	ByProvider  []ProviderCount `json:"byProvider"`
	ByType      []TypeCount     `json:"byType"`
}

type LinkCount struct {
	NormalizedURL string `json:"normalizedUrl"`
	URL           string `json:"url"`
	Domain        string `json:"domain"`
	Count         int64  `json:"count"`
}

type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

type LinksResponse struct {
	Range      Range         `json:"range"`
	TopLinks   []LinkCount   `json:"topLinks"`
	TopDomains []DomainCount `json:"topDomains"`
}

type MimeCount struct {
	MimeType string `json:"mimeType"`
	Count    int64  `json:"count"`
}

type AttachmentItem struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	OccurredAt  time.Time `json:"occurredAt"`
	ToRecipient *string   `json:"to"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mimeType"`
	SizeBytes   *int64    `json:"sizeBytes"`
}

type AttachmentsResponse struct {
	Range            Range            `json:"range"`
	TotalAttachments int64            `json:"totalAttachments"`
	MimeSummary      []MimeCount      `json:"mimeSummary"`
	Items            []AttachmentItem `json:"items"`
}

type AttachmentSummary struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	SizeBytes *int64 `json:"sizeBytes"`
}

type EventItem struct {
	ID          string              `json:"id"`
	Provider    string              `json:"provider"`
	EventType   string              `json:"eventType"`
	ExternalID  string              `json:"externalId"`
	OccurredAt  time.Time           `json:"occurredAt"`
	To          *string             `json:"to"`
	Subject     *string             `json:"subject"`
	Preview     *string             `json:"preview"`
	Links       []string            `json:"links"`
	Attachments []AttachmentSummary `json:"attachments"`
}

type EventsResponse struct {
	Range Range       `json:"range"`
	Items []EventItem `json:"items"`
}

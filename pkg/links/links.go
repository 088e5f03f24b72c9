package links

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrUnparsable is returned by Normalize for input that is not an absolute URL.
var ErrUnparsable = errors.New("unparsable url")

// Scheme up to whitespace, a closing bracket or a quote. Trailing punctuation is kept.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s\])}<>"']+`)

// Extract returns the URLs found in text, deduplicated, in first-seen order.
func Extract(text string) []string {
	if text == "" {
		return []string{}
	}

	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Normalize canonicalizes raw into the key used to deduplicate links.
// The fragment is dropped, query keys are sorted (values of a repeated key
// keep their order) and one trailing slash is removed.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrUnparsable
	}
	if u.Scheme == "" || u.Host == "" {
		return "", ErrUnparsable
	}

	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.RawPath == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err != nil {
			return "", ErrUnparsable
		}
		// Encode sorts by key and preserves per-key value order.
		u.RawQuery = values.Encode()
	}
	u.ForceQuery = false

	s := u.String()
	return strings.TrimSuffix(s, "/"), nil
}

// Domain returns the host name of a normalized URL, or "unknown".
func Domain(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

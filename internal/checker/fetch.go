package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/restockd/restockd/internal/browser"
	"github.com/restockd/restockd/internal/models"
)

// maxBodyBytes bounds how much of a response body is read for
// classification and extraction.
const maxBodyBytes = 4 << 20

// plainFetcher issues the first-tier GET with a fixed desktop user agent.
type plainFetcher struct {
	client *http.Client
}

func newPlainFetcher(timeout time.Duration) *plainFetcher {
	return &plainFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch performs a GET and returns the status code and body. A nil session
// means a fresh anonymous identity; with a session its cookies and user
// agent are attached instead.
func (f *plainFetcher) Fetch(ctx context.Context, url string, session *models.VerifiedSession) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}

	userAgent := browser.DefaultUserAgent
	if session != nil && session.UserAgent != "" {
		userAgent = session.UserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	if session != nil {
		if cookie := cookieHeader(session.Cookies); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, string(body), nil
}

// cookieHeader flattens a serialized session cookie jar into a Cookie header
// value.
func cookieHeader(raw json.RawMessage) string {
	var cookies []models.SessionCookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return ""
	}

	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

package checker

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/restockd/restockd/internal/browser"
	"github.com/restockd/restockd/internal/models"
)

// PlaywrightFactory launches one browser instance per session. Headless
// instances serve the second tier; headful ones the manual-verification tier.
type PlaywrightFactory struct {
	timeout        time.Duration
	viewportWidth  int
	viewportHeight int
	locale         string
	timezoneID     string
}

func NewPlaywrightFactory(timeout time.Duration, viewportWidth, viewportHeight int, locale, timezoneID string) *PlaywrightFactory {
	return &PlaywrightFactory{
		timeout:        timeout,
		viewportWidth:  viewportWidth,
		viewportHeight: viewportHeight,
		locale:         locale,
		timezoneID:     timezoneID,
	}
}

func (f *PlaywrightFactory) Open(ctx context.Context, url string, headless bool, cookies []models.SessionCookie) (BrowserSession, error) {
	opts := &browser.Options{
		Headless:       headless,
		Timeout:        f.timeout,
		UserAgent:      browser.DefaultUserAgent,
		ViewportWidth:  f.viewportWidth,
		ViewportHeight: f.viewportHeight,
		Locale:         f.locale,
		TimezoneID:     f.timezoneID,
		Cookies:        cookies,
	}

	b, err := browser.Launch(opts)
	if err != nil {
		return nil, err
	}

	page, err := b.Open(url)
	if err != nil {
		b.Close()
		return nil, err
	}

	return &playwrightSession{browser: b, page: page, userAgent: opts.UserAgent}, nil
}

type playwrightSession struct {
	browser   *browser.Browser
	page      playwright.Page
	userAgent string
}

func (s *playwrightSession) Content() (string, error) {
	return s.page.Content()
}

func (s *playwrightSession) Cookies() ([]models.SessionCookie, error) {
	return s.browser.Cookies()
}

func (s *playwrightSession) UserAgent() string {
	return s.userAgent
}

func (s *playwrightSession) Close() error {
	s.page.Close()
	return s.browser.Close()
}

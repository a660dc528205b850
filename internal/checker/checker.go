package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/restockd/restockd/internal/botdetect"
	"github.com/restockd/restockd/internal/currency"
	"github.com/restockd/restockd/internal/extract"
	"github.com/restockd/restockd/internal/models"
)

// ErrVerificationTimeout is returned when the manual-verification ceiling is
// reached without the challenge clearing. It is distinct from generic fetch
// failure because the user can simply retry.
var ErrVerificationTimeout = errors.New("manual verification timed out")

const (
	// ManualPollInterval is how often the visible browser is re-checked
	// while a human solves the challenge.
	ManualPollInterval = 5 * time.Second
	// ManualPollCeiling bounds the total manual-verification wait.
	ManualPollCeiling = 5 * time.Minute
)

// SessionStore is the domain-scoped cache of verified sessions.
type SessionStore interface {
	FindSession(ctx context.Context, domain string) (*models.VerifiedSession, error)
	UpsertSession(ctx context.Context, domain string, cookies json.RawMessage, userAgent string, ttl time.Duration) (*models.VerifiedSession, error)
}

// BrowserSession is one live browser page against a target URL.
type BrowserSession interface {
	Content() (string, error)
	Cookies() ([]models.SessionCookie, error)
	UserAgent() string
	Close() error
}

// BrowserFactory opens browser sessions for the headless and manual tiers.
type BrowserFactory interface {
	Open(ctx context.Context, url string, headless bool, cookies []models.SessionCookie) (BrowserSession, error)
}

// Checker runs the three-tier availability check for a single link and
// produces exactly one AvailabilityCheck per call, failures included.
type Checker struct {
	fetcher      *plainFetcher
	browsers     BrowserFactory
	sessions     SessionStore
	extractor    *extract.Extractor
	normalizer   *currency.Normalizer
	logger       *slog.Logger
	pollInterval time.Duration
	pollCeiling  time.Duration
}

func New(browsers BrowserFactory, sessions SessionStore, normalizer *currency.Normalizer, fetchTimeout time.Duration) *Checker {
	return &Checker{
		fetcher:      newPlainFetcher(fetchTimeout),
		browsers:     browsers,
		sessions:     sessions,
		extractor:    extract.NewExtractor(),
		normalizer:   normalizer,
		logger:       slog.Default().With("component", "checker"),
		pollInterval: ManualPollInterval,
		pollCeiling:  ManualPollCeiling,
	}
}

// Check walks the state machine for one link. The returned record is not yet
// persisted; the caller stores it.
func (c *Checker) Check(ctx context.Context, link *models.ProductRetailerLink, policy Policy) *models.AvailabilityCheck {
	check := &models.AvailabilityCheck{
		LinkID:    link.ID,
		ProductID: link.ProductID,
		Status:    models.StatusUnknown,
	}

	domain, err := domainOf(link.URL)
	if err != nil {
		check.ErrorMessage = fmt.Sprintf("invalid url: %v", err)
		return check
	}

	state := StatePlainFetch
	var content string

	// A cached verified session rides along from the first tier on: its
	// cookies often keep the plain fetch from being challenged at all.
	session := c.lookupSession(ctx, domain)

	for !state.Terminal() {
		select {
		case <-ctx.Done():
			check.ErrorMessage = ctx.Err().Error()
			return check
		default:
		}

		switch state {
		case StatePlainFetch:
			status, body, fetchErr := c.fetcher.Fetch(ctx, link.URL, session)
			if fetchErr != nil {
				check.ErrorMessage = fetchErr.Error()
				state = Next(state, false, true, policy)
				continue
			}

			challenged := botdetect.IsChallengePage(status, body)
			next := Next(state, challenged, false, policy)
			if next == StateSuccess {
				content = body
			} else if next == StateFailure {
				check.ErrorMessage = "challenge page detected and headless fallback is disabled"
			}
			state = next

		case StateHeadlessFetch:
			body, fetchErr := c.renderedContent(ctx, link.URL, true, session)
			if fetchErr != nil {
				check.ErrorMessage = fetchErr.Error()
				state = Next(state, false, true, policy)
				continue
			}

			challenged := botdetect.IsChallengePage(200, body)
			next := Next(state, challenged, false, policy)
			if next == StateSuccess {
				content = body
			} else if next == StateFailure {
				check.ErrorMessage = "challenge persisted after headless fetch and manual verification is disallowed"
			}
			state = next

		case StateManualVerification:
			body, verifyErr := c.manualVerify(ctx, link.URL, domain, session, policy)
			if verifyErr != nil {
				check.ErrorMessage = verifyErr.Error()
				state = StateFailure
				continue
			}
			content = body
			state = StateSuccess
		}
	}

	if state == StateSuccess {
		c.applyExtraction(ctx, check, content)
	}

	return check
}

// applyExtraction fills the check from page content. A page without
// structured data is still a successful check with unknown status.
func (c *Checker) applyExtraction(ctx context.Context, check *models.AvailabilityCheck, content string) {
	result, err := c.extractor.Extract(content)
	if err != nil || result == nil {
		return
	}

	check.Status = result.Status
	check.RawAvailability = result.RawAvailability

	if result.Price == nil {
		return
	}

	minor := currency.RescaleMinorUnits(result.Price.Minor, result.Price.Currency)
	check.PriceMinor = &minor
	check.Currency = result.Price.Currency
	check.RawPrice = result.Price.Raw

	normalized, ok, err := c.normalizer.Normalize(ctx, minor, result.Price.Currency)
	if err != nil {
		c.logger.Error("failed to normalize price", "currency", result.Price.Currency, "error", err)
		return
	}
	if ok {
		check.NormalizedPriceMinor = &normalized
		check.NormalizedCurrency = c.normalizer.PreferredCurrency()
	}
}

// renderedContent opens a browser session against url and returns its
// rendered content.
func (c *Checker) renderedContent(ctx context.Context, url string, headless bool, session *models.VerifiedSession) (string, error) {
	bs, err := c.browsers.Open(ctx, url, headless, sessionCookies(session))
	if err != nil {
		return "", fmt.Errorf("headless fetch failed: %w", err)
	}
	defer bs.Close()

	content, err := bs.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read rendered content: %w", err)
	}

	return content, nil
}

// manualVerify opens a visible browser and polls until the human clears the
// challenge or the ceiling is reached. On the first clear reading the
// session's cookies are persisted for the domain.
func (c *Checker) manualVerify(ctx context.Context, url, domain string, session *models.VerifiedSession, policy Policy) (string, error) {
	bs, err := c.browsers.Open(ctx, url, false, sessionCookies(session))
	if err != nil {
		return "", fmt.Errorf("failed to open verification browser: %w", err)
	}
	defer bs.Close()

	c.logger.Info("waiting for manual verification", "domain", domain, "ceiling", c.pollCeiling)

	deadline := time.Now().Add(c.pollCeiling)
	for {
		content, err := bs.Content()
		if err == nil && !botdetect.IsChallengePage(200, content) {
			c.persistSession(ctx, domain, bs, policy.SessionTTL)
			return content, nil
		}

		if time.Now().After(deadline) {
			return "", ErrVerificationTimeout
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Checker) persistSession(ctx context.Context, domain string, bs BrowserSession, ttl time.Duration) {
	cookies, err := bs.Cookies()
	if err != nil {
		c.logger.Error("failed to capture session cookies", "domain", domain, "error", err)
		return
	}

	raw, err := json.Marshal(cookies)
	if err != nil {
		c.logger.Error("failed to serialize session cookies", "domain", domain, "error", err)
		return
	}

	if _, err := c.sessions.UpsertSession(ctx, domain, raw, bs.UserAgent(), ttl); err != nil {
		c.logger.Error("failed to persist verified session", "domain", domain, "error", err)
		return
	}

	c.logger.Info("verified session stored", "domain", domain, "ttl", ttl)
}

func (c *Checker) lookupSession(ctx context.Context, domain string) *models.VerifiedSession {
	if c.sessions == nil {
		return nil
	}

	session, err := c.sessions.FindSession(ctx, domain)
	if err != nil {
		c.logger.Error("session lookup failed", "domain", domain, "error", err)
		return nil
	}
	if session != nil {
		c.logger.Info("reusing verified session", "domain", domain, "expires_at", session.ExpiresAt)
	}
	return session
}

func sessionCookies(session *models.VerifiedSession) []models.SessionCookie {
	if session == nil {
		return nil
	}

	var cookies []models.SessionCookie
	if err := json.Unmarshal(session.Cookies, &cookies); err != nil {
		return nil
	}
	return cookies
}

func domainOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("missing host")
	}
	return u.Hostname(), nil
}

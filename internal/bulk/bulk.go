package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/restockd/restockd/internal/checker"
	"github.com/restockd/restockd/internal/models"
	"github.com/restockd/restockd/internal/ratelimit"
)

// ErrRunInProgress is returned when a bulk run is requested while another is
// still in flight. The scheduler and the manual trigger share one guard so
// two batches can never race on transition detection.
var ErrRunInProgress = errors.New("bulk availability check already running")

// Settings is the once-per-run snapshot of check policy. It is read at the
// start of a run and never re-read per item, so the whole batch sees one
// consistent policy.
type Settings struct {
	Policy               checker.Policy
	NotificationsEnabled bool
	PreferredCurrency    string
	CheckDelay           time.Duration
	BackgroundEnabled    bool
	BackgroundInterval   time.Duration
}

// SettingsReader supplies the snapshot for a run.
type SettingsReader interface {
	Get(ctx context.Context) (Settings, error)
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	ListLinks(ctx context.Context) ([]*models.ProductRetailerLink, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	LatestCheck(ctx context.Context, linkID uuid.UUID) (*models.AvailabilityCheck, error)
	InsertCheck(ctx context.Context, check *models.AvailabilityCheck) error
}

// ItemChecker runs one availability check. Satisfied by checker.Checker.
type ItemChecker interface {
	Check(ctx context.Context, link *models.ProductRetailerLink, policy checker.Policy) *models.AvailabilityCheck
}

// Notifier delivers a notification. Failures are logged and swallowed; the
// sink is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// ProgressSink receives one report per item during a run.
type ProgressSink interface {
	Report(productID uuid.UUID, status models.AvailabilityStatus, current, total int)
}

// ItemResult pairs one link with its freshly stored check and the detected
// transitions.
type ItemResult struct {
	Link        *models.ProductRetailerLink `json:"link"`
	ProductName string                      `json:"product_name"`
	Check       *models.AvailabilityCheck   `json:"check"`
	BackInStock bool                        `json:"back_in_stock"`
	PriceDrop   bool                        `json:"price_drop"`
}

// Summary aggregates one bulk run. successful + failed always equals total.
type Summary struct {
	Total       int          `json:"total"`
	Successful  int          `json:"successful"`
	Failed      int          `json:"failed"`
	BackInStock int          `json:"back_in_stock_count"`
	PriceDrop   int          `json:"price_drop_count"`
	Items       []ItemResult `json:"items"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

// Orchestrator sequences availability checks over all tracked links,
// strictly one at a time to bound the aggregate request rate.
type Orchestrator struct {
	settings SettingsReader
	store    Store
	checker  ItemChecker
	notifier Notifier
	progress ProgressSink
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewOrchestrator(settings SettingsReader, store Store, itemChecker ItemChecker, notifier Notifier, progress ProgressSink) *Orchestrator {
	return &Orchestrator{
		settings: settings,
		store:    store,
		checker:  itemChecker,
		notifier: notifier,
		progress: progress,
		logger:   slog.Default().With("component", "bulk"),
	}
}

// Running reports whether a bulk run currently holds the guard.
func (o *Orchestrator) Running() bool {
	if o.mu.TryLock() {
		o.mu.Unlock()
		return false
	}
	return true
}

// Run checks every tracked link once and returns the summary. A second Run
// while one is in flight fails fast with ErrRunInProgress. Cancellation is
// honored at the per-item boundary; an item already fetching finishes on its
// own timeouts.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	if !o.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.mu.Unlock()

	return o.run(ctx)
}

// RunAsync takes the run guard before returning, so the caller's success
// means the run is actually underway; the run itself proceeds in the
// background. Overlap fails fast with ErrRunInProgress.
func (o *Orchestrator) RunAsync(ctx context.Context) error {
	if !o.mu.TryLock() {
		return ErrRunInProgress
	}

	go func() {
		defer o.mu.Unlock()
		if _, err := o.run(ctx); err != nil {
			o.logger.Error("background bulk run failed", "error", err)
		}
	}()

	return nil
}

func (o *Orchestrator) run(ctx context.Context) (*Summary, error) {
	snapshot, err := o.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	links, err := o.store.ListLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked links: %w", err)
	}

	summary := &Summary{
		Total:     len(links),
		Items:     make([]ItemResult, 0, len(links)),
		StartedAt: time.Now().UTC(),
	}

	o.logger.Info("starting bulk availability check", "links", len(links), "delay", snapshot.CheckDelay)

	limiter := ratelimit.NewFixedRateLimiter(snapshot.CheckDelay)

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			o.logger.Info("bulk run cancelled", "completed", i, "total", len(links))
			summary.Total = i
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}

		if err := limiter.Wait(ctx); err != nil {
			summary.Total = i
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}

		item := o.checkOne(ctx, link, snapshot)
		summary.Items = append(summary.Items, item)

		if item.Check.Failed() {
			summary.Failed++
		} else {
			summary.Successful++
		}
		if item.BackInStock {
			summary.BackInStock++
		}
		if item.PriceDrop {
			summary.PriceDrop++
		}

		o.progress.Report(link.ProductID, item.Check.Status, i+1, len(links))
	}

	summary.FinishedAt = time.Now().UTC()

	o.logger.Info("bulk availability check finished",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"back_in_stock", summary.BackInStock,
		"price_drops", summary.PriceDrop)

	o.maybeNotify(ctx, snapshot, summary)

	return summary, nil
}

// checkOne runs a single item: previous check lookup, the three-tier check,
// persistence, and transition detection. Per-item failures never abort the
// run.
func (o *Orchestrator) checkOne(ctx context.Context, link *models.ProductRetailerLink, snapshot Settings) ItemResult {
	previous, err := o.store.LatestCheck(ctx, link.ID)
	if err != nil {
		o.logger.Error("failed to load previous check", "link_id", link.ID, "error", err)
		previous = nil
	}

	check := o.checker.Check(ctx, link, snapshot.Policy)

	if err := o.store.InsertCheck(ctx, check); err != nil {
		// The observation must not be lost silently; surface it on the item.
		o.logger.Error("failed to store availability check", "link_id", link.ID, "error", err)
		if check.ErrorMessage == "" {
			check.ErrorMessage = fmt.Sprintf("failed to store check: %v", err)
		}
	}

	item := ItemResult{
		Link:        link,
		ProductName: o.productName(ctx, link.ProductID),
		Check:       check,
	}

	if check.Failed() {
		return item
	}

	item.BackInStock = isBackInStock(check, previous)
	item.PriceDrop = isPriceDrop(check, previous)
	return item
}

// isBackInStock reports a transition into in_stock from a prior non-in_stock
// check. A first-ever check never counts.
func isBackInStock(check, previous *models.AvailabilityCheck) bool {
	if check.Status != models.StatusInStock {
		return false
	}
	return previous != nil && previous.Status != models.StatusInStock
}

// isPriceDrop reports a strictly lower normalized price than the previous
// check, compared in the same target currency.
func isPriceDrop(check, previous *models.AvailabilityCheck) bool {
	if !check.HasPrice() || previous == nil || !previous.HasPrice() {
		return false
	}
	if check.NormalizedPriceMinor == nil || previous.NormalizedPriceMinor == nil {
		return false
	}
	if check.NormalizedCurrency != previous.NormalizedCurrency {
		return false
	}
	return *check.NormalizedPriceMinor < *previous.NormalizedPriceMinor
}

func (o *Orchestrator) productName(ctx context.Context, productID uuid.UUID) string {
	product, err := o.store.GetProduct(ctx, productID)
	if err != nil || product == nil {
		return ""
	}
	return product.Name
}

func (o *Orchestrator) maybeNotify(ctx context.Context, snapshot Settings, summary *Summary) {
	if !snapshot.NotificationsEnabled {
		return
	}

	title, body, ok := ComposeNotification(summary)
	if !ok {
		return
	}

	if err := o.notifier.Notify(ctx, title, body); err != nil {
		o.logger.Error("failed to deliver notification", "error", err)
	}
}

// ComposeNotification builds the user-facing message for a finished run. ok
// is false when nothing notification-worthy happened. A single affected
// product is named directly; several are summarized and listed.
func ComposeNotification(summary *Summary) (title, body string, ok bool) {
	if summary.BackInStock == 0 && summary.PriceDrop == 0 {
		return "", "", false
	}

	var affected []ItemResult
	for _, item := range summary.Items {
		if item.BackInStock || item.PriceDrop {
			affected = append(affected, item)
		}
	}

	if len(affected) == 1 {
		item := affected[0]
		name := item.ProductName
		if name == "" {
			name = item.Link.URL
		}
		switch {
		case item.BackInStock && item.PriceDrop:
			return "Back in stock at a lower price", fmt.Sprintf("%s is back in stock and cheaper than before.", name), true
		case item.BackInStock:
			return "Back in stock", fmt.Sprintf("%s is available again.", name), true
		default:
			return "Price drop", fmt.Sprintf("The price of %s went down.", name), true
		}
	}

	names := make([]string, 0, len(affected))
	for _, item := range affected {
		if item.ProductName != "" {
			names = append(names, item.ProductName)
		}
	}

	title = fmt.Sprintf("%d product updates", len(affected))
	parts := make([]string, 0, 2)
	if summary.BackInStock > 0 {
		parts = append(parts, fmt.Sprintf("%d back in stock", summary.BackInStock))
	}
	if summary.PriceDrop > 0 {
		parts = append(parts, fmt.Sprintf("%d price drops", summary.PriceDrop))
	}
	body = strings.Join(parts, ", ")
	if len(names) > 0 {
		body += ": " + strings.Join(names, ", ")
	}
	return title, body, true
}

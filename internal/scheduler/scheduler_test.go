package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/restockd/restockd/internal/bulk"
	"github.com/restockd/restockd/internal/checker"
	"github.com/restockd/restockd/internal/models"
)

type emptyStore struct{}

func (emptyStore) ListLinks(context.Context) ([]*models.ProductRetailerLink, error) {
	return nil, nil
}

func (emptyStore) GetProduct(context.Context, uuid.UUID) (*models.Product, error) {
	return nil, nil
}

func (emptyStore) LatestCheck(context.Context, uuid.UUID) (*models.AvailabilityCheck, error) {
	return nil, nil
}

func (emptyStore) InsertCheck(context.Context, *models.AvailabilityCheck) error {
	return nil
}

type countingSettings struct {
	reads    atomic.Int64
	settings bulk.Settings
}

func (c *countingSettings) Get(context.Context) (bulk.Settings, error) {
	c.reads.Add(1)
	return c.settings, nil
}

type nopChecker struct{}

func (nopChecker) Check(_ context.Context, link *models.ProductRetailerLink, _ checker.Policy) *models.AvailabilityCheck {
	return &models.AvailabilityCheck{LinkID: link.ID, ProductID: link.ProductID, Status: models.StatusUnknown}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) error { return nil }

type nopProgress struct{}

func (nopProgress) Report(uuid.UUID, models.AvailabilityStatus, int, int) {}

type countingSweeper struct {
	sweeps atomic.Int64
}

func (c *countingSweeper) DeleteExpiredSessions(context.Context) (int64, error) {
	c.sweeps.Add(1)
	return 0, nil
}

func newTestScheduler(settings *countingSettings, sweeper *countingSweeper) *Scheduler {
	o := bulk.NewOrchestrator(settings, emptyStore{}, nopChecker{}, nopNotifier{}, nopProgress{})
	return New(o, settings, sweeper)
}

func TestSchedulerRunsAndRereadsSettings(t *testing.T) {
	settings := &countingSettings{settings: bulk.Settings{
		BackgroundEnabled:  true,
		BackgroundInterval: 20 * time.Millisecond,
	}}
	sweeper := &countingSweeper{}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := newTestScheduler(settings, sweeper).Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The interval is read fresh every cycle, and each cycle sweeps sessions
	// before running.
	assert.GreaterOrEqual(t, sweeper.sweeps.Load(), int64(2))
	assert.Greater(t, settings.reads.Load(), sweeper.sweeps.Load())
}

func TestSchedulerSkipsWhenDisabled(t *testing.T) {
	settings := &countingSettings{settings: bulk.Settings{
		BackgroundEnabled:  false,
		BackgroundInterval: 10 * time.Millisecond,
	}}
	sweeper := &countingSweeper{}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := newTestScheduler(settings, sweeper).Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, sweeper.sweeps.Load())
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/restockd/restockd/internal/models"
)

// Notifier delivers a user-facing notification. Implementations are
// fire-and-forget; callers tolerate a no-op.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// LogNotifier writes notifications to the structured log. Used when no
// delivery channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("component", "notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) error {
	n.logger.Info("notification", "title", title, "body", body)
	return nil
}

// RedisClient is the subset of redis operations the stream notifier uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// StreamNotifier publishes notifications to a redis stream for downstream
// consumers (desktop shell, messengers). Delivery failures are the caller's
// to log; nothing is retried.
type StreamNotifier struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewStreamNotifier(client RedisClient, stream string) *StreamNotifier {
	return &StreamNotifier{
		redis:  client,
		stream: stream,
		logger: slog.Default().With("component", "notifier"),
	}
}

type streamPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func (n *StreamNotifier) Notify(ctx context.Context, title, body string) error {
	payload := streamPayload{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"title":     title,
			"timestamp": fmt.Sprintf("%d", payload.Timestamp.UnixNano()),
		},
	}

	if _, err := n.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug("notification published", "stream", n.stream, "title", title)
	return nil
}

// ProgressLogger reports per-item bulk progress to the log. It satisfies the
// bulk orchestrator's progress sink.
type ProgressLogger struct {
	logger *slog.Logger
}

func NewProgressLogger() *ProgressLogger {
	return &ProgressLogger{logger: slog.Default().With("component", "progress")}
}

func (p *ProgressLogger) Report(productID uuid.UUID, status models.AvailabilityStatus, current, total int) {
	p.logger.Info("check progress", "product_id", productID, "status", status, "current", current, "total", total)
}

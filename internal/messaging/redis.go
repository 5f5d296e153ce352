package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

const ZoneStream = "zone:notifications"

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// StreamNotifier appends zone notifications to a Redis stream read by the
// presentation layer.
type StreamNotifier struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewStreamNotifier(client redis.Cmdable) *StreamNotifier {
	return &StreamNotifier{client: client, stream: ZoneStream, maxLen: 100_000}
}

func (n *StreamNotifier) NotifyZone(ctx context.Context, z domain.ZoneNotification) error {
	_, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: notificationValues(z),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", n.stream, err)
	}
	return nil
}

func notificationValues(z domain.ZoneNotification) map[string]interface{} {
	return map[string]interface{}{
		"zone_id":    z.ZoneID,
		"event":      z.Event,
		"message":    z.Message,
		"command_id": z.CommandID,
		"sent_at":    z.SentAt.UTC().Format(time.RFC3339),
	}
}

type ZoneNotifier interface {
	NotifyZone(ctx context.Context, z domain.ZoneNotification) error
}

// MultiNotifier forwards to every notifier and joins their errors.
type MultiNotifier []ZoneNotifier

func (m MultiNotifier) NotifyZone(ctx context.Context, z domain.ZoneNotification) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyZone(ctx, z); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/carebook/hospital-scheduling/internal/scheduling"
)

// NotificationSink pushes patient-facing notifications onto a per-user
// Redis list that the delivery layer drains. Best effort: the scheduling
// core logs and moves on when a push fails.
type NotificationSink struct {
	client  *redis.Client
	maxKept int64
}

func NewNotificationSink(client *redis.Client, maxKept int64) *NotificationSink {
	if maxKept <= 0 {
		maxKept = 100
	}
	return &NotificationSink{client: client, maxKept: maxKept}
}

func (s *NotificationSink) Notify(ctx context.Context, n scheduling.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	key := fmt.Sprintf("notifications:user:%s", n.UserID.String())
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, s.maxKept-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

package inbox

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Inbox deduplicates broker deliveries by message id. Upstream delivery is
// at-least-once, so redeliveries are expected; the first SETNX wins and every
// later delivery of the same id is dropped.
type Inbox struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Inbox {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Inbox{rdb: rdb, ttl: ttl}
}

// Record marks a message id as seen. It returns true when this is the first
// delivery, false for a duplicate.
func (i *Inbox) Record(ctx context.Context, messageID string) (bool, error) {
	return i.rdb.SetNX(ctx, "inbox:"+messageID, 1, i.ttl).Result()
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

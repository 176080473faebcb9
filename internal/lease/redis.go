// Package lease hands a time-boxed slot to at most one instance at a time.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLease is a SET NX claim on a key that expires after ttl. It is never
// released early, so a claim covers one whole slot even after the work is done.
type RedisLease struct {
	rc    redis.Cmdable
	key   string
	owner string
	ttl   time.Duration
}

func NewRedisLease(rc redis.Cmdable, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{rc: rc, key: key, owner: uuid.NewString(), ttl: ttl}
}

// TryAcquire claims the lease. It reports false while any holder's claim,
// this one's included, is still live.
func (l *RedisLease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rc.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

// Owner identifies this holder in the stored value.
func (l *RedisLease) Owner() string {
	return l.owner
}

// SlotTTL is the lease length for a job run every interval: long enough to
// cover the slot, short enough to lapse before the next tick.
func SlotTTL(interval time.Duration) time.Duration {
	return interval - interval/10
}

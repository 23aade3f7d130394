package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/bloombox/backend/pkg/cache"
)

// CacheLocker takes the tick lock with SET NX in the shared cache. The lock
// is never released early; it expires with the tick interval.
type CacheLocker struct {
	Cache cache.Cache
	Owner string
}

func NewCacheLocker(c cache.Cache) *CacheLocker {
	host, _ := os.Hostname()
	return &CacheLocker{Cache: c, Owner: host}
}

func (l *CacheLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Cache.SetNX(ctx, l.Cache.GenerateKey("lock", key), l.Owner, ttl)
}

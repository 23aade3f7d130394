package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a small key/value store with per-key expiry. Get returns "" and
// a nil error for a missing or expired key.
type Cache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	GenerateKey(operation, key string) string
}

func generateKey(serviceName, operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", serviceName, operation, key)
}

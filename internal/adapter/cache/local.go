package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/ports"
)

// ErrKeyNotFound is returned on a miss, mirroring the redis adapter's
// behavior so callers treat both backends alike.
var ErrKeyNotFound = errors.New("cache: key not found")

type localEntry struct {
	payload  string
	deadline time.Time
}

func (e localEntry) live(now time.Time) bool {
	return e.deadline.IsZero() || now.Before(e.deadline)
}

// LocalCache is the in-process ports.Cache backing the pricing memo in
// cache-less deployments and the service unit tests. Expired entries
// are invisible immediately and reaped by a janitor goroutine.
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	done    chan struct{}
	log     *zap.Logger
}

func NewLocalCache(janitorInterval time.Duration, log *zap.Logger) ports.Cache {
	if janitorInterval <= 0 {
		janitorInterval = time.Minute
	}
	c := &LocalCache{
		entries: make(map[string]localEntry),
		done:    make(chan struct{}),
		log:     log,
	}
	go c.janitor(janitorInterval)
	return c
}

func (c *LocalCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !entry.live(time.Now()) {
		return "", ErrKeyNotFound
	}
	return entry.payload, nil
}

func (c *LocalCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	payload, err := stringify(value)
	if err != nil {
		return err
	}

	entry := localEntry{payload: payload}
	if expiration > 0 {
		entry.deadline = time.Now().Add(expiration)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Ping() error { return nil }

func (c *LocalCache) Close() error {
	close(c.done)
	return nil
}

// stringify matches what go-redis accepts for values: strings and
// bytes pass through, everything else is stored as JSON.
func stringify(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cache: marshal value: %w", err)
		}
		return string(data), nil
	}
}

func (c *LocalCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			reaped := 0
			for key, entry := range c.entries {
				if !entry.live(now) {
					delete(c.entries, key)
					reaped++
				}
			}
			c.mu.Unlock()
			if reaped > 0 {
				c.log.Debug("Reaped expired cache entries", zap.Int("count", reaped))
			}
		}
	}
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/ports"
)

const onlineKeyPrefix = "ocpp:online:"

// RedisBus implements ports.Bus on a single redis instance: pub/sub
// for topics, plain keys with TTL for station presence and the
// pending-session index.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisBus(url, password string, log *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Successfully connected to Redis")
	return &RedisBus{client: client, log: log}, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	sub := b.client.Subscribe(ctx, topic)

	// Receive forces the SUBSCRIBE round-trip so WaitForSubscription
	// observers see the topic as subscribed once we return.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		close(done)
		if err := sub.Close(); err != nil {
			b.log.Warn("Failed to close subscription", zap.String("topic", topic), zap.Error(err))
		}
	}
	return out, cancel, nil
}

// WaitForSubscription polls PUBSUB NUMSUB until someone holds the
// topic. Publishers use it on first connect so a command does not race
// the actor's subscribe.
func (b *RedisBus) WaitForSubscription(ctx context.Context, topic string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		counts, err := b.client.PubSubNumSub(ctx, topic).Result()
		if err == nil && counts[topic] > 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}

func (b *RedisBus) SetOnline(ctx context.Context, stationID string, ttl time.Duration) error {
	return b.client.Set(ctx, onlineKeyPrefix+stationID, "1", ttl).Err()
}

func (b *RedisBus) RefreshOnline(ctx context.Context, stationID string, ttl time.Duration) error {
	return b.client.Set(ctx, onlineKeyPrefix+stationID, "1", ttl).Err()
}

func (b *RedisBus) SetOffline(ctx context.Context, stationID string) error {
	return b.client.Del(ctx, onlineKeyPrefix+stationID).Err()
}

func (b *RedisBus) IsOnline(ctx context.Context, stationID string) (bool, error) {
	n, err := b.client.Exists(ctx, onlineKeyPrefix+stationID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisBus) ListOnline(ctx context.Context) ([]string, error) {
	var (
		cursor   uint64
		stations []string
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, onlineKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			stations = append(stations, key[len(onlineKeyPrefix):])
		}
		cursor = next
		if cursor == 0 {
			return stations, nil
		}
	}
}

func (b *RedisBus) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// Get returns "" with no error when the key does not exist.
func (b *RedisBus) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (b *RedisBus) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

var _ ports.Bus = (*RedisBus)(nil)

package mocks

import (
	"context"
	"sync"
	"time"
)

// MockBus is an in-memory implementation of the Bus interface. Default
// behavior records publishes and keys so tests can assert on them; any
// func field overrides the corresponding method.
type MockBus struct {
	mu        sync.Mutex
	Published map[string][][]byte
	Keys      map[string]string
	Online    map[string]bool
	subs      map[string][]chan []byte

	PublishFunc             func(ctx context.Context, topic string, payload []byte) error
	WaitForSubscriptionFunc func(ctx context.Context, topic string, timeout time.Duration) bool
	IsOnlineFunc            func(ctx context.Context, stationID string) (bool, error)
}

func NewMockBus() *MockBus {
	return &MockBus{
		Published: make(map[string][][]byte),
		Keys:      make(map[string]string),
		Online:    make(map[string]bool),
		subs:      make(map[string][]chan []byte),
	}
}

func (m *MockBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published[topic] = append(m.Published[topic], payload)
	for _, ch := range m.subs[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (m *MockBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan []byte, 16)
	m.subs[topic] = append(m.subs[topic], ch)
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		chans := m.subs[topic]
		for i, c := range chans {
			if c == ch {
				m.subs[topic] = append(chans[:i], chans[i+1:]...)
				close(c)
				break
			}
		}
	}
	return ch, cancel, nil
}

func (m *MockBus) WaitForSubscription(ctx context.Context, topic string, timeout time.Duration) bool {
	if m.WaitForSubscriptionFunc != nil {
		return m.WaitForSubscriptionFunc(ctx, topic, timeout)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topic]) > 0
}

func (m *MockBus) SetOnline(ctx context.Context, stationID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Online[stationID] = true
	return nil
}

func (m *MockBus) RefreshOnline(ctx context.Context, stationID string, ttl time.Duration) error {
	return m.SetOnline(ctx, stationID, ttl)
}

func (m *MockBus) SetOffline(ctx context.Context, stationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Online, stationID)
	return nil
}

func (m *MockBus) IsOnline(ctx context.Context, stationID string) (bool, error) {
	if m.IsOnlineFunc != nil {
		return m.IsOnlineFunc(ctx, stationID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Online[stationID], nil
}

func (m *MockBus) ListOnline(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, on := range m.Online {
		if on {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MockBus) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keys[key] = value
	return nil
}

func (m *MockBus) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Keys[key], nil
}

func (m *MockBus) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Keys, key)
	return nil
}

func (m *MockBus) Close() error { return nil }

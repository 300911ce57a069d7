package bus

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupTestBus brings up a throwaway redis. Set TEST_REDIS_URL to reuse
// an external instance (CI).
func setupTestBus(t *testing.T) *RedisBus {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	url := os.Getenv("TEST_REDIS_URL")

	if url == "" {
		ctx := context.Background()
		container, err := tcredis.RunContainer(ctx,
			testcontainers.WithImage("redis:7-alpine"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("Ready to accept connections").
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Skipf("could not start redis container: %v", err)
		}
		t.Cleanup(func() {
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("failed to terminate redis container: %v", err)
			}
		})

		host, err := container.Host(ctx)
		if err != nil {
			t.Fatalf("failed to get redis host: %v", err)
		}
		port, err := container.MappedPort(ctx, "6379")
		if err != nil {
			t.Fatalf("failed to get redis port: %v", err)
		}
		url = fmt.Sprintf("redis://%s:%s", host, port.Port())
	}

	b, err := NewRedisBus(url, "", logger)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	// Arrange
	b := setupTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch, unsubscribe, err := b.Subscribe(ctx, "cmd:EVP-001")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer unsubscribe()

	if !b.WaitForSubscription(ctx, "cmd:EVP-001", 5*time.Second) {
		t.Fatal("expected subscription to be visible")
	}

	// Act
	if err := b.Publish(ctx, "cmd:EVP-001", []byte(`{"action":"RemoteStartTransaction"}`)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Assert
	select {
	case msg := <-ch:
		if string(msg) != `{"action":"RemoteStartTransaction"}` {
			t.Errorf("unexpected payload: %s", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestRedisBus_OnlinePresence(t *testing.T) {
	// Arrange
	b := setupTestBus(t)
	ctx := context.Background()

	// Act
	if err := b.SetOnline(ctx, "EVP-001", time.Minute); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := b.SetOnline(ctx, "EVP-002", time.Minute); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Assert
	online, err := b.IsOnline(ctx, "EVP-001")
	if err != nil || !online {
		t.Fatalf("expected EVP-001 online, got %v err=%v", online, err)
	}

	stations, err := b.ListOnline(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(stations) != 2 {
		t.Errorf("expected 2 online stations, got %d", len(stations))
	}

	if err := b.SetOffline(ctx, "EVP-001"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	online, _ = b.IsOnline(ctx, "EVP-001")
	if online {
		t.Error("expected EVP-001 offline after SetOffline")
	}
}

func TestRedisBus_PresenceExpires(t *testing.T) {
	// Arrange
	b := setupTestBus(t)
	ctx := context.Background()

	// Act
	if err := b.SetOnline(ctx, "EVP-003", 500*time.Millisecond); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	time.Sleep(time.Second)

	// Assert
	online, err := b.IsOnline(ctx, "EVP-003")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if online {
		t.Error("expected presence key to expire")
	}
}

func TestRedisBus_PendingKeys(t *testing.T) {
	// Arrange
	b := setupTestBus(t)
	ctx := context.Background()

	// Act
	if err := b.Set(ctx, "pending:EVP-001:1", "session-1", time.Minute); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Assert
	val, err := b.Get(ctx, "pending:EVP-001:1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if val != "session-1" {
		t.Errorf("expected session-1, got %q", val)
	}

	// Missing keys read as empty, not as an error.
	val, err = b.Get(ctx, "pending:EVP-001:2")
	if err != nil {
		t.Fatalf("expected no error for missing key, got %v", err)
	}
	if val != "" {
		t.Errorf("expected empty value for missing key, got %q", val)
	}

	if err := b.Delete(ctx, "pending:EVP-001:1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	val, _ = b.Get(ctx, "pending:EVP-001:1")
	if val != "" {
		t.Error("expected key gone after delete")
	}
}

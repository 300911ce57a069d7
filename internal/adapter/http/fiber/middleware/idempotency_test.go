package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// memoryIdempotencyRepo backs the middleware with an in-memory map so
// replay behavior can be observed across requests.
type memoryIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newMemoryIdempotencyRepo() *mocks.MockIdempotencyRepository {
	store := &memoryIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
	return &mocks.MockIdempotencyRepository{
		FindFunc: func(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
			store.mu.Lock()
			defer store.mu.Unlock()
			return store.records[key], nil
		},
		SaveFunc: func(ctx context.Context, record *domain.IdempotencyRecord) error {
			store.mu.Lock()
			defer store.mu.Unlock()
			store.records[record.Key] = record
			return nil
		},
	}
}

func newIdempotencyApp(repo *mocks.MockIdempotencyRepository, handlerCalls *int) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(newTestLogger())})
	app.Use(Idempotency(repo, newTestLogger()))
	app.Post("/api/v1/charging/start", func(c *fiber.Ctx) error {
		*handlerCalls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "session_id": "session-1"})
	})
	app.Post("/api/v1/other", func(c *fiber.Ctx) error {
		*handlerCalls++
		return c.JSON(fiber.Map{"success": true})
	})
	return app
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	// Arrange
	calls := 0
	app := newIdempotencyApp(newMemoryIdempotencyRepo(), &calls)
	body := `{"station_id":"EVP-001","connector_id":1}`

	first := httptest.NewRequest("POST", "/api/v1/charging/start", strings.NewReader(body))
	first.Header.Set("Content-Type", "application/json")
	first.Header.Set(IdempotencyHeader, "key-1")

	// Act
	resp1, err := app.Test(first)
	if err != nil {
		t.Fatal(err)
	}

	// Same key, whitespace-shuffled but equivalent body.
	retryBody := `{ "connector_id": 1, "station_id": "EVP-001" }`
	second := httptest.NewRequest("POST", "/api/v1/charging/start", strings.NewReader(retryBody))
	second.Header.Set("Content-Type", "application/json")
	second.Header.Set(IdempotencyHeader, "key-1")
	resp2, err := app.Test(second)
	if err != nil {
		t.Fatal(err)
	}

	// Assert
	if calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls)
	}
	if resp1.StatusCode != fiber.StatusCreated || resp2.StatusCode != fiber.StatusCreated {
		t.Errorf("expected both responses 201, got %d and %d", resp1.StatusCode, resp2.StatusCode)
	}
	if resp2.Header.Get("X-Idempotency-Replay") != "true" {
		t.Error("expected replay marker on second response")
	}
	body1, _ := io.ReadAll(resp1.Body)
	body2, _ := io.ReadAll(resp2.Body)
	if string(body1) != string(body2) {
		t.Errorf("expected identical bodies, got %s vs %s", body1, body2)
	}
}

func TestIdempotency_KeyReuseWithDifferentBodyRefused(t *testing.T) {
	// Arrange
	calls := 0
	app := newIdempotencyApp(newMemoryIdempotencyRepo(), &calls)

	first := httptest.NewRequest("POST", "/api/v1/charging/start", strings.NewReader(`{"station_id":"EVP-001"}`))
	first.Header.Set(IdempotencyHeader, "key-1")
	if _, err := app.Test(first); err != nil {
		t.Fatal(err)
	}

	// Act: same key, different request
	second := httptest.NewRequest("POST", "/api/v1/charging/start", strings.NewReader(`{"station_id":"EVP-002"}`))
	second.Header.Set(IdempotencyHeader, "key-1")
	resp, err := app.Test(second)
	if err != nil {
		t.Fatal(err)
	}

	// Assert
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
	if calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls)
	}
}

func TestIdempotency_MissingKeySynthesized(t *testing.T) {
	// Arrange
	calls := 0
	app := newIdempotencyApp(newMemoryIdempotencyRepo(), &calls)
	req := httptest.NewRequest("POST", "/api/v1/charging/start", strings.NewReader(`{}`))

	// Act
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}

	// Assert: the synthesized key is echoed back to the client
	key := resp.Header.Get(IdempotencyHeader)
	if !strings.HasPrefix(key, "auto-") {
		t.Errorf("expected synthesized auto- key, got %q", key)
	}
}

func TestIdempotency_IgnoresUncoveredPaths(t *testing.T) {
	// Arrange
	calls := 0
	finds := 0
	repo := &mocks.MockIdempotencyRepository{
		FindFunc: func(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
			finds++
			return nil, nil
		},
	}
	app := newIdempotencyApp(repo, &calls)

	// Act
	req := httptest.NewRequest("POST", "/api/v1/other", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyHeader, "key-1")
	if _, err := app.Test(req); err != nil {
		t.Fatal(err)
	}

	// Assert
	if finds != 0 {
		t.Errorf("expected no idempotency lookup for uncovered path, got %d", finds)
	}
	if calls != 1 {
		t.Errorf("expected handler to run, ran %d times", calls)
	}
}

package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

const IdempotencyHeader = "Idempotency-Key"

// Paths whose POST mutations are deduplicated.
var idempotentPaths = map[string]bool{
	"/api/v1/charging/start": true,
	"/api/v1/charging/stop":  true,
	"/api/v1/balance/topup":  true,
}

// Idempotency replays the stored response for a repeated key and
// refuses key reuse with a different request. Requests without a key
// get a synthesized one so every mutation is recorded.
func Idempotency(repo ports.IdempotencyRepository, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost || !idempotentPaths[c.Path()] {
			return c.Next()
		}

		key := c.Get(IdempotencyHeader)
		if key == "" {
			key = "auto-" + uuid.New().String()
		}
		c.Set(IdempotencyHeader, key)

		bodyHash := hashBody(c.Body())

		record, err := repo.Find(c.Context(), key)
		if err != nil {
			log.Warn("Idempotency lookup failed", zap.Error(err))
			return c.Next()
		}
		if record != nil {
			if record.Method != c.Method() || record.Path != c.Path() || record.BodyHash != bodyHash {
				return domain.ErrInvalidRequest.WithMessage("idempotency key reused with a different request")
			}
			c.Set("X-Idempotency-Replay", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(record.StatusCode).SendString(record.ResponseBody)
		}

		if err := c.Next(); err != nil {
			return err
		}

		record = &domain.IdempotencyRecord{
			Key:          key,
			Method:       c.Method(),
			Path:         c.Path(),
			BodyHash:     bodyHash,
			ResponseBody: string(c.Response().Body()),
			StatusCode:   c.Response().StatusCode(),
			CreatedAt:    time.Now().UTC(),
		}
		if err := repo.Save(c.Context(), record); err != nil {
			log.Warn("Failed to save idempotency record", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
}

// hashBody hashes the canonical JSON form so key order and whitespace
// differences do not break replay matching.
func hashBody(body []byte) string {
	canonical := body
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err == nil {
		if encoded, err := json.Marshal(decoded); err == nil {
			canonical = encoded
		}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

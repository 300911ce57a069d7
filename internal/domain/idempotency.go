package domain

import (
	"time"
)

// IdempotencyRecord deduplicates retried POST mutations. The key is
// primary; records older than RetentionPeriod are purged by the
// cleanup worker.
type IdempotencyRecord struct {
	Key          string    `json:"key" gorm:"primaryKey"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	BodyHash     string    `json:"body_hash"`
	ResponseBody string    `json:"response_body"`
	StatusCode   int       `json:"status_code"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

const IdempotencyRetention = 24 * time.Hour

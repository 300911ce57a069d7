package queue

import (
	"strings"

	"go.uber.org/zap"
)

// MessageQueue defines the interface for a message queue adapter
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	// Connected reports the live broker connection state for health
	// checks.
	Connected() bool
	Close() error
}

// New picks the queue backend by URL scheme: amqp(s):// selects
// RabbitMQ, everything else NATS.
func New(url string, log *zap.Logger) (MessageQueue, error) {
	if strings.HasPrefix(url, "amqp://") || strings.HasPrefix(url, "amqps://") {
		return NewRabbitMQQueue(url, log)
	}
	return NewNATSQueue(url, log)
}

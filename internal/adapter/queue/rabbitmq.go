package queue

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const redialDelay = 5 * time.Second

// RabbitMQQueue publishes events to fanout exchanges, one per subject,
// so the broker mirrors NATS subject semantics. Lost connections are
// redialed in the background.
type RabbitMQQueue struct {
	url string
	log *zap.Logger

	mu       sync.RWMutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
}

func NewRabbitMQQueue(url string, log *zap.Logger) (MessageQueue, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}

	q := &RabbitMQQueue{
		url:      url,
		log:      log,
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
	}
	go q.redialLoop()

	log.Info("Connected to RabbitMQ", zap.String("url", url))
	return q, nil
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	return conn, ch, nil
}

// ensureExchange declares the subject's fanout exchange once per
// connection. Caller holds at least the read lock.
func (q *RabbitMQQueue) ensureExchange(subject string) error {
	if q.declared[subject] {
		return nil
	}
	if err := q.channel.ExchangeDeclare(subject, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange %s: %w", subject, err)
	}
	q.declared[subject] = true
	return nil
}

func (q *RabbitMQQueue) Publish(subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel == nil {
		return fmt.Errorf("rabbitmq: not connected")
	}
	if err := q.ensureExchange(subject); err != nil {
		return err
	}

	err := q.channel.Publish(subject, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        data,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", subject, err)
	}
	return nil
}

func (q *RabbitMQQueue) Subscribe(subject string, handler func(data []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel == nil {
		return fmt.Errorf("rabbitmq: not connected")
	}
	if err := q.ensureExchange(subject); err != nil {
		return err
	}

	// An exclusive auto-deleted queue per subscriber: every consumer
	// sees every event, matching NATS fan-out.
	queue, err := q.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}
	if err := q.channel.QueueBind(queue.Name, "", subject, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue: %w", err)
	}
	deliveries, err := q.channel.Consume(queue.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}

	go func() {
		for msg := range deliveries {
			if err := handler(msg.Body); err != nil {
				q.log.Error("Event handler failed",
					zap.String("subject", subject),
					zap.Error(err))
			}
		}
	}()
	return nil
}

func (q *RabbitMQQueue) Connected() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.conn != nil && !q.conn.IsClosed()
}

func (q *RabbitMQQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func (q *RabbitMQQueue) redialLoop() {
	for {
		q.mu.RLock()
		conn := q.conn
		q.mu.RUnlock()

		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error))
		if !ok {
			// Closed deliberately.
			return
		}
		q.log.Warn("RabbitMQ connection lost", zap.String("reason", reason.Reason))

		for {
			time.Sleep(redialDelay)
			newConn, ch, err := dial(q.url)
			if err != nil {
				q.log.Error("RabbitMQ redial failed", zap.Error(err))
				continue
			}

			q.mu.Lock()
			q.conn = newConn
			q.channel = ch
			q.declared = make(map[string]bool)
			q.mu.Unlock()

			q.log.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

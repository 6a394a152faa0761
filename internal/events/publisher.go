// Package events publishes progression events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/quizgate/internal/progress"
)

const (
	DefaultExchange = "quizgate.events"

	RoutingModuleUnlocked = "module.unlocked"
	RoutingAttemptGraded  = "attempt.graded"
)

// Envelope is the message body on the wire.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher implements progress.Unlocker and progress.Notifier. With an empty
// URI it is disabled and every publish is a no-op.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
	log      logrus.FieldLogger
	now      func() time.Time
}

var (
	_ progress.Unlocker = (*Publisher)(nil)
	_ progress.Notifier = (*Publisher)(nil)
)

func NewPublisher(uri, exchange string, log logrus.FieldLogger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &Publisher{exchange: exchange, log: log, now: time.Now}
	if uri == "" {
		log.Warn("RABBITMQ_URI is empty, event publishing is disabled")
		return p, nil
	}

	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p.conn, p.channel, p.enabled = conn, ch, true
	return p, nil
}

func (p *Publisher) Enabled() bool { return p.enabled }

func (p *Publisher) UnlockNext(ctx context.Context, u progress.Unlock) error {
	return p.publish(ctx, RoutingModuleUnlocked, u)
}

func (p *Publisher) Notify(ctx context.Context, n progress.Notice) error {
	return p.publish(ctx, RoutingAttemptGraded, n)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, data any) error {
	if !p.enabled {
		p.log.WithField("routing_key", routingKey).Debug("event publishing disabled, skipping")
		return nil
	}
	body, err := Encode(routingKey, data, p.now())
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(
		pubCtx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.WithField("routing_key", routingKey).Debug("event published")
	return nil
}

// Encode renders one event body.
func Encode(routingKey string, data any, at time.Time) ([]byte, error) {
	body, err := json.Marshal(Envelope{Type: routingKey, OccurredAt: at.UTC(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", routingKey, err)
	}
	return body, nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

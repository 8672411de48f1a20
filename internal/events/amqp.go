package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

// AMQPPublisher publishes status events to a RabbitMQ exchange. The
// connection is lazy and re-established on demand; publishes use persistent
// delivery so events survive a broker restart.
type AMQPPublisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	routeKey string
	logger   log.Logger

	conn    *amqp.Connection
	channel *amqp.Channel

	dial func(string) (*amqp.Connection, error)
}

// NewAMQPPublisher wires a publisher for the given broker URL, exchange and
// routing key. No connection is made until the first publish.
func NewAMQPPublisher(url, exchange, routeKey string, logger log.Logger) *AMQPPublisher {
	if logger == nil {
		logger = log.NewNop()
	}

	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		routeKey: routeKey,
		logger:   logger,
		dial:     amqp.Dial,
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event StatusEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	ch, err := p.ensureChannel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.exchange, p.routeKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		// Drop the broken channel so the next publish redials.
		p.reset()

		return fmt.Errorf("publish status event: %w", err)
	}

	p.logger.Log(ctx, log.LevelDebug, "status event published",
		log.String("transaction_id", event.TransactionID),
		log.String("status", string(event.Status)),
	)

	return nil
}

// Close tears down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}

	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil

		return err
	}

	return nil
}

func (p *AMQPPublisher) ensureChannel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil && !p.channel.IsClosed() {
		return p.channel, nil
	}

	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}

		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()

		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p.channel = ch

	return ch, nil
}

func (p *AMQPPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
}

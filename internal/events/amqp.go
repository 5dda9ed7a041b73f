package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// Broker publishes to and consumes from the charity topic exchange on an AMQP
// broker such as RabbitMQ. The publishing channel is created lazily and
// reused; a dropped connection is redialed on the next publish.
type Broker struct {
	uri    string
	dial   dialFunc
	logger zerolog.Logger

	mu   sync.Mutex
	conn conn
	ch   channel
}

type dialFunc func(uri string) (conn, error)

// conn is the part of *amqp.Connection the broker uses.
type conn interface {
	channel() (channel, error)
	IsClosed() bool
	Close() error
}

// channel is the part of *amqp.Channel the broker uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConn struct{ *amqp.Connection }

func (c amqpConn) channel() (channel, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(uri string) (conn, error) {
	c, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}
	return amqpConn{c}, nil
}

// Dial connects to uri and declares the exchange.
func Dial(uri string, logger zerolog.Logger) (*Broker, error) {
	return dial(uri, dialAMQP, logger)
}

func dial(uri string, dialer dialFunc, logger zerolog.Logger) (*Broker, error) {
	c, err := dialer(uri)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	if err := declare(c); err != nil {
		c.Close()
		return nil, err
	}
	logger.Info().Str("exchange", Exchange).Msg("amqp broker connected")
	return &Broker{uri: uri, dial: dialer, logger: logger, conn: c}, nil
}

// Setup declares the durable topic exchange on a one-use channel.
func (b *Broker) Setup() error {
	b.mu.Lock()
	c := b.conn
	b.mu.Unlock()
	return declare(c)
}

func declare(c conn) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	return ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

func (b *Broker) PublishDonation(ctx context.Context, evt DonationEvent) error {
	return b.publish(ctx, KeyDonationConfirmed, evt)
}

func (b *Broker) PublishProject(ctx context.Context, evt ProjectEvent) error {
	return b.publish(ctx, KeyProjectCreated, evt)
}

func (b *Broker) publish(ctx context.Context, key string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	msg := amqp.Publishing{
		Headers:      amqp.Table{"x-event-name": key},
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	err = b.publishLocked(key, msg)
	if err != nil {
		b.logger.Warn().Err(err).Str("routing_key", key).Msg("amqp publish failed, retrying")
		err = b.publishLocked(key, msg)
	}
	if err != nil {
		b.logger.Error().Err(err).Str("routing_key", key).Msg("amqp publish failed")
		return fmt.Errorf("amqp publish %s: %w", key, err)
	}
	return nil
}

func (b *Broker) publishLocked(key string, msg amqp.Publishing) error {
	ch, err := b.channelLocked()
	if err != nil {
		return err
	}
	if err := ch.Publish(Exchange, key, false, false, msg); err != nil {
		// a failed publish closes the channel; drop it so the next call reopens
		_ = ch.Close()
		b.ch = nil
		return err
	}
	return nil
}

// channelLocked returns the publishing channel, redialing first when the
// connection has dropped.
func (b *Broker) channelLocked() (channel, error) {
	if b.ch != nil {
		return b.ch, nil
	}
	if b.conn.IsClosed() {
		c, err := b.dial(b.uri)
		if err != nil {
			return nil, fmt.Errorf("amqp redial: %w", err)
		}
		if err := declare(c); err != nil {
			c.Close()
			return nil, fmt.Errorf("amqp redial: %w", err)
		}
		b.conn = c
		b.logger.Info().Str("exchange", Exchange).Msg("amqp broker reconnected")
	}
	ch, err := b.conn.channel()
	if err != nil {
		// the connection is unusable; close it so the next attempt redials
		_ = b.conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	b.ch = ch
	return ch, nil
}

// Consume binds a durable queue to keys and dispatches deliveries to h until
// ctx is cancelled or the channel closes. Each delivery is acked after h
// returns; a handler error requeues it once and drops it on redelivery.
func (b *Broker) Consume(ctx context.Context, queue string, keys []string, h Handler) error {
	b.mu.Lock()
	c := b.conn
	b.mu.Unlock()
	ch, err := c.channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, key := range keys {
		if err := ch.QueueBind(queue, key, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", queue, key, err)
		}
	}
	if err := ch.Qos(8, 0, false); err != nil {
		return err
	}
	deliveries, err := ch.Consume(queue, queue+"-consumer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			if err := h.Dispatch(ctx, d.RoutingKey, d.Body); err != nil {
				b.logger.Error().Err(err).Str("routing_key", d.RoutingKey).Bool("redelivered", d.Redelivered).Msg("event handler failed")
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Close terminates the channel and the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		if err := b.ch.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("closing amqp channel")
		}
		b.ch = nil
	}
	return b.conn.Close()
}

var _ Publisher = (*Broker)(nil)

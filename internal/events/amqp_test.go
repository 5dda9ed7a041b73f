package events

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

type fakeChannel struct {
	conn      *fakeConn
	published []string
	exchanges []string
}

func (c *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	c.exchanges = append(c.exchanges, name)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(string, string, string, bool, amqp.Table) error { return nil }

func (c *fakeChannel) Qos(int, int, bool) error { return nil }

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return make(chan amqp.Delivery), nil
}

func (c *fakeChannel) Publish(_, key string, _, _ bool, _ amqp.Publishing) error {
	if c.conn.closed {
		return amqp.ErrClosed
	}
	c.published = append(c.published, key)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

type fakeConn struct {
	closed   bool
	channels []*fakeChannel
}

func (c *fakeConn) channel() (channel, error) {
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &fakeChannel{conn: c}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) IsClosed() bool { return c.closed }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) published() []string {
	var out []string
	for _, ch := range c.channels {
		out = append(out, ch.published...)
	}
	return out
}

func (c *fakeConn) declared() bool {
	for _, ch := range c.channels {
		if len(ch.exchanges) > 0 && ch.exchanges[0] == Exchange {
			return true
		}
	}
	return false
}

type fakeDialer struct {
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) dial(string) (conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{}
	d.conns = append(d.conns, c)
	return c, nil
}

func TestBrokerRedialsDroppedConnection(t *testing.T) {
	dialer := &fakeDialer{}
	b, err := dial("amqp://test", dialer.dial, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	ctx := context.Background()
	if err := b.PublishDonation(ctx, DonationEvent{DonationID: 1}); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	dialer.conns[0].closed = true
	if err := b.PublishDonation(ctx, DonationEvent{DonationID: 2}); err != nil {
		t.Fatalf("publish after drop: %v", err)
	}
	if len(dialer.conns) != 2 {
		t.Fatalf("dials = %d, want 2", len(dialer.conns))
	}
	fresh := dialer.conns[1]
	if !fresh.declared() {
		t.Fatal("exchange not declared on the new connection")
	}
	if got := fresh.published(); len(got) != 1 || got[0] != KeyDonationConfirmed {
		t.Fatalf("published on new connection = %v", got)
	}
	if err := b.PublishProject(ctx, ProjectEvent{ProjectID: 3}); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	if len(dialer.conns) != 2 {
		t.Fatalf("healthy connection redialed: %d dials", len(dialer.conns))
	}
}

func TestBrokerPublishFailsWhileBrokerDown(t *testing.T) {
	dialer := &fakeDialer{}
	b, err := dial("amqp://test", dialer.dial, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	ctx := context.Background()

	dialer.conns[0].closed = true
	dialer.err = errors.New("connection refused")
	if err := b.PublishDonation(ctx, DonationEvent{DonationID: 1}); err == nil {
		t.Fatal("expected publish error while the broker is down")
	}

	dialer.err = nil
	if err := b.PublishDonation(ctx, DonationEvent{DonationID: 2}); err != nil {
		t.Fatalf("publish after recovery: %v", err)
	}
	last := dialer.conns[len(dialer.conns)-1]
	if got := last.published(); len(got) != 1 {
		t.Fatalf("published = %v", got)
	}
}

func TestBrokerDialFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	if _, err := dial("amqp://test", dialer.dial, zerolog.Nop()); err == nil {
		t.Fatal("expected dial error")
	}
}

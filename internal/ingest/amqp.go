package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/freshness-monitor/backend/internal/evaluator"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AMQPOptions configures the reading queue.
type AMQPOptions struct {
	URL        string
	Exchange   string // empty consumes the queue without binding
	Queue      string
	RoutingKey string
	Prefetch   int
}

// AMQPConsumer evaluates readings delivered through a RabbitMQ queue.
// Deliveries are processed one at a time so the engine sees them in order.
type AMQPConsumer struct {
	opts    AMQPOptions
	proc    Processor
	log     logrus.FieldLogger
	conn    *amqp.Connection
	channel *amqp.Channel
}

// DialAMQP connects and declares the queue (and its binding).
func DialAMQP(opts AMQPOptions, proc Processor, log logrus.FieldLogger) (*AMQPConsumer, error) {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	c := &AMQPConsumer{
		opts:    opts,
		proc:    proc,
		log:     log.WithFields(logrus.Fields{"component": "amqp", "queue": opts.Queue}),
		conn:    conn,
		channel: ch,
	}
	if err := c.declare(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *AMQPConsumer) declare() error {
	if c.opts.Exchange != "" {
		if err := c.channel.ExchangeDeclare(c.opts.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", c.opts.Exchange, err)
		}
	}

	if _, err := c.channel.QueueDeclare(c.opts.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.opts.Queue, err)
	}

	if c.opts.Exchange != "" {
		if err := c.channel.QueueBind(c.opts.Queue, c.opts.RoutingKey, c.opts.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", c.opts.Queue, err)
		}
	}

	if err := c.channel.Qos(c.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.opts.Queue, err)
	}
	c.log.Info("consuming")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

// handleDelivery acks processed readings. Messages that can never succeed
// are dropped; anything else goes back on the queue.
func (c *AMQPConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	entry := c.log.WithField("tag", msg.DeliveryTag)

	reading, err := Decode(msg.Body)
	if err != nil {
		entry.WithError(err).Warn("dropping undecodable message")
		c.settle(entry, msg.Nack(false, false))
		return
	}

	if _, err := c.proc.Process(ctx, reading); err != nil {
		if errors.Is(err, evaluator.ErrMissingChannel) {
			entry.WithError(err).Warn("dropping incomplete reading")
			c.settle(entry, msg.Nack(false, false))
			return
		}
		entry.WithError(err).Error("failed to process reading, requeueing")
		c.settle(entry, msg.Nack(false, true))
		return
	}
	c.settle(entry, msg.Ack(false))
}

func (c *AMQPConsumer) settle(entry logrus.FieldLogger, err error) {
	if err != nil {
		entry.WithError(err).Error("failed to settle delivery")
	}
}

// Close closes the channel and connection.
func (c *AMQPConsumer) Close() error {
	var errs []error
	if c.channel != nil {
		errs = append(errs, c.channel.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// AMQPPublisher publishes changes as persistent JSON messages on a topic exchange,
// routed by Change.RoutingKey.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// DialAMQP connects to url and declares the durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	p := &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}

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
		p.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return p, nil
}

// PublishChange sends c to the exchange. Failures are logged and swallowed.
func (p *AMQPPublisher) PublishChange(ctx context.Context, c Change) {
	msg, err := publishing(c)
	if err != nil {
		slog.Error("amqp marshal failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,     // exchange
		c.RoutingKey(), // routing key
		false,          // mandatory
		false,          // immediate
		msg,
	)
	if err != nil {
		slog.Error("amqp publish failed",
			slog.String("routing_key", c.RoutingKey()),
			slog.String("error", err.Error()))
		return
	}
	slog.Debug("published change", slog.String("routing_key", c.RoutingKey()), slog.Int64("id", c.ID))
}

func publishing(c Change) (amqp091.Publishing, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return amqp091.Publishing{}, err
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    c.At,
		Type:         c.RoutingKey(),
		Body:         body,
	}, nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

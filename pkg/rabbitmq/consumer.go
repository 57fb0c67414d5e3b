/**
 * @description
 * This file provides the consumer half of the change-notifier transport. A
 * consumer binds a durable queue to the status topic exchange with one routing
 * key per subscribed status and dispatches deliveries to per-key handlers.
 * Handlers return true to acknowledge; false re-queues the delivery.
 *
 * @dependencies
 * - errors, log, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"errors"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Consumer holds the RabbitMQ connection and channel for receiving signals.
type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewConsumer dials RabbitMQ and opens a channel for consuming.
func NewConsumer(amqpURL string) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, channel: ch}, nil
}

// ConsumeWithBindings declares the topic exchange and a durable queue, binds
// the queue once per routing key, and starts a dispatch loop. A delivery whose
// routing key has no handler is acknowledged and dropped so it cannot wedge
// the queue.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	if len(bindings) == 0 {
		return errors.New("no bindings provided")
	}

	if err := c.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	queue, err := c.channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	handlers := make(map[string]func([]byte) bool, len(bindings))
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.channel.QueueBind(queue.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	deliveries, err := c.channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	log.Printf("level=info component=rabbitmq_consumer msg=\"consuming\" exchange=%s queue=%s bindings=%d", exchange, queue.Name, len(handlers))

	go func() {
		for delivery := range deliveries {
			handler, ok := handlers[delivery.RoutingKey]
			if !ok {
				log.Printf("level=warn component=rabbitmq_consumer msg=\"no handler for routing key; acknowledging to drop\" routing_key=%s", delivery.RoutingKey)
				delivery.Ack(false)
				continue
			}
			if handler(delivery.Body) {
				delivery.Ack(false)
			} else {
				log.Printf("level=warn component=rabbitmq_consumer msg=\"handler failed; re-queuing\" routing_key=%s", delivery.RoutingKey)
				delivery.Nack(false, true)
			}
		}
		log.Printf("level=info component=rabbitmq_consumer msg=\"delivery stream closed\" queue=%s", queueName)
	}()

	return nil
}

// Close tears down the channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

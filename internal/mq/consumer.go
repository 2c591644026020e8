package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение. Ошибка приводит к nack без requeue,
// и сообщение уходит в DLQ (если настроена для очереди).
type Handler func(ctx context.Context, msg Message) error

// Consumer читает сообщения из очереди и передаёт их обработчику.
type Consumer struct {
	conn     *Connection
	queue    string
	prefetch int
	logger   *slog.Logger
}

// ConsumerConfig — параметры consumer.
type ConsumerConfig struct {
	Queue    string
	Prefetch int // 0 => 1
	Logger   *slog.Logger
}

// NewConsumer создаёт consumer для очереди.
func NewConsumer(conn *Connection, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consumer{
		conn:     conn,
		queue:    cfg.Queue,
		prefetch: cfg.Prefetch,
		logger:   cfg.Logger,
	}
}

// Run потребляет сообщения до отмены контекста. Блокирующий вызов.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped", "queue", c.queue)
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				// канал закрыт: соединение оборвалось, вызывающая сторона
				// решает, перезапускать ли consumer
				return fmt.Errorf("delivery channel closed for queue %s", c.queue)
			}
			c.handleDelivery(ctx, d, handler)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error("malformed message, dropping",
			"queue", c.queue, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		c.logger.Error("message handling failed",
			"queue", c.queue, "type", msg.Type, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// ParsePayload декодирует payload сообщения в конкретный тип.
func ParsePayload[T any](msg Message) (T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return payload, fmt.Errorf("parse %s payload: %w", msg.Type, err)
	}
	return payload, nil
}

package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Типы сообщений.
const (
	MessageTypeExecutionPending   = "execution.pending"
	MessageTypeExecutionCompleted = "execution.completed"
)

// Message — конверт сообщения в очереди.
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ExecutionPendingPayload — payload сообщения execution.pending.
type ExecutionPendingPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
}

// ExecutionCompletedPayload — payload сообщения execution.completed.
type ExecutionCompletedPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	FlowID      uuid.UUID `json:"flow_id"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// Publisher публикует сообщения в exchange executions.
type Publisher struct {
	conn *Connection
}

// NewPublisher создаёт publisher на существующем соединении.
func NewPublisher(conn *Connection) *Publisher {
	return &Publisher{conn: conn}
}

// PublishExecutionPending публикует событие о новом execution.
func (p *Publisher) PublishExecutionPending(ctx context.Context, executionID uuid.UUID) error {
	return p.publish(ctx, RoutingKeyPending, MessageTypeExecutionPending,
		ExecutionPendingPayload{ExecutionID: executionID})
}

// PublishExecutionCompleted публикует событие о завершении execution.
func (p *Publisher) PublishExecutionCompleted(ctx context.Context, payload ExecutionCompletedPayload) error {
	return p.publish(ctx, RoutingKeyCompleted, MessageTypeExecutionCompleted, payload)
}

func (p *Publisher) publish(ctx context.Context, routingKey, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	body, err := json.Marshal(Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, ExchangeExecutions, routingKey, false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now().UTC(),
				Type:         msgType,
				Body:         body,
			})
		if err != nil {
			return fmt.Errorf("publish %s: %w", msgType, err)
		}
		return nil
	})
}

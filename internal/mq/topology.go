package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchanges.
const (
	ExchangeExecutions = "promptflow.executions"
	ExchangeDLQ        = "promptflow.dlq"
)

// Queues.
const (
	QueueExecutionsPending   = "executions.pending"
	QueueExecutionsCompleted = "executions.completed"
	QueueDLQExecutions       = "dlq.executions"
)

// Routing keys.
const (
	RoutingKeyPending   = "execution.pending"
	RoutingKeyCompleted = "execution.completed"
)

// DeclareTopology объявляет exchanges, очереди и bindings.
// Идемпотентна: повторный вызов на существующей топологии безопасен.
func DeclareTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []string{ExchangeExecutions, ExchangeDLQ} {
		err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	// executions.pending получает DLQ: необработанные сообщения
	// уходят в promptflow.dlq вместо потери.
	pendingArgs := amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLQ,
		"x-dead-letter-routing-key": RoutingKeyPending,
	}
	if _, err := ch.QueueDeclare(QueueExecutionsPending, true, false, false, false, pendingArgs); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueExecutionsPending, err)
	}
	if _, err := ch.QueueDeclare(QueueExecutionsCompleted, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueExecutionsCompleted, err)
	}
	if _, err := ch.QueueDeclare(QueueDLQExecutions, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueDLQExecutions, err)
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue, key, exchange string
	}{
		{QueueExecutionsPending, RoutingKeyPending, ExchangeExecutions},
		{QueueExecutionsCompleted, RoutingKeyCompleted, ExchangeExecutions},
		{QueueDLQExecutions, "#", ExchangeDLQ},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

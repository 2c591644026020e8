// Package mq — инфраструктура RabbitMQ для диспетчеризации executions.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - execution.pending    — новый execution ожидает выполнения
//   - execution.completed  — execution завершён
//
// Exchanges:
//   - promptflow.executions — события executions
//   - promptflow.dlq        — dead letter queue
package mq

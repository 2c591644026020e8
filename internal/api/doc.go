// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (репозитории, publisher, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - flow_handler.go      — обработчики для /flows
//   - execution_handler.go — обработчики для /executions
//   - schedule_handler.go  — обработчики для /schedules
//
// API предоставляет REST endpoints для управления flows, executions
// и schedules. Executions создаются через API в статусе pending
// и выполняются runner-сервисом, получающим их через RabbitMQ.
package api

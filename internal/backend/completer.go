// Package backend — клиент генеративного текстового backend'а.
//
// Движок видит backend как чёрный ящик complete(prompt, params) → text.
// Сюда же относится debug-режим, полностью пропускающий сетевой вызов.
package backend

import (
	"context"
	"errors"
)

// Request — параметры одного вызова генерации.
type Request struct {
	// Model — идентификатор модели.
	Model string

	// Prompt — итоговый текст, собранный компилятором шаблонов.
	Prompt string

	// Temperature — температура генерации.
	Temperature float64

	// MaxTokens — лимит токенов.
	MaxTokens int

	// Stream — флаг потоковой генерации из Flow.
	Stream bool

	// User — идентификатор пользователя для атрибуции и
	// rate-limiting на стороне backend'а. Пустая строка — без атрибуции.
	User string
}

// Completer — интерфейс генеративного backend'а.
type Completer interface {
	// Complete выполняет один вызов генерации и возвращает текст.
	Complete(ctx context.Context, req Request) (string, error)
}

// Ошибки backend'а.
var (
	// ErrRateLimited — backend ответил rate-limit сигналом.
	// Движок не делает автоматический retry — ошибка записывается
	// в StepResult как есть.
	ErrRateLimited = errors.New("backend rate limited")

	// ErrEmptyResponse — backend вернул пустой или отсутствующий текст.
	ErrEmptyResponse = errors.New("backend returned empty response")
)

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotConfigured — у провайдера нет ключа. Это не сбой сервиса, а конфигурация.
var ErrNotConfigured = errors.New("llm provider not configured")

// StatusError — провайдер ответил не-2xx.
type StatusError struct {
	Provider string
	Op       string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s %d: %s", e.Provider, e.Op, e.Code, e.Body)
}

type Engine interface {
	Name() string
	GetModel() string
	// Transcribe — vision-вызов, возвращает текст с картинки. temperature=0.
	Transcribe(ctx context.Context, system string, image []byte, mime string) (string, error)
	// CompleteJSON — текстовый вызов в JSON-режиме, возвращает сырой текст ответа. temperature=0.
	CompleteJSON(ctx context.Context, system, user string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Engines struct {
	OpenAI Engine
	Gemini Engine
}

func (e *Engines) GetEngine(llmName string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(llmName)) {
	case "gpt", "openai":
		if e.OpenAI != nil {
			return e.OpenAI, nil
		}
	case "gemini":
		if e.Gemini != nil {
			return e.Gemini, nil
		}
	default:
		return nil, fmt.Errorf("unknown llm_name %q; use 'openai' or 'gemini'", llmName)
	}
	return nil, fmt.Errorf("llm %q is not wired", llmName)
}

// Manager хранит выбранный провайдер для каждого чата.
type Manager struct {
	def string
	m   sync.Map // chatID -> string
}

func NewManager(defaultName string) *Manager {
	return &Manager{def: defaultName}
}

func (m *Manager) Get(chatID int64) string {
	if v, ok := m.m.Load(chatID); ok {
		return v.(string)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, name string) {
	m.m.Store(chatID, name)
}

package recommend

import (
	"errors"
	"fmt"

	"problem-recs/api/internal/llm"
)

// ConfigurationError — нет ключей апстрима. Наружу это "service unavailable", не ошибка ввода.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "service is not configured: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TranscriptionError — сервис распознавания ответил ошибкой или не ответил.
type TranscriptionError struct {
	Status  int
	Message string
	Err     error
}

func (e *TranscriptionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transcription failed (upstream %d): %s", e.Status, e.Message)
	}
	return "transcription failed: " + e.Message
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// ContentError — текста слишком мало, чтобы что-то подобрать.
type ContentError struct {
	Length int
	Min    int
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("insufficient content: extracted %d characters, need at least %d", e.Length, e.Min)
}

// DatabaseError — запрос к хранилищу без запасного пути.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return "database " + e.Op + ": " + e.Err.Error()
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// RankingError — упал и основной ранжировщик, и поиск по эмбеддингам.
type RankingError struct {
	PrimaryReason string
	Err           error
}

func (e *RankingError) Error() string {
	return fmt.Sprintf("ranking failed (primary: %s; fallback: %v)", e.PrimaryReason, e.Err)
}

func (e *RankingError) Unwrap() error { return e.Err }

// transcriptionErr раскладывает ошибку провайдера по таксономии.
func transcriptionErr(err error) error {
	if errors.Is(err, llm.ErrNotConfigured) {
		return &ConfigurationError{Err: err}
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return &TranscriptionError{Status: se.Code, Message: se.Body, Err: err}
	}
	return &TranscriptionError{Message: err.Error(), Err: err}
}

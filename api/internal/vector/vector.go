package vector

import (
	"context"

	"problem-recs/api/internal/recommend"
)

// Index — хранилище эмбеддингов задач: поиск для ранжировщика и запись для импортёра.
type Index interface {
	recommend.VectorIndex
	Upsert(ctx context.Context, items []Item) error
	Close() error
}

type Item struct {
	ProblemID  string
	Difficulty recommend.Difficulty
	Embedding  []float32
}

package recommend

import "context"

// Vision — распознавание картинки (llm.Engine удовлетворяет).
type Vision interface {
	Transcribe(ctx context.Context, system string, image []byte, mime string) (string, error)
}

// Completer — текстовый вызов модели с ответом в JSON.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type TopicSource interface {
	ListTopics(ctx context.Context) ([]TopicCatalogEntry, error)
}

type ProblemSource interface {
	// ProblemsByTopics может вернуть задачу несколько раз — по строке на каждую совпавшую тему.
	ProblemsByTopics(ctx context.Context, topicIDs []int, band []Difficulty) ([]CandidateProblem, error)
	ProblemsByDifficulty(ctx context.Context, band []Difficulty, limit int) ([]CandidateProblem, error)
	SolutionsByProblem(ctx context.Context, problemIDs []string) (map[string]string, error)
}

type SubproblemSource interface {
	// SubproblemsByProblem возвращает строки в порядке (problem_id, key).
	SubproblemsByProblem(ctx context.Context, problemIDs []string) ([]Subproblem, error)
}

// VectorIndex — поиск ближайших задач по эмбеддингу.
type VectorIndex interface {
	Nearest(ctx context.Context, embedding []float32, k int, band []Difficulty) ([]string, error)
}

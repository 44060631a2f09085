package recommend

import (
	"context"
	"time"

	"problem-recs/api/internal/logger"
)

const (
	FallbackLimitOnError  = 50
	FallbackLimitNoTopics = 30
)

// RetrievalPath — каким запросом собран пул кандидатов.
type RetrievalPath string

const (
	PathTopics          RetrievalPath = "topics"
	PathFallbackOnError RetrievalPath = "fallback_on_error"
	PathNoTopics        RetrievalPath = "no_topics"
)

type Retriever struct {
	problems ProblemSource
	log      *logger.Logger
	timeout  time.Duration
}

func NewRetriever(problems ProblemSource, log *logger.Logger, timeout time.Duration) *Retriever {
	return &Retriever{problems: problems, log: log.With("stage", "retrieve"), timeout: timeout}
}

// Retrieve собирает пул кандидатов. Пустой пул — не ошибка.
// Ошибка возвращается только когда упал запрос без запасного пути.
func (r *Retriever) Retrieve(ctx context.Context, topics TopicSet) ([]CandidateProblem, RetrievalPath, error) {
	var (
		pool []CandidateProblem
		path RetrievalPath
		err  error
	)

	if len(topics) > 0 {
		pool, err = r.byTopics(ctx, topics)
		path = PathTopics
		if err != nil {
			r.log.Warn("topic query failed, using catalog-wide fallback", "error", err, "topics", []int(topics))
			pool, err = r.byDifficulty(ctx, FallbackLimitOnError)
			path = PathFallbackOnError
		}
	} else {
		pool, err = r.byDifficulty(ctx, FallbackLimitNoTopics)
		path = PathNoTopics
	}
	if err != nil {
		return nil, path, &DatabaseError{Op: "retrieve candidates", Err: err}
	}

	pool = dedupCandidates(pool)
	r.mergeSolutions(ctx, pool)

	r.log.Info("candidates retrieved", "path", string(path), "count", len(pool))
	return pool, path, nil
}

func (r *Retriever) byTopics(ctx context.Context, topics TopicSet) ([]CandidateProblem, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.problems.ProblemsByTopics(cctx, topics, PracticeBand)
}

func (r *Retriever) byDifficulty(ctx context.Context, limit int) ([]CandidateProblem, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.problems.ProblemsByDifficulty(cctx, PracticeBand, limit)
}

// mergeSolutions дозаполняет пустые решения из таблицы solutions. Своё решение кандидата важнее.
func (r *Retriever) mergeSolutions(ctx context.Context, pool []CandidateProblem) {
	var missing []string
	for _, c := range pool {
		if c.SolutionText == "" {
			missing = append(missing, c.ID)
		}
	}
	if len(missing) == 0 {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	sols, err := r.problems.SolutionsByProblem(cctx, missing)
	if err != nil {
		r.log.Warn("solutions lookup failed, continuing without", "error", err)
		return
	}
	for i := range pool {
		if pool[i].SolutionText == "" {
			pool[i].SolutionText = sols[pool[i].ID]
		}
	}
}

// dedupCandidates: первое вхождение побеждает, порядок — порядок выборки. Темы дублей сливаются в первое.
func dedupCandidates(in []CandidateProblem) []CandidateProblem {
	idx := make(map[string]int, len(in))
	out := make([]CandidateProblem, 0, len(in))
	for _, c := range in {
		if i, ok := idx[c.ID]; ok {
			out[i].TopicRefs = mergeInts(out[i].TopicRefs, c.TopicRefs)
			continue
		}
		idx[c.ID] = len(out)
		c.TopicRefs = mergeInts(nil, c.TopicRefs)
		out = append(out, c)
	}
	return out
}

func mergeInts(dst, src []int) []int {
	for _, v := range src {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type fakeVision struct {
	text  string
	err   error
	calls int
}

func (f *fakeVision) Transcribe(ctx context.Context, system string, image []byte, mime string) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeLLM отвечает по содержимому системного промпта: классификация или ранжирование.
type fakeLLM struct {
	classify     string
	classifyErr  error
	rank         string
	rankErr      error
	classifyN    int
	rankN        int
	lastRankUser string
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	if strings.Contains(system, "topic catalog") {
		f.classifyN++
		return f.classify, f.classifyErr
	}
	f.rankN++
	f.lastRankUser = user
	return f.rank, f.rankErr
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	ids   []string
	err   error
	calls int
	band  []Difficulty
}

func (f *fakeIndex) Nearest(ctx context.Context, emb []float32, k int, band []Difficulty) ([]string, error) {
	f.calls++
	f.band = band
	if f.err != nil {
		return nil, f.err
	}
	if len(f.ids) > k {
		return f.ids[:k], nil
	}
	return f.ids, nil
}

type fakeTopics struct {
	catalog []TopicCatalogEntry
	err     error
	calls   int
}

func (f *fakeTopics) ListTopics(ctx context.Context) ([]TopicCatalogEntry, error) {
	f.calls++
	return f.catalog, f.err
}

func catalogOf(n int) []TopicCatalogEntry {
	out := make([]TopicCatalogEntry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, TopicCatalogEntry{ID: i, MainTopic: fmt.Sprintf("Topic %d", i), Subtopic: "Sub", Course: "Calc 1"})
	}
	return out
}

// fakeProblems хранит задачи с темами и режет по сложности, как настоящий запрос.
type fakeProblems struct {
	rows         []CandidateProblem
	solutions    map[string]string
	topicsErr    error
	fallbackErr  error
	solutionsErr error

	topicsCalls   int
	fallbackCalls int
	lastLimit     int
	lastTopics    []int
}

func inBand(d Difficulty, band []Difficulty) bool {
	for _, b := range band {
		if b == d {
			return true
		}
	}
	return false
}

func (f *fakeProblems) ProblemsByTopics(ctx context.Context, topicIDs []int, band []Difficulty) ([]CandidateProblem, error) {
	f.topicsCalls++
	f.lastTopics = topicIDs
	if f.topicsErr != nil {
		return nil, f.topicsErr
	}
	var out []CandidateProblem
	for _, r := range f.rows {
		if !inBand(r.Difficulty, band) {
			continue
		}
		// строка на каждую совпавшую тему
		for _, t := range r.TopicRefs {
			for _, want := range topicIDs {
				if t == want {
					row := r
					row.TopicRefs = []int{t}
					out = append(out, row)
				}
			}
		}
	}
	return out, nil
}

func (f *fakeProblems) ProblemsByDifficulty(ctx context.Context, band []Difficulty, limit int) ([]CandidateProblem, error) {
	f.fallbackCalls++
	f.lastLimit = limit
	if f.fallbackErr != nil {
		return nil, f.fallbackErr
	}
	var out []CandidateProblem
	for _, r := range f.rows {
		if inBand(r.Difficulty, band) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeProblems) SolutionsByProblem(ctx context.Context, ids []string) (map[string]string, error) {
	if f.solutionsErr != nil {
		return nil, f.solutionsErr
	}
	out := map[string]string{}
	for _, id := range ids {
		if s, ok := f.solutions[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeSubproblems struct {
	rows  []Subproblem
	err   error
	calls int
	ids   []string
}

func (f *fakeSubproblems) SubproblemsByProblem(ctx context.Context, ids []string) ([]Subproblem, error) {
	f.calls++
	f.ids = ids
	if f.err != nil {
		return nil, f.err
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []Subproblem
	for _, sp := range f.rows {
		if want[sp.ProblemID] {
			out = append(out, sp)
		}
	}
	return out, nil
}

var errBoom = errors.New("boom")

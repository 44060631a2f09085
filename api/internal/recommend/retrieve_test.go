package recommend

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"problem-recs/api/internal/logger"
)

func sampleProblems() []CandidateProblem {
	return []CandidateProblem{
		{ID: "p1", ProblemText: "d/dx x^2", Difficulty: Easy, TopicRefs: []int{4, 5}},
		{ID: "p2", ProblemText: "d/dx sin x", Difficulty: Medium, TopicRefs: []int{5, 6}, SolutionText: "cos x"},
		{ID: "p3", ProblemText: "hard chain rule", Difficulty: Hard, TopicRefs: []int{4}},
		{ID: "p4", ProblemText: "integral", Difficulty: Easy, TopicRefs: []int{9}},
		{ID: "p5", ProblemText: "implicit", Difficulty: Medium, TopicRefs: []int{6}},
	}
}

func newTestRetriever(p ProblemSource) *Retriever {
	return NewRetriever(p, logger.Nop(), time.Second)
}

func ids(pool []CandidateProblem) []string {
	out := make([]string, 0, len(pool))
	for _, c := range pool {
		out = append(out, c.ID)
	}
	return out
}

func TestRetrieveByTopicsDedupAndBand(t *testing.T) {
	src := &fakeProblems{rows: sampleProblems()}
	pool, path, err := newTestRetriever(src).Retrieve(context.Background(), TopicSet{4, 5, 6})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if path != PathTopics {
		t.Fatalf("path: got=%s", path)
	}
	if !reflect.DeepEqual(ids(pool), []string{"p1", "p2", "p5"}) {
		t.Fatalf("pool: got=%v", ids(pool))
	}
	if !reflect.DeepEqual(pool[0].TopicRefs, []int{4, 5}) {
		t.Fatalf("merged topics: got=%v", pool[0].TopicRefs)
	}
	for _, c := range pool {
		if c.Difficulty != Easy && c.Difficulty != Medium {
			t.Fatalf("out of band: %+v", c)
		}
	}
}

func TestRetrieveTopicErrorFallsBack(t *testing.T) {
	src := &fakeProblems{rows: sampleProblems(), topicsErr: errBoom}
	pool, path, err := newTestRetriever(src).Retrieve(context.Background(), TopicSet{4})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if path != PathFallbackOnError || src.lastLimit != FallbackLimitOnError {
		t.Fatalf("path=%s limit=%d", path, src.lastLimit)
	}
	if len(pool) != 4 {
		t.Fatalf("pool: got=%v", ids(pool))
	}
}

func TestRetrieveNoTopics(t *testing.T) {
	src := &fakeProblems{rows: sampleProblems()}
	_, path, err := newTestRetriever(src).Retrieve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if path != PathNoTopics || src.lastLimit != FallbackLimitNoTopics || src.topicsCalls != 0 {
		t.Fatalf("path=%s limit=%d topicsCalls=%d", path, src.lastLimit, src.topicsCalls)
	}
}

func TestRetrieveFallbackFailureIsDatabaseError(t *testing.T) {
	src := &fakeProblems{topicsErr: errBoom, fallbackErr: errBoom}
	_, _, err := newTestRetriever(src).Retrieve(context.Background(), TopicSet{1})
	var de *DatabaseError
	if !errors.As(err, &de) || !errors.Is(err, errBoom) {
		t.Fatalf("want DatabaseError wrapping boom, got %v", err)
	}
}

func TestRetrieveEmptyIsValid(t *testing.T) {
	pool, _, err := newTestRetriever(&fakeProblems{}).Retrieve(context.Background(), TopicSet{1})
	if err != nil || len(pool) != 0 {
		t.Fatalf("pool=%v err=%v", pool, err)
	}
}

func TestRetrieveMergesSolutions(t *testing.T) {
	src := &fakeProblems{
		rows:      sampleProblems(),
		solutions: map[string]string{"p1": "2x", "p2": "should not override"},
	}
	pool, _, err := newTestRetriever(src).Retrieve(context.Background(), TopicSet{4, 5})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	got := map[string]string{}
	for _, c := range pool {
		got[c.ID] = c.SolutionText
	}
	if got["p1"] != "2x" || got["p2"] != "cos x" {
		t.Fatalf("solutions: %v", got)
	}
}

func TestRetrieveSolutionsFailureIsSoft(t *testing.T) {
	src := &fakeProblems{rows: sampleProblems(), solutionsErr: errBoom}
	pool, _, err := newTestRetriever(src).Retrieve(context.Background(), TopicSet{4})
	if err != nil || len(pool) == 0 {
		t.Fatalf("pool=%v err=%v", ids(pool), err)
	}
}

func TestRetrieveIdempotent(t *testing.T) {
	src := &fakeProblems{rows: sampleProblems()}
	r := newTestRetriever(src)
	a, _, _ := r.Retrieve(context.Background(), TopicSet{4, 5, 6})
	b, _, _ := r.Retrieve(context.Background(), TopicSet{4, 5, 6})
	if !reflect.DeepEqual(ids(a), ids(b)) {
		t.Fatalf("a=%v b=%v", ids(a), ids(b))
	}
}

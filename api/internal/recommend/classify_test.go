package recommend

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"problem-recs/api/internal/logger"
)

func newTestClassifier(topics TopicSource, l Completer) *Classifier {
	return NewClassifier(topics, l, logger.Nop(), time.Second, time.Second)
}

func TestClassifyValidIDs(t *testing.T) {
	topics := &fakeTopics{catalog: catalogOf(41)}
	l := &fakeLLM{classify: "[4, 5, 6]"}
	out := newTestClassifier(topics, l).Classify(context.Background(), NewTranscript(strings.Repeat("derivative ", 50), 1))
	if out.IsFallback() {
		t.Fatalf("unexpected fallback: %s", out.Reason)
	}
	if !reflect.DeepEqual([]int(out.Value), []int{4, 5, 6}) {
		t.Fatalf("topics: got=%v", out.Value)
	}
}

func TestClassifyCatalogFailureSkipsLLM(t *testing.T) {
	topics := &fakeTopics{err: errBoom}
	l := &fakeLLM{classify: "[1]"}
	out := newTestClassifier(topics, l).Classify(context.Background(), NewTranscript("limits and continuity", 1))
	if !out.IsFallback() || len(out.Value) != 0 {
		t.Fatalf("want empty fallback, got %+v", out)
	}
	if l.classifyN != 0 {
		t.Fatalf("llm must not be called when catalog fails")
	}
}

func TestClassifyCallFailureIsSoft(t *testing.T) {
	out := newTestClassifier(&fakeTopics{catalog: catalogOf(3)}, &fakeLLM{classifyErr: errBoom}).
		Classify(context.Background(), NewTranscript("limits and continuity", 1))
	if !out.IsFallback() || len(out.Value) != 0 {
		t.Fatalf("want empty fallback, got %+v", out)
	}
}

func TestParseTopicIDs(t *testing.T) {
	catalog := catalogOf(10)
	cases := []struct {
		name     string
		raw      string
		want     []int
		fallback bool
	}{
		{"plain", "[1,2,3]", []int{1, 2, 3}, false},
		{"fenced", "```json\n[7]\n```", []int{7}, false},
		{"out of range", "[0, 11, -3, 10]", []int{10}, false},
		{"non numeric", `["4", 5, null, {"id":6}, 2.5]`, []int{5}, false},
		{"dedup and cap", "[1,1,2,3,4,5,6,7]", []int{1, 2, 3, 4, 5}, false},
		{"empty array", "[]", []int{}, false},
		{"object", `{"topics":[1,2]}`, nil, true},
		{"garbage", "topics are 1 and 2", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := parseTopicIDs(tc.raw, catalog)
			if out.IsFallback() != tc.fallback {
				t.Fatalf("fallback: want=%v got=%v (%s)", tc.fallback, out.IsFallback(), out.Reason)
			}
			if len(out.Value) != len(tc.want) {
				t.Fatalf("ids: want=%v got=%v", tc.want, out.Value)
			}
			for i := range tc.want {
				if out.Value[i] != tc.want[i] {
					t.Fatalf("ids: want=%v got=%v", tc.want, out.Value)
				}
			}
		})
	}
}

func TestParseTopicIDsRespectsSnapshot(t *testing.T) {
	// в каталоге дырка: id 2 нет, хотя он в [1, N]
	catalog := []TopicCatalogEntry{{ID: 1}, {ID: 3}, {ID: 4}}
	out := parseTopicIDs("[1,2,3]", catalog)
	if !reflect.DeepEqual([]int(out.Value), []int{1, 3}) {
		t.Fatalf("got=%v", out.Value)
	}
}

func TestClassifyPromptFormat(t *testing.T) {
	tr := NewTranscript(strings.Repeat("a", 5000), 1)
	p := classifyPrompt(tr, []TopicCatalogEntry{{ID: 4, MainTopic: "Derivatives", Subtopic: "Chain rule", Course: "Calc 1"}})
	if !strings.Contains(p, "4. Derivatives - Chain rule (Calc 1)") {
		t.Fatalf("catalog line missing:\n%s", p)
	}
	if strings.Count(p, "a") > classifyTranscriptLimit+50 {
		t.Fatalf("transcript not truncated")
	}
}

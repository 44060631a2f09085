package recommend

import (
	"strings"
	"unicode/utf8"
)

type Difficulty string

const (
	Easy     Difficulty = "easy"
	Medium   Difficulty = "medium"
	Hard     Difficulty = "hard"
	VeryHard Difficulty = "very_hard"
)

// PracticeBand — сложности, из которых подбираются задачи.
var PracticeBand = []Difficulty{Easy, Medium}

// DifficultyStrings — сложности как строки, для параметров запросов.
func DifficultyStrings(band []Difficulty) []string {
	out := make([]string, 0, len(band))
	for _, d := range band {
		out = append(out, string(d))
	}
	return out
}

func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case Easy:
		return Easy, true
	case Medium:
		return Medium, true
	case Hard:
		return Hard, true
	case VeryHard, "very hard", "very-hard":
		return VeryHard, true
	}
	return "", false
}

const (
	MinTranscriptLength = 10
	// PageDelimiter открывает каждую страницу в тексте, извлечённом на клиенте: "--- Page N ---".
	PageDelimiter = "--- Page "
)

// Transcript — текст всей математики из загрузки. Не меняется после создания.
type Transcript struct {
	Text      string
	Length    int
	PageCount int
}

func NewTranscript(text string, pages int) Transcript {
	text = strings.TrimSpace(text)
	if pages < 1 {
		pages = 1
	}
	return Transcript{Text: text, Length: utf8.RuneCountInString(text), PageCount: pages}
}

// CountPages считает разделители страниц; документ без разделителей — одна страница.
func CountPages(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), PageDelimiter) {
			n++
		}
	}
	if n < 1 {
		return 1
	}
	return n
}

type TopicCatalogEntry struct {
	ID        int    `json:"id"`
	MainTopic string `json:"mainTopic"`
	Subtopic  string `json:"subtopic"`
	Course    string `json:"course"`
}

// TopicSet — id тем, выбранных классификатором (не больше MaxTopics).
type TopicSet []int

const MaxTopics = 5

type CandidateProblem struct {
	ID           string
	ProblemText  string
	SolutionText string
	Difficulty   Difficulty
	TopicRefs    []int
}

// RankedSelection — упорядоченные id кандидатов (не больше SelectionSize).
type RankedSelection []string

const SelectionSize = 5

type Subproblem struct {
	ID           string `json:"id"`
	ProblemID    string `json:"-"`
	Key          string `json:"key"`
	ProblemText  string `json:"problemText"`
	SolutionText string `json:"solutionText"`
}

type Recommendation struct {
	ID             string       `json:"id"`
	ProblemText    string       `json:"problemText"`
	SolutionText   string       `json:"solutionText,omitempty"`
	Difficulty     Difficulty   `json:"difficulty"`
	TopicIDs       []int        `json:"topicIds,omitempty"`
	HasSubproblems bool         `json:"hasSubproblems"`
	Subproblems    []Subproblem `json:"subproblems"`
}

// Result — ответ клиенту, один на запрос.
type Result struct {
	Success          bool             `json:"success"`
	Recommendations  []Recommendation `json:"recommendations"`
	IdentifiedTopics []int            `json:"identifiedTopics"`
	UploadSummary    string           `json:"uploadSummary"`
	ExtractedLength  int              `json:"extractedLength"`
	PageCount        int              `json:"pageCount,omitempty"`
	Message          string           `json:"message"`
}

func (r *Result) ProblemIDs() []string {
	ids := make([]string, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		ids = append(ids, rec.ID)
	}
	return ids
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

package importer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
)

// File — один файл набора задач (JSON или YAML).
type File struct {
	Doc      Doc                           `json:"doc" yaml:"doc"`
	Topics   []recommend.TopicCatalogEntry `json:"topics,omitempty" yaml:"topics,omitempty"`
	Problems []Problem                     `json:"problems" yaml:"problems"`
}

type Doc struct {
	ID          string `json:"id" yaml:"id"`
	School      string `json:"school" yaml:"school"`
	Course      string `json:"course" yaml:"course"`
	ProblemType string `json:"problem_type" yaml:"problem_type"`
	Term        string `json:"term" yaml:"term"`
	Year        int    `json:"year" yaml:"year"`
	Version     string `json:"version" yaml:"version"`
}

type Problem struct {
	ID          string                `json:"id" yaml:"id"`
	ProblemText string                `json:"problem_text" yaml:"problem_text"`
	Solution    string                `json:"solution" yaml:"solution"`
	Difficulty  string                `json:"difficulty" yaml:"difficulty"`
	Topics      []int                 `json:"topics" yaml:"topics"`
	Subproblems map[string]Subproblem `json:"subproblems" yaml:"subproblems"`
}

type Subproblem struct {
	ProblemText string `json:"problem_text" yaml:"problem_text"`
	Solution    string `json:"solution" yaml:"solution"`
}

func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".json":
		err = json.Unmarshal(data, &f)
	default:
		return nil, eris.Errorf("%s: unsupported extension (want .json, .yaml or .yml)", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "decode %s", path)
	}
	return &f, nil
}

// Validate проверяет документ и приводит сложность к каноничному виду.
func (f *File) Validate() error {
	if strings.TrimSpace(f.Doc.ID) == "" {
		return eris.New("doc.id is empty")
	}
	seen := map[string]bool{}
	for i := range f.Problems {
		p := &f.Problems[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return eris.Errorf("problems[%d]: id is empty", i)
		}
		if seen[p.ID] {
			return eris.Errorf("problems[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if strings.TrimSpace(p.ProblemText) == "" {
			return eris.Errorf("problem %s: problem_text is empty", p.ID)
		}
		d, ok := recommend.ParseDifficulty(p.Difficulty)
		if !ok {
			return eris.Errorf("problem %s: unknown difficulty %q", p.ID, p.Difficulty)
		}
		p.Difficulty = string(d)
	}
	return nil
}

func (f *File) docRow() store.DocumentRow {
	return store.DocumentRow{
		ID:          f.Doc.ID,
		School:      f.Doc.School,
		Course:      f.Doc.Course,
		ProblemType: f.Doc.ProblemType,
		Term:        f.Doc.Term,
		Year:        f.Doc.Year,
		Version:     f.Doc.Version,
	}
}

func (f *File) problemRows() []store.ProblemRow {
	out := make([]store.ProblemRow, 0, len(f.Problems))
	for _, p := range f.Problems {
		keys := make([]string, 0, len(p.Subproblems))
		for k := range p.Subproblems {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		subs := make([]store.SubproblemRow, 0, len(keys))
		for _, k := range keys {
			sp := p.Subproblems[k]
			subs = append(subs, store.SubproblemRow{Key: k, ProblemText: sp.ProblemText, SolutionText: sp.Solution})
		}
		out = append(out, store.ProblemRow{
			ID:           p.ID,
			DocID:        f.Doc.ID,
			ProblemText:  p.ProblemText,
			SolutionText: p.Solution,
			Difficulty:   p.Difficulty,
			Topics:       p.Topics,
			Subproblems:  subs,
		})
	}
	return out
}

package recommend

import (
	"context"
	"fmt"
	"time"

	"problem-recs/api/internal/logger"
	"problem-recs/api/internal/util"
)

const (
	SummaryExcerptLength = 200

	msgFound    = "Found %d similar problems based on your uploaded content"
	msgNotFound = "No similar problems found. Try uploading more specific mathematical content."
)

type Assembler struct {
	subproblems SubproblemSource
	log         *logger.Logger
	timeout     time.Duration
}

func NewAssembler(subproblems SubproblemSource, log *logger.Logger, timeout time.Duration) *Assembler {
	return &Assembler{subproblems: subproblems, log: log.With("stage", "assemble"), timeout: timeout}
}

// Assemble собирает ответ в порядке ранжирования. Id, которых нет в пуле, пропускаются.
func (a *Assembler) Assemble(ctx context.Context, tr Transcript, topics TopicSet, sel RankedSelection, pool []CandidateProblem) (*Result, error) {
	byID := make(map[string]CandidateProblem, len(pool))
	for _, c := range pool {
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = c
		}
	}

	picked := make([]CandidateProblem, 0, len(sel))
	skipped := 0
	for _, id := range uniqueStrings(sel) {
		c, ok := byID[id]
		if !ok {
			skipped++
			continue
		}
		picked = append(picked, c)
	}
	if skipped > 0 {
		a.log.Debug("selected ids missing from pool", "skipped", skipped)
	}

	grouped, err := a.loadSubproblems(ctx, picked)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, len(picked))
	for _, c := range picked {
		subs := grouped[c.ID]
		if subs == nil {
			subs = []Subproblem{}
		}
		recs = append(recs, Recommendation{
			ID:             c.ID,
			ProblemText:    c.ProblemText,
			SolutionText:   c.SolutionText,
			Difficulty:     c.Difficulty,
			TopicIDs:       c.TopicRefs,
			HasSubproblems: len(subs) > 0,
			Subproblems:    subs,
		})
	}

	res := &Result{
		Success:          true,
		Recommendations:  recs,
		IdentifiedTopics: append([]int{}, topics...),
		UploadSummary:    summary(tr.Text),
		ExtractedLength:  tr.Length,
		Message:          message(len(recs)),
	}
	if tr.PageCount > 1 {
		res.PageCount = tr.PageCount
	}
	return res, nil
}

// loadSubproblems — один запрос на все выбранные задачи, группировка в памяти.
func (a *Assembler) loadSubproblems(ctx context.Context, picked []CandidateProblem) (map[string][]Subproblem, error) {
	grouped := make(map[string][]Subproblem, len(picked))
	if len(picked) == 0 || a.subproblems == nil {
		return grouped, nil
	}
	ids := make([]string, 0, len(picked))
	for _, c := range picked {
		ids = append(ids, c.ID)
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	rows, err := a.subproblems.SubproblemsByProblem(cctx, ids)
	if err != nil {
		return nil, &DatabaseError{Op: "load subproblems", Err: err}
	}
	for _, sp := range rows {
		grouped[sp.ProblemID] = append(grouped[sp.ProblemID], sp)
	}
	return grouped, nil
}

func summary(text string) string {
	s, cut := util.TruncateRunes(text, SummaryExcerptLength)
	if cut {
		return s + "..."
	}
	return s
}

func message(n int) string {
	if n == 0 {
		return msgNotFound
	}
	return fmt.Sprintf(msgFound, n)
}

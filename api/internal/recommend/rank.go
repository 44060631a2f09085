package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"problem-recs/api/internal/llm"
	"problem-recs/api/internal/logger"
	"problem-recs/api/internal/util"
)

const (
	rankTranscriptLimit = 10000
	rankSolutionLimit   = 250

	rankSystemPrompt = `You pick practice problems for a student based on the material they uploaded.
Favor conceptual similarity to the uploaded material and order the picks from easiest to hardest.
Return ONLY JSON of the form {"selected": ["<id>", ...]} using ids from the candidate list exactly as given.`
)

// RankStrategy — каким путём получен итоговый список.
type RankStrategy string

const (
	StrategyNone      RankStrategy = "none"
	StrategyLLM       RankStrategy = "llm"
	StrategyEmbedding RankStrategy = "embedding"
)

type Ranker struct {
	llm          Completer
	embedder     Embedder
	index        VectorIndex
	log          *logger.Logger
	llmTimeout   time.Duration
	embedTimeout time.Duration
}

func NewRanker(llm Completer, embedder Embedder, index VectorIndex, log *logger.Logger, llmTimeout, embedTimeout time.Duration) *Ranker {
	return &Ranker{
		llm:          llm,
		embedder:     embedder,
		index:        index,
		log:          log.With("stage", "rank"),
		llmTimeout:   llmTimeout,
		embedTimeout: embedTimeout,
	}
}

// Rank выбирает до SelectionSize кандидатов. Пустой пул — пустой выбор без внешних вызовов.
// Основной путь делает ровно одну попытку, после неё идёт поиск по эмбеддингам.
func (r *Ranker) Rank(ctx context.Context, tr Transcript, pool []CandidateProblem) (RankedSelection, RankStrategy, error) {
	if len(pool) == 0 {
		return RankedSelection{}, StrategyNone, nil
	}

	primary := r.primary(ctx, tr, pool)
	if !primary.IsFallback() {
		return finalize(primary.Value), StrategyLLM, nil
	}
	r.log.Warn("primary ranking unusable, falling back to embedding search", "reason", primary.Reason)

	ids, err := r.nearest(ctx, tr)
	if err != nil {
		r.log.Error("embedding fallback failed", "error", err)
		// без ключа провайдера это конфигурация, а не сбой ранжирования
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, StrategyEmbedding, &ConfigurationError{Err: err}
		}
		return nil, StrategyEmbedding, &RankingError{PrimaryReason: primary.Reason, Err: err}
	}
	return finalize(ids), StrategyEmbedding, nil
}

func (r *Ranker) primary(ctx context.Context, tr Transcript, pool []CandidateProblem) Outcome[RankedSelection] {
	if r.llm == nil {
		return Fallback[RankedSelection]("no ranking engine")
	}
	cctx, cancel := context.WithTimeout(ctx, r.llmTimeout)
	defer cancel()

	raw, err := r.llm.CompleteJSON(cctx, rankSystemPrompt, rankPrompt(tr, pool))
	if err != nil {
		return Fallback[RankedSelection]("ranking call failed: " + err.Error())
	}
	out := parseSelection(raw, pool)
	if !out.IsFallback() {
		r.log.Info("candidates ranked", "selected", []string(out.Value), "pool", len(pool))
	}
	return out
}

func (r *Ranker) nearest(ctx context.Context, tr Transcript) ([]string, error) {
	if r.embedder == nil || r.index == nil {
		return nil, eris.New("no embedding index configured")
	}
	cctx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	emb, err := r.embedder.Embed(cctx, tr.Text)
	if err != nil {
		return nil, eris.Wrap(err, "embed transcript")
	}
	ids, err := r.index.Nearest(cctx, emb, SelectionSize, PracticeBand)
	if err != nil {
		return nil, eris.Wrap(err, "nearest neighbours")
	}
	return ids, nil
}

func rankPrompt(tr Transcript, pool []CandidateProblem) string {
	excerpt, _ := util.TruncateRunes(tr.Text, rankTranscriptLimit)
	want := min(SelectionSize, len(pool))

	var b strings.Builder
	b.WriteString("Uploaded material:\n\"\"\"\n")
	b.WriteString(excerpt)
	b.WriteString("\n\"\"\"\n\nCandidates:\n")
	for _, c := range pool {
		fmt.Fprintf(&b, "\nID: %s\nDifficulty: %s\nProblem: %s\n", c.ID, c.Difficulty, c.ProblemText)
		if c.SolutionText != "" {
			sol, _ := util.TruncateRunes(c.SolutionText, rankSolutionLimit)
			fmt.Fprintf(&b, "Solution: %s\n", sol)
		}
	}
	fmt.Fprintf(&b, "\nSelect exactly %d ids. Respond as {\"selected\": [...]}.", want)
	return b.String()
}

// parseSelection — единственная точка разбора ответа ранжировщика.
// Id не из пула выбрасываются; пустой итог считается неудачей основного пути.
func parseSelection(raw string, pool []CandidateProblem) Outcome[RankedSelection] {
	var resp struct {
		Selected []any `json:"selected"`
	}
	if err := json.Unmarshal([]byte(util.StripCodeFences(raw)), &resp); err != nil {
		return Fallback[RankedSelection]("unparsable ranking output: " + err.Error())
	}
	if resp.Selected == nil {
		return Fallback[RankedSelection]("ranking output has no selected array")
	}

	inPool := make(map[string]struct{}, len(pool))
	for _, c := range pool {
		inPool[c.ID] = struct{}{}
	}

	sel := make(RankedSelection, 0, len(resp.Selected))
	for _, v := range resp.Selected {
		var id string
		switch x := v.(type) {
		case string:
			id = strings.TrimSpace(x)
		case float64:
			id = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			continue
		}
		if _, ok := inPool[id]; ok {
			sel = append(sel, id)
		}
	}
	if len(sel) == 0 {
		return Fallback[RankedSelection]("no selected id is in the candidate pool")
	}
	return Ok(sel)
}

func finalize(ids []string) RankedSelection {
	out := uniqueStrings(ids)
	if len(out) > SelectionSize {
		out = out[:SelectionSize]
	}
	return RankedSelection(out)
}

package recommend

import (
	"context"
	"time"

	"problem-recs/api/internal/logger"
)

type Timeouts struct {
	Extract time.Duration
	LLM     time.Duration
	DB      time.Duration
	Embed   time.Duration
}

// Deps — всё внешнее, что нужно конвейеру. Любое поле можно подменить фейком.
type Deps struct {
	Vision      Vision
	Completer   Completer
	Embedder    Embedder
	Topics      TopicSource
	Problems    ProblemSource
	Subproblems SubproblemSource
	Index       VectorIndex
	Logger      *logger.Logger
	Timeouts    Timeouts
}

// Pipeline не держит состояния между запросами: каждый Run независим.
type Pipeline struct {
	extractor  *Extractor
	classifier *Classifier
	retriever  *Retriever
	ranker     *Ranker
	assembler  *Assembler
	log        *logger.Logger
}

func NewPipeline(d Deps) *Pipeline {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	t := d.Timeouts
	t.Extract = orDuration(t.Extract, 90*time.Second)
	t.LLM = orDuration(t.LLM, 60*time.Second)
	t.DB = orDuration(t.DB, 10*time.Second)
	t.Embed = orDuration(t.Embed, 20*time.Second)

	return &Pipeline{
		extractor:  NewExtractor(d.Vision, log, t.Extract),
		classifier: NewClassifier(d.Topics, d.Completer, log, t.DB, t.LLM),
		retriever:  NewRetriever(d.Problems, log, t.DB),
		ranker:     NewRanker(d.Completer, d.Embedder, d.Index, log, t.LLM, t.Embed),
		assembler:  NewAssembler(d.Subproblems, log, t.DB),
		log:        log,
	}
}

// Run прогоняет загрузку через все этапы по порядку.
// Ошибки: *ConfigurationError, *TranscriptionError, *ContentError, *DatabaseError, *RankingError.
func (p *Pipeline) Run(ctx context.Context, in Upload) (*Result, error) {
	start := time.Now()

	tr, err := p.extractor.Extract(ctx, in)
	if err != nil {
		return nil, err
	}

	topics := p.classifier.Classify(ctx, tr)
	if topics.IsFallback() {
		p.log.Info("no topics identified", "reason", topics.Reason)
	}

	pool, path, err := p.retriever.Retrieve(ctx, topics.Value)
	if err != nil {
		return nil, err
	}

	sel, strategy, err := p.ranker.Rank(ctx, tr, pool)
	if err != nil {
		return nil, err
	}

	res, err := p.assembler.Assemble(ctx, tr, topics.Value, sel, pool)
	if err != nil {
		return nil, err
	}

	p.log.Info("recommendations ready",
		"count", len(res.Recommendations),
		"topics", len(topics.Value),
		"retrieval", string(path),
		"ranking", string(strategy),
		"elapsed", time.Since(start),
	)
	return res, nil
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

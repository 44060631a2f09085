package app

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"problem-recs/api/internal/archive"
	"problem-recs/api/internal/config"
	"problem-recs/api/internal/llm"
	"problem-recs/api/internal/llm/gemini"
	"problem-recs/api/internal/llm/openai"
	"problem-recs/api/internal/logger"
	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
	"problem-recs/api/internal/vector"
)

type Repos struct {
	Topics      *store.TopicRepo
	Problems    *store.ProblemRepo
	Subproblems *store.SubproblemRepo
	Uploads     *store.UploadRepo
	Documents   *store.DocumentRepo
}

// App — общая сборка зависимостей для server, bot и importer.
type App struct {
	Log     *logger.Logger
	Cfg     *config.Config
	DB      *sql.DB
	Repos   Repos
	Engines *llm.Engines
	Index   vector.Index
	Archive *archive.GCS

	pipelines map[string]*recommend.Pipeline
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "init postgres")
	}
	log.Info("db connected", "dsn", config.SafeDSNSummary(cfg.DatabaseURL))

	a := &App{
		Log: log,
		Cfg: cfg,
		DB:  db,
		Repos: Repos{
			Topics:      store.NewTopicRepo(db),
			Problems:    store.NewProblemRepo(db),
			Subproblems: store.NewSubproblemRepo(db),
			Uploads:     store.NewUploadRepo(db),
			Documents:   store.NewDocumentRepo(db),
		},
		Engines: &llm.Engines{
			OpenAI: openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIVisionModel, cfg.OpenAIEmbedModel, cfg.OpenAIBaseURL),
			Gemini: gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbedModel),
		},
	}

	if a.Index, err = newIndex(ctx, cfg, db); err != nil {
		a.Close()
		return nil, err
	}
	log.Info("vector index ready", "backend", cfg.VectorBackend)

	if cfg.UploadBucket != "" {
		if a.Archive, err = archive.NewGCS(ctx, cfg.UploadBucket); err != nil {
			// архив необязателен
			log.Warn("upload archive disabled", "bucket", cfg.UploadBucket, "error", err)
		}
	}

	a.pipelines = map[string]*recommend.Pipeline{}
	for _, eng := range []llm.Engine{a.Engines.OpenAI, a.Engines.Gemini} {
		a.pipelines[eng.Name()] = a.buildPipeline(eng)
	}
	return a, nil
}

func newIndex(ctx context.Context, cfg *config.Config, db *sql.DB) (vector.Index, error) {
	switch cfg.VectorBackend {
	case "milvus":
		m, err := vector.NewMilvus(ctx, cfg.MilvusAddress, cfg.MilvusCollection)
		if err != nil {
			return nil, eris.Wrap(err, "init milvus")
		}
		return m, nil
	default:
		return vector.NewPGVector(db), nil
	}
}

func (a *App) buildPipeline(eng llm.Engine) *recommend.Pipeline {
	return recommend.NewPipeline(recommend.Deps{
		Vision:      eng,
		Completer:   eng,
		Embedder:    eng,
		Topics:      a.Repos.Topics,
		Problems:    a.Repos.Problems,
		Subproblems: a.Repos.Subproblems,
		Index:       a.Index,
		Logger:      a.Log.With("llm", eng.Name()),
		Timeouts: recommend.Timeouts{
			Extract: a.Cfg.ExtractTimeout,
			LLM:     a.Cfg.LLMTimeout,
			DB:      a.Cfg.DBTimeout,
			Embed:   a.Cfg.EmbedTimeout,
		},
	})
}

// Pipeline отдаёт конвейер провайдера; пустое имя — LLM_PROVIDER.
func (a *App) Pipeline(llmName string) (*recommend.Pipeline, error) {
	if strings.TrimSpace(llmName) == "" {
		llmName = a.Cfg.LLMProvider
	}
	eng, err := a.Engines.GetEngine(llmName)
	if err != nil {
		return nil, err
	}
	return a.pipelines[eng.Name()], nil
}

// Engine — движок по умолчанию (эмбеддинги для импортёра).
func (a *App) Engine() (llm.Engine, error) {
	return a.Engines.GetEngine(a.Cfg.LLMProvider)
}

func (a *App) Close() {
	if a.Archive != nil {
		_ = a.Archive.Close()
	}
	if a.Index != nil {
		_ = a.Index.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	a.Log.Sync()
}

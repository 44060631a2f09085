package importer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"problem-recs/api/internal/logger"
	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
	"problem-recs/api/internal/vector"
)

type DocumentWriter interface {
	UpsertDocument(ctx context.Context, d store.DocumentRow) error
	UpsertProblems(ctx context.Context, batch []store.ProblemRow) error
}

type TopicWriter interface {
	UpsertTopics(ctx context.Context, topics []recommend.TopicCatalogEntry) error
}

type IndexWriter interface {
	Upsert(ctx context.Context, items []vector.Item) error
}

// ProblemLister — источник задач для пересборки индекса.
type ProblemLister interface {
	ProblemTexts(ctx context.Context, band []recommend.Difficulty) (map[string]recommend.CandidateProblem, error)
}

type Options struct {
	Docs     DocumentWriter
	Topics   TopicWriter
	Embedder recommend.Embedder
	Index    IndexWriter
	Log      *logger.Logger
	Batch    int
	Workers  int
	Embed    bool
	DryRun   bool
}

type Importer struct {
	o Options
	// таблица topics общая для всех файлов
	topicsMu sync.Mutex
}

type Stats struct {
	Files    int64
	Problems int64
	Embedded int64
}

func New(o Options) *Importer {
	if o.Batch <= 0 {
		o.Batch = 50
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	return &Importer{o: o}
}

// ImportFiles обрабатывает файлы параллельно; первая ошибка останавливает остальные.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) (Stats, error) {
	var st Stats
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.o.Workers)
	for _, path := range paths {
		g.Go(func() error {
			f, err := ReadFile(path)
			if err != nil {
				return err
			}
			if err := f.Validate(); err != nil {
				return eris.Wrapf(err, "validate %s", path)
			}
			n, emb, err := im.importFile(gctx, f)
			if err != nil {
				return eris.Wrapf(err, "import %s", path)
			}
			atomic.AddInt64(&st.Files, 1)
			atomic.AddInt64(&st.Problems, int64(n))
			atomic.AddInt64(&st.Embedded, int64(emb))
			im.o.Log.Info("file imported", "file", path, "doc", f.Doc.ID, "problems", n, "embedded", emb, "dry_run", im.o.DryRun)
			return nil
		})
	}
	err := g.Wait()
	return st, err
}

func (im *Importer) importFile(ctx context.Context, f *File) (int, int, error) {
	rows := f.problemRows()
	if im.o.DryRun {
		return len(rows), 0, nil
	}

	if len(f.Topics) > 0 && im.o.Topics != nil {
		im.topicsMu.Lock()
		err := im.o.Topics.UpsertTopics(ctx, f.Topics)
		im.topicsMu.Unlock()
		if err != nil {
			return 0, 0, err
		}
	}
	if err := im.o.Docs.UpsertDocument(ctx, f.docRow()); err != nil {
		return 0, 0, err
	}

	embedded := 0
	for start := 0; start < len(rows); start += im.o.Batch {
		batch := rows[start:min(start+im.o.Batch, len(rows))]
		if err := im.o.Docs.UpsertProblems(ctx, batch); err != nil {
			return start, embedded, err
		}
		if im.o.Embed {
			n, err := im.embedBatch(ctx, batch)
			embedded += n
			if err != nil {
				return start + len(batch), embedded, err
			}
		}
	}
	return len(rows), embedded, nil
}

func (im *Importer) embedBatch(ctx context.Context, batch []store.ProblemRow) (int, error) {
	if im.o.Embedder == nil || im.o.Index == nil {
		return 0, eris.New("embedding requested but no embedder or index configured")
	}
	items := make([]vector.Item, 0, len(batch))
	for _, p := range batch {
		emb, err := im.o.Embedder.Embed(ctx, p.ProblemText)
		if err != nil {
			return 0, eris.Wrapf(err, "embed problem %s", p.ID)
		}
		items = append(items, vector.Item{ProblemID: p.ID, Difficulty: recommend.Difficulty(p.Difficulty), Embedding: emb})
	}
	if err := im.o.Index.Upsert(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// Reindex пересчитывает эмбеддинги всех задач из БД (после смены модели эмбеддингов).
func (im *Importer) Reindex(ctx context.Context, src ProblemLister) (int, error) {
	all, err := src.ProblemTexts(ctx, []recommend.Difficulty{recommend.Easy, recommend.Medium, recommend.Hard, recommend.VeryHard})
	if err != nil {
		return 0, err
	}
	batch := make([]store.ProblemRow, 0, im.o.Batch)
	total := 0
	flush := func() error {
		if len(batch) == 0 || im.o.DryRun {
			batch = batch[:0]
			return nil
		}
		n, err := im.embedBatch(ctx, batch)
		total += n
		batch = batch[:0]
		return err
	}
	for _, c := range all {
		batch = append(batch, store.ProblemRow{ID: c.ID, ProblemText: c.ProblemText, Difficulty: string(c.Difficulty)})
		if len(batch) == im.o.Batch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	im.o.Log.Info("reindex done", "problems", len(all), "embedded", total)
	return total, nil
}

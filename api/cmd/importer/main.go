package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"problem-recs/api/internal/app"
	"problem-recs/api/internal/config"
	"problem-recs/api/internal/importer"
	"problem-recs/api/internal/logger"
	"problem-recs/api/internal/store"
	"problem-recs/api/internal/vector"
)

// fileList — повторяемый флаг -file.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*f = append(*f, part)
		}
	}
	return nil
}

func main() {
	var files fileList
	flag.Var(&files, "file", "problem-set file (.json/.yaml), repeatable or comma-separated")
	embed := flag.Bool("embed", false, "embed problem texts into the vector index")
	batch := flag.Int("batch", 50, "problems per upsert batch")
	workers := flag.Int("workers", 4, "files processed concurrently")
	dryRun := flag.Bool("dry-run", false, "validate files without writing")
	reindex := flag.Bool("reindex", false, "re-embed every problem already in the database")
	schema := flag.Bool("schema", false, "create tables before import")
	ensureColl := flag.Int("ensure-collection", 0, "create the milvus collection with this embedding dimension")
	flag.Parse()

	if len(files) == 0 && !*reindex && !*schema && *ensureColl == 0 {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -file, -reindex, -schema or -ensure-collection")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		// без БД: только разбор и валидация
		st, err := importer.New(importer.Options{Log: log, Batch: *batch, Workers: *workers, DryRun: true}).ImportFiles(ctx, files)
		if err != nil {
			log.Fatal("dry run failed", "error", err)
		}
		log.Info("dry run ok", "files", st.Files, "problems", st.Problems)
		return
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init failed", "error", err)
	}
	defer a.Close()

	if *schema {
		if err := store.EnsureSchema(ctx, a.DB); err != nil {
			log.Fatal("schema", "error", err)
		}
		log.Info("schema ensured")
	}
	if *ensureColl > 0 {
		m, ok := a.Index.(*vector.Milvus)
		if !ok {
			log.Fatal("-ensure-collection needs VECTOR_BACKEND=milvus")
		}
		if err := m.EnsureCollection(ctx, *ensureColl); err != nil {
			log.Fatal("ensure collection", "error", err)
		}
		log.Info("milvus collection ready", "collection", cfg.MilvusCollection, "dim", *ensureColl)
	}

	eng, err := a.Engine()
	if err != nil {
		log.Fatal("llm provider", "error", err)
	}
	im := importer.New(importer.Options{
		Docs:     a.Repos.Documents,
		Topics:   a.Repos.Topics,
		Embedder: eng,
		Index:    a.Index,
		Log:      log,
		Batch:    *batch,
		Workers:  *workers,
		Embed:    *embed,
	})

	if len(files) > 0 {
		st, err := im.ImportFiles(ctx, files)
		if err != nil {
			log.Fatal("import failed", "error", err, "files_done", st.Files, "problems_done", st.Problems)
		}
		log.Info("import done", "files", st.Files, "problems", st.Problems, "embedded", st.Embedded)
	}
	if *reindex {
		if _, err := im.Reindex(ctx, a.Repos.Problems); err != nil {
			log.Fatal("reindex failed", "error", err)
		}
	}
}

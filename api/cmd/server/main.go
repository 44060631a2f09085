package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"problem-recs/api/internal/app"
	"problem-recs/api/internal/config"
	"problem-recs/api/internal/handle"
	"problem-recs/api/internal/jobs"
	"problem-recs/api/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init failed", "error", err)
	}
	defer a.Close()

	opts := handle.Options{
		Runners: func(llmName string) (handle.Runner, error) {
			p, err := a.Pipeline(llmName)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Uploads:        a.Repos.Uploads,
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
	}
	// nil *GCS в интерфейсе не равен nil
	if a.Archive != nil {
		opts.Archive = a.Archive
	}
	h := handle.New(opts)

	purge := jobs.NewPurge(a.Repos.Uploads, cfg.LogRetention, log)
	if err := purge.Start(ctx, cfg.PurgeSchedule); err != nil {
		log.Fatal("purge job", "error", err)
	}
	defer purge.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(healthz(a)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr, "llm", cfg.LLMProvider, "vector", cfg.VectorBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
}

func healthz(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"problem-recs/api/internal/logger"
	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
)

// Runner — конвейер рекомендаций (recommend.Pipeline).
type Runner interface {
	Run(ctx context.Context, in recommend.Upload) (*recommend.Result, error)
}

// Runners выбирает конвейер по имени провайдера; пустое имя — провайдер по умолчанию.
type Runners func(llmName string) (Runner, error)

type UploadLogger interface {
	Insert(ctx context.Context, l *store.UploadLog) error
}

type Archiver interface {
	Put(ctx context.Context, data []byte, mime string) (string, error)
}

type Options struct {
	Runners        Runners
	Uploads        UploadLogger
	Archive        Archiver
	Log            *logger.Logger
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Handle struct {
	runners   Runners
	uploads   UploadLogger
	archive   Archiver
	log       *logger.Logger
	maxUpload int64
	timeout   time.Duration
}

func New(o Options) *Handle {
	log := o.Log
	if log == nil {
		log = logger.Nop()
	}
	maxUpload := o.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	timeout := o.RequestTimeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Handle{
		runners:   o.Runners,
		uploads:   o.Uploads,
		archive:   o.Archive,
		log:       log,
		maxUpload: maxUpload,
		timeout:   timeout,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

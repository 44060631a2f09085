package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"

	"problem-recs/api/internal/logger"
)

type Purger interface {
	PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Purge по расписанию удаляет историю загрузок старше retention.
type Purge struct {
	repo      Purger
	retention time.Duration
	log       *logger.Logger
	cron      *cron.Cron
}

func NewPurge(repo Purger, retention time.Duration, log *logger.Logger) *Purge {
	return &Purge{repo: repo, retention: retention, log: log.With("job", "purge_upload_logs"), cron: cron.New()}
}

// Start регистрирует задачу и запускает планировщик. ctx отменяет текущий прогон.
func (p *Purge) Start(ctx context.Context, schedule string) error {
	if _, err := p.cron.AddFunc(schedule, func() { p.RunOnce(ctx) }); err != nil {
		return eris.Wrapf(err, "schedule purge %q", schedule)
	}
	p.cron.Start()
	p.log.Info("purge scheduled", "schedule", schedule, "retention", p.retention)
	return nil
}

// Stop ждёт завершения текущего прогона.
func (p *Purge) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Purge) RunOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := p.repo.PurgeOlderThan(ctx, p.retention)
	if err != nil {
		p.log.Error("purge failed", "error", err)
		return 0
	}
	p.log.Info("purge done", "deleted", n)
	return n
}

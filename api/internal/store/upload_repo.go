package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

type UploadRepo struct{ DB *sql.DB }

func NewUploadRepo(db *sql.DB) *UploadRepo { return &UploadRepo{DB: db} }

// UploadLog — запись истории загрузок. Конвейер её не читает.
type UploadLog struct {
	ID              uuid.UUID
	CreatedAt       time.Time
	UserID          string
	Source          string
	ExtractedLength int
	PageCount       int
	TopicIDs        []int
	ProblemIDs      []string
}

// Insert пишет запись; пустой ID заполняется новым uuid.
func (r *UploadRepo) Insert(ctx context.Context, l *UploadLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.TopicIDs == nil {
		l.TopicIDs = []int{}
	}
	if l.ProblemIDs == nil {
		l.ProblemIDs = []string{}
	}
	topics, _ := json.Marshal(l.TopicIDs)
	problems, _ := json.Marshal(l.ProblemIDs)

	const q = `
insert into upload_logs (id, user_id, source, extracted_length, page_count, topic_ids, problem_ids)
values ($1,$2,$3,$4,$5,$6,$7)
returning created_at`
	err := r.DB.QueryRowContext(ctx, q,
		l.ID.String(), l.UserID, l.Source, l.ExtractedLength, l.PageCount, topics, problems,
	).Scan(&l.CreatedAt)
	return eris.Wrap(err, "insert upload log")
}

// RecentByUser достаёт последние записи пользователя, свежие сверху.
func (r *UploadRepo) RecentByUser(ctx context.Context, userID string, limit int) ([]UploadLog, error) {
	const q = `
select id, created_at, user_id, source, extracted_length, page_count, topic_ids, problem_ids
from upload_logs
where user_id = $1
order by created_at desc
limit $2`
	rows, err := r.DB.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "recent uploads")
	}
	defer rows.Close()

	var out []UploadLog
	for rows.Next() {
		var (
			l                UploadLog
			id               string
			topics, problems []byte
		)
		if err := rows.Scan(&id, &l.CreatedAt, &l.UserID, &l.Source, &l.ExtractedLength, &l.PageCount, &topics, &problems); err != nil {
			return nil, eris.Wrap(err, "scan upload log")
		}
		l.ID, _ = uuid.Parse(id)
		_ = json.Unmarshal(topics, &l.TopicIDs)
		_ = json.Unmarshal(problems, &l.ProblemIDs)
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "recent uploads")
}

// PurgeOlderThan удаляет старую историю, чтобы не раздувать БД.
func (r *UploadRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from upload_logs where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "purge upload logs")
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"problem-recs/api/internal/recommend"
)

type TopicRepo struct{ DB *sql.DB }

func NewTopicRepo(db *sql.DB) *TopicRepo { return &TopicRepo{DB: db} }

// ListTopics отдаёт весь каталог по возрастанию id. Кэша нет: каждый вызов читает таблицу.
func (r *TopicRepo) ListTopics(ctx context.Context) ([]recommend.TopicCatalogEntry, error) {
	const q = `select id, main_topic, subtopic, course from topics order by id`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "list topics")
	}
	defer rows.Close()

	var out []recommend.TopicCatalogEntry
	for rows.Next() {
		var t recommend.TopicCatalogEntry
		if err := rows.Scan(&t.ID, &t.MainTopic, &t.Subtopic, &t.Course); err != nil {
			return nil, eris.Wrap(err, "scan topic")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "list topics")
}

// UpsertTopics заливает каталог тем (импортёр).
func (r *TopicRepo) UpsertTopics(ctx context.Context, topics []recommend.TopicCatalogEntry) error {
	const q = `
insert into topics (id, main_topic, subtopic, course) values ($1,$2,$3,$4)
on conflict (id) do update
set main_topic = excluded.main_topic,
    subtopic = excluded.subtopic,
    course = excluded.course`
	for _, t := range topics {
		if _, err := r.DB.ExecContext(ctx, q, t.ID, t.MainTopic, t.Subtopic, t.Course); err != nil {
			return eris.Wrapf(err, "upsert topic %d", t.ID)
		}
	}
	return nil
}

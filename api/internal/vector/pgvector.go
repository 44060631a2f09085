package vector

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"problem-recs/api/internal/recommend"
)

// PGVector ищет по таблице problem_embeddings (расширение pgvector), косинусное расстояние.
type PGVector struct{ DB *sql.DB }

func NewPGVector(db *sql.DB) *PGVector { return &PGVector{DB: db} }

func (p *PGVector) Nearest(ctx context.Context, embedding []float32, k int, band []recommend.Difficulty) ([]string, error) {
	if len(embedding) == 0 {
		return nil, eris.New("empty embedding")
	}
	const q = `
select problem_id
from problem_embeddings
where difficulty = any($2)
order by embedding <=> $1::vector
limit $3`
	rows, err := p.DB.QueryContext(ctx, q, literal(embedding), recommend.DifficultyStrings(band), k)
	if err != nil {
		return nil, eris.Wrap(err, "pgvector nearest")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "scan neighbour")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "pgvector nearest")
}

func (p *PGVector) Upsert(ctx context.Context, items []Item) error {
	const q = `
insert into problem_embeddings (problem_id, difficulty, embedding)
values ($1,$2,$3::vector)
on conflict (problem_id) do update
set difficulty = excluded.difficulty,
    embedding = excluded.embedding`
	for _, it := range items {
		if _, err := p.DB.ExecContext(ctx, q, it.ProblemID, string(it.Difficulty), literal(it.Embedding)); err != nil {
			return eris.Wrapf(err, "upsert embedding %s", it.ProblemID)
		}
	}
	return nil
}

// Close ничего не делает: пулом соединений владеет вызывающий.
func (p *PGVector) Close() error { return nil }

// literal — текстовая форма вектора pgvector: [0.1,0.2,...].
func literal(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

package store

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"problem-recs/api/internal/recommend"
)

type ProblemRepo struct{ DB *sql.DB }

func NewProblemRepo(db *sql.DB) *ProblemRepo { return &ProblemRepo{DB: db} }

// ProblemsByTopics — строка на каждую пару (задача, совпавшая тема). Дубли по id убирает вызывающий.
func (r *ProblemRepo) ProblemsByTopics(ctx context.Context, topicIDs []int, band []recommend.Difficulty) ([]recommend.CandidateProblem, error) {
	const q = `
select p.id, p.problem_text, coalesce(p.solution_text,'') as solution_text, p.difficulty, pt.topic_id
from problems p
join problem_topics pt on pt.problem_id = p.id
where pt.topic_id = any($1)
  and p.difficulty = any($2)
  and p.included
order by p.id, pt.topic_id`
	rows, err := r.DB.QueryContext(ctx, q, int64s(topicIDs), recommend.DifficultyStrings(band))
	if err != nil {
		return nil, eris.Wrap(err, "problems by topics")
	}
	defer rows.Close()

	var out []recommend.CandidateProblem
	for rows.Next() {
		var (
			c       recommend.CandidateProblem
			diff    string
			topicID int
		)
		if err := rows.Scan(&c.ID, &c.ProblemText, &c.SolutionText, &diff, &topicID); err != nil {
			return nil, eris.Wrap(err, "scan problem")
		}
		c.Difficulty = recommend.Difficulty(diff)
		c.TopicRefs = []int{topicID}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "problems by topics")
}

// ProblemsByDifficulty — выборка по всему каталогу без учёта тем.
func (r *ProblemRepo) ProblemsByDifficulty(ctx context.Context, band []recommend.Difficulty, limit int) ([]recommend.CandidateProblem, error) {
	const q = `
select p.id, p.problem_text, coalesce(p.solution_text,'') as solution_text, p.difficulty,
       coalesce((select array_agg(pt.topic_id order by pt.topic_id) from problem_topics pt where pt.problem_id = p.id), '{}'::int[])
from problems p
where p.difficulty = any($1)
  and p.included
order by p.id
limit $2`
	rows, err := r.DB.QueryContext(ctx, q, recommend.DifficultyStrings(band), limit)
	if err != nil {
		return nil, eris.Wrap(err, "problems by difficulty")
	}
	defer rows.Close()

	// int[] через database/sql сканируется только с помощью pgtype.Map
	m := pgtype.NewMap()
	var out []recommend.CandidateProblem
	for rows.Next() {
		var (
			c      recommend.CandidateProblem
			diff   string
			topics []int32
		)
		if err := rows.Scan(&c.ID, &c.ProblemText, &c.SolutionText, &diff, m.SQLScanner(&topics)); err != nil {
			return nil, eris.Wrap(err, "scan problem")
		}
		c.Difficulty = recommend.Difficulty(diff)
		c.TopicRefs = ints(topics)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "problems by difficulty")
}

func (r *ProblemRepo) SolutionsByProblem(ctx context.Context, problemIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(problemIDs))
	if len(problemIDs) == 0 {
		return out, nil
	}
	const q = `select problem_id, solution_text from solutions where problem_id = any($1)`
	rows, err := r.DB.QueryContext(ctx, q, problemIDs)
	if err != nil {
		return nil, eris.Wrap(err, "solutions by problem")
	}
	defer rows.Close()
	for rows.Next() {
		var id, sol string
		if err := rows.Scan(&id, &sol); err != nil {
			return nil, eris.Wrap(err, "scan solution")
		}
		out[id] = sol
	}
	return out, eris.Wrap(rows.Err(), "solutions by problem")
}

// ProblemTexts — тексты задач для построения эмбеддингов.
func (r *ProblemRepo) ProblemTexts(ctx context.Context, band []recommend.Difficulty) (map[string]recommend.CandidateProblem, error) {
	const q = `select id, problem_text, difficulty from problems where difficulty = any($1) and included`
	rows, err := r.DB.QueryContext(ctx, q, recommend.DifficultyStrings(band))
	if err != nil {
		return nil, eris.Wrap(err, "problem texts")
	}
	defer rows.Close()
	out := map[string]recommend.CandidateProblem{}
	for rows.Next() {
		var (
			c    recommend.CandidateProblem
			diff string
		)
		if err := rows.Scan(&c.ID, &c.ProblemText, &diff); err != nil {
			return nil, eris.Wrap(err, "scan problem text")
		}
		c.Difficulty = recommend.Difficulty(diff)
		out[c.ID] = c
	}
	return out, eris.Wrap(rows.Err(), "problem texts")
}

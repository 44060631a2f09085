package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
)

type DocumentRepo struct{ DB *sql.DB }

func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{DB: db} }

type DocumentRow struct {
	ID          string
	School      string
	Course      string
	ProblemType string
	Term        string
	Year        int
	Version     string
}

type SubproblemRow struct {
	Key          string
	ProblemText  string
	SolutionText string
}

type ProblemRow struct {
	ID           string
	DocID        string
	ProblemText  string
	SolutionText string
	Difficulty   string
	Topics       []int
	Subproblems  []SubproblemRow
}

func (r *DocumentRepo) UpsertDocument(ctx context.Context, d DocumentRow) error {
	const q = `
insert into documents (id, school, course, problem_type, term, year, version, updated_at)
values ($1,$2,$3,$4,$5,$6,$7, now())
on conflict (id) do update
set school = excluded.school,
    course = excluded.course,
    problem_type = excluded.problem_type,
    term = excluded.term,
    year = excluded.year,
    version = excluded.version,
    updated_at = now()`
	_, err := r.DB.ExecContext(ctx, q, d.ID, d.School, d.Course, d.ProblemType, d.Term, d.Year, d.Version)
	return eris.Wrapf(err, "upsert document %s", d.ID)
}

// UpsertProblems пишет пачку задач в одной транзакции: сами задачи, связи с темами, подзадачи.
// Связи и подзадачи задачи перезаписываются целиком.
func (r *DocumentRepo) UpsertProblems(ctx context.Context, batch []ProblemRow) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const upProblem = `
insert into problems (id, doc_id, problem_text, solution_text, difficulty, included)
values ($1,$2,$3,nullif($4,''),$5,true)
on conflict (id) do update
set doc_id = excluded.doc_id,
    problem_text = excluded.problem_text,
    solution_text = excluded.solution_text,
    difficulty = excluded.difficulty`
	const delTopics = `delete from problem_topics where problem_id = $1`
	const insTopic = `insert into problem_topics (problem_id, topic_id) values ($1,$2) on conflict do nothing`
	const delSubs = `delete from subproblems where problem_id = $1`
	const insSub = `
insert into subproblems (id, problem_id, key, problem_text, solution_text)
values ($1,$2,$3,$4,nullif($5,''))`

	for _, p := range batch {
		if _, err = tx.ExecContext(ctx, upProblem, p.ID, p.DocID, p.ProblemText, p.SolutionText, p.Difficulty); err != nil {
			return eris.Wrapf(err, "upsert problem %s", p.ID)
		}
		if _, err = tx.ExecContext(ctx, delTopics, p.ID); err != nil {
			return eris.Wrapf(err, "reset topics %s", p.ID)
		}
		for _, t := range p.Topics {
			if _, err = tx.ExecContext(ctx, insTopic, p.ID, t); err != nil {
				return eris.Wrapf(err, "link topic %d to %s", t, p.ID)
			}
		}
		if _, err = tx.ExecContext(ctx, delSubs, p.ID); err != nil {
			return eris.Wrapf(err, "reset subproblems %s", p.ID)
		}
		for _, sp := range p.Subproblems {
			if _, err = tx.ExecContext(ctx, insSub, p.ID+"_"+sp.Key, p.ID, sp.Key, sp.ProblemText, sp.SolutionText); err != nil {
				return eris.Wrapf(err, "insert subproblem %s/%s", p.ID, sp.Key)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return eris.Wrap(err, "commit")
	}
	return nil
}

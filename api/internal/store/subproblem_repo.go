package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"problem-recs/api/internal/recommend"
)

type SubproblemRepo struct{ DB *sql.DB }

func NewSubproblemRepo(db *sql.DB) *SubproblemRepo { return &SubproblemRepo{DB: db} }

// SubproblemsByProblem — один запрос на все задачи, порядок (problem_id, key).
func (r *SubproblemRepo) SubproblemsByProblem(ctx context.Context, problemIDs []string) ([]recommend.Subproblem, error) {
	if len(problemIDs) == 0 {
		return nil, nil
	}
	const q = `
select id, problem_id, key, problem_text, coalesce(solution_text,'') as solution_text
from subproblems
where problem_id = any($1)
order by problem_id, key`
	rows, err := r.DB.QueryContext(ctx, q, problemIDs)
	if err != nil {
		return nil, eris.Wrap(err, "subproblems by problem")
	}
	defer rows.Close()

	var out []recommend.Subproblem
	for rows.Next() {
		var sp recommend.Subproblem
		if err := rows.Scan(&sp.ID, &sp.ProblemID, &sp.Key, &sp.ProblemText, &sp.SolutionText); err != nil {
			return nil, eris.Wrap(err, "scan subproblem")
		}
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "subproblems by problem")
}

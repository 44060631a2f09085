package store

import (
	"context"
	"database/sql"
	"os"
	"reflect"
	"testing"
	"time"

	"problem-recs/api/internal/recommend"
)

// Тесты ходят в настоящий Postgres (с pgvector) и пропускаются без TEST_DATABASE_URL.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	for _, q := range []string{
		`truncate upload_logs, problem_embeddings, subproblems, solutions, problem_topics, problems, documents, topics cascade`,
	} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("reset: %v", err)
		}
	}
	return db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	topics := NewTopicRepo(db)
	if err := topics.UpsertTopics(ctx, []recommend.TopicCatalogEntry{
		{ID: 1, MainTopic: "Limits", Subtopic: "One-sided", Course: "Calc 1"},
		{ID: 2, MainTopic: "Derivatives", Subtopic: "Power rule", Course: "Calc 1"},
		{ID: 3, MainTopic: "Derivatives", Subtopic: "Chain rule", Course: "Calc 1"},
	}); err != nil {
		t.Fatalf("UpsertTopics: %v", err)
	}
	docs := NewDocumentRepo(db)
	if err := docs.UpsertDocument(ctx, DocumentRow{ID: "d1", School: "MIT", Course: "18.01", Year: 2020}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if err := docs.UpsertProblems(ctx, []ProblemRow{
		{ID: "p1", DocID: "d1", ProblemText: "d/dx x^2", Difficulty: "easy", Topics: []int{2, 3},
			Subproblems: []SubproblemRow{{Key: "b", ProblemText: "second"}, {Key: "a", ProblemText: "first"}}},
		{ID: "p2", DocID: "d1", ProblemText: "d/dx sin(x^2)", SolutionText: "2x cos(x^2)", Difficulty: "medium", Topics: []int{3}},
		{ID: "p3", DocID: "d1", ProblemText: "epsilon-delta", Difficulty: "hard", Topics: []int{1, 2}},
	}); err != nil {
		t.Fatalf("UpsertProblems: %v", err)
	}
	if _, err := db.ExecContext(ctx, `insert into solutions (problem_id, solution_text) values ('p1','2x')`); err != nil {
		t.Fatalf("seed solutions: %v", err)
	}
}

func TestTopicRepoOrdered(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	got, err := NewTopicRepo(db).ListTopics(context.Background())
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if len(got) != 3 || got[0].ID != 1 || got[2].Subtopic != "Chain rule" {
		t.Fatalf("topics: %+v", got)
	}
}

func TestProblemRepoQueries(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	ctx := context.Background()
	repo := NewProblemRepo(db)

	rows, err := repo.ProblemsByTopics(ctx, []int{2, 3}, recommend.PracticeBand)
	if err != nil {
		t.Fatalf("ProblemsByTopics: %v", err)
	}
	var ids []string
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	// p1 совпал по двум темам, p3 сложная
	if !reflect.DeepEqual(ids, []string{"p1", "p1", "p2"}) {
		t.Fatalf("ids: %v", ids)
	}

	all, err := repo.ProblemsByDifficulty(ctx, recommend.PracticeBand, 1)
	if err != nil {
		t.Fatalf("ProblemsByDifficulty: %v", err)
	}
	if len(all) != 1 || all[0].ID != "p1" || !reflect.DeepEqual(all[0].TopicRefs, []int{2, 3}) {
		t.Fatalf("fallback: %+v", all)
	}

	sols, err := repo.SolutionsByProblem(ctx, []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("SolutionsByProblem: %v", err)
	}
	if sols["p1"] != "2x" || len(sols) != 1 {
		t.Fatalf("solutions: %v", sols)
	}
}

func TestSubproblemRepoOrder(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	subs, err := NewSubproblemRepo(db).SubproblemsByProblem(context.Background(), []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("SubproblemsByProblem: %v", err)
	}
	if len(subs) != 2 || subs[0].Key != "a" || subs[1].Key != "b" || subs[0].ProblemID != "p1" {
		t.Fatalf("subproblems: %+v", subs)
	}
}

func TestUploadRepoInsertAndPurge(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewUploadRepo(db)

	l := &UploadLog{UserID: "u1", Source: "image", ExtractedLength: 42, PageCount: 1, TopicIDs: []int{2}, ProblemIDs: []string{"p1"}}
	if err := repo.Insert(ctx, l); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := repo.RecentByUser(ctx, "u1", 10)
	if err != nil || len(got) != 1 || got[0].ID != l.ID || !reflect.DeepEqual(got[0].ProblemIDs, []string{"p1"}) {
		t.Fatalf("recent: %+v err=%v", got, err)
	}

	if _, err := db.ExecContext(ctx, `update upload_logs set created_at = now() - interval '100 days'`); err != nil {
		t.Fatalf("age rows: %v", err)
	}
	n, err := repo.PurgeOlderThan(ctx, 90*24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("purged=%d err=%v", n, err)
	}
	if _, err := repo.PurgeOlderThan(ctx, 0); err == nil {
		t.Fatalf("zero retention must be rejected")
	}
}

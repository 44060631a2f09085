package store

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/rotisserie/eris"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema создаёт таблицы, если их нет. Используется импортёром и тестами.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return eris.Wrap(err, "ensure schema")
	}
	return nil
}

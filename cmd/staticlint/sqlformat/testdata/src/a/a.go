package a

import (
	"context"
	"database/sql"
	"fmt"
)

func queries(ctx context.Context, db *sql.DB, tx *sql.Tx, name string) {
	_, _ = db.ExecContext(ctx, fmt.Sprintf("DELETE FROM users WHERE username = '%s'", name)) // want "query built with fmt.Sprintf; use placeholders"
	_, _ = tx.QueryContext(ctx, (fmt.Sprintf("SELECT * FROM %s", name)))                    // want "query built with fmt.Sprintf; use placeholders"
	_ = db.QueryRow(fmt.Sprintf("SELECT %s", name))                                         // want "query built with fmt.Sprintf; use placeholders"

	_, _ = db.ExecContext(ctx, "DELETE FROM users WHERE username = $1", name)
	_ = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE email = $1", fmt.Sprintf("%s@x.com", name))

	query := fmt.Sprintf("SELECT %d", 1)
	_ = db.QueryRowContext(ctx, query)
}

type fake struct{}

func (fake) ExecContext(ctx context.Context, query string) {}

func notDatabaseSQL(ctx context.Context, name string) {
	fake{}.ExecContext(ctx, fmt.Sprintf("%s", name))
}

// Package sqlitedb provides an embedded SQLite implementation of the user
// storage built on the pure Go modernc.org/sqlite driver.
package sqlitedb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/patric-chuzhbe/userapi/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteDB is a user storage kept in a single SQLite file.
type SQLiteDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New opens (or creates) the database file at path, ensures its directory
// exists and applies the embedded migrations.
func New(ctx context.Context, path string, connectionTimeout time.Duration) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/New(): error while `os.MkdirAll()` calling: %w", err)
	}

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/New(): error while `sql.Open()` calling: %w", err)
	}

	// one writer at a time, sqlite serializes writes anyway
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	result := &SQLiteDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	return result, nil
}

func (db *SQLiteDB) migrate(ctx context.Context) error {
	migrationsFS, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/migrate(): error while `fs.Sub()` calling: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.database, migrationsFS)
	if err != nil {
		return fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/migrate(): error while `goose.NewProvider()` calling: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/migrate(): error while `provider.Up()` calling: %w", err)
	}

	return nil
}

func (db *SQLiteDB) conn(transaction *sql.Tx) queryer {
	if transaction == nil {
		return db.database
	}
	return transaction
}

// GetUsers returns every user ordered by id.
func (db *SQLiteDB) GetUsers(ctx context.Context) (models.Users, error) {
	rows, err := db.database.QueryContext(ctx, `SELECT id, username, email FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/GetUsers(): error while `QueryContext()` calling: %w", err)
	}
	defer rows.Close()

	result := models.Users{}
	for rows.Next() {
		var usr models.User
		if err := rows.Scan(&usr.ID, &usr.Username, &usr.Email); err != nil {
			return nil, err
		}
		result = append(result, usr)
	}

	return result, rows.Err()
}

func (db *SQLiteDB) FindUserByUsernameOrEmail(
	ctx context.Context,
	username,
	email string,
	transaction *sql.Tx,
) (*models.User, bool, error) {
	return scanUser(db.conn(transaction).QueryRowContext(
		ctx,
		`SELECT id, username, email FROM users WHERE username = ? OR email = ? LIMIT 1`,
		username,
		email,
	))
}

func (db *SQLiteDB) GetUserByID(ctx context.Context, id int64, transaction *sql.Tx) (*models.User, bool, error) {
	return scanUser(db.conn(transaction).QueryRowContext(
		ctx,
		`SELECT id, username, email FROM users WHERE id = ?`,
		id,
	))
}

// InsertUser stores a new user. AUTOINCREMENT guarantees ids of deleted
// users are never handed out again.
func (db *SQLiteDB) InsertUser(
	ctx context.Context,
	username,
	email string,
	transaction *sql.Tx,
) (*models.User, error) {
	result, err := db.conn(transaction).ExecContext(
		ctx,
		`INSERT INTO users (username, email) VALUES (?, ?)`,
		username,
		email,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/InsertUser(): error while `ExecContext()` calling: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/InsertUser(): error while `LastInsertId()` calling: %w", err)
	}

	return &models.User{ID: id, Username: username, Email: email}, nil
}

func (db *SQLiteDB) DeleteUserByID(ctx context.Context, id int64, transaction *sql.Tx) error {
	result, err := db.conn(transaction).ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/DeleteUserByID(): error while `ExecContext()` calling: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (db *SQLiteDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

func (db *SQLiteDB) BeginTransaction(ctx context.Context) (*sql.Tx, error) {
	return db.database.BeginTx(ctx, nil)
}

func (db *SQLiteDB) CommitTransaction(transaction *sql.Tx) error {
	return transaction.Commit()
}

func (db *SQLiteDB) RollbackTransaction(transaction *sql.Tx) error {
	err := transaction.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (db *SQLiteDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

func (db *SQLiteDB) Close() error {
	return db.database.Close()
}

func scanUser(row *sql.Row) (*models.User, bool, error) {
	var usr models.User
	if err := row.Scan(&usr.ID, &usr.Username, &usr.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &usr, true, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}

	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}

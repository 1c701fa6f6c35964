// Package postgresdb provides a PostgreSQL-based implementation of the user
// storage. The schema is kept up to date with embedded goose migrations,
// and the unique constraints on username and email are enforced by the database.
package postgresdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/userapi/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresDB is a PostgreSQL-backed user storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables dropping every table before migration.
// It is meant for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New connects to PostgreSQL, applies the embedded migrations and returns
// a ready to use storage.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := newWithDB(database, connectionTimeout)

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			_ = database.Close()
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := result.migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	return result, nil
}

func newWithDB(database *sql.DB, connectionTimeout time.Duration) *PostgresDB {
	return &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}
}

func (db *PostgresDB) migrate(ctx context.Context) error {
	migrationsFS, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/migrate(): error while `fs.Sub()` calling: %w",
			err,
		)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db.database, migrationsFS)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/migrate(): error while `goose.NewProvider()` calling: %w",
			err,
		)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/migrate(): error while `provider.Up()` calling: %w",
			err,
		)
	}

	return nil
}

func (db *PostgresDB) queryer(transaction *sql.Tx) queryer {
	if transaction == nil {
		return db.database
	}
	return transaction
}

func (db *PostgresDB) executor(transaction *sql.Tx) executor {
	if transaction == nil {
		return db.database
	}
	return transaction
}

// GetUsers returns every user ordered by id.
func (db *PostgresDB) GetUsers(ctx context.Context) (models.Users, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`SELECT id, username, email FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/GetUsers(): error while `db.database.QueryContext()` calling: %w",
			err,
		)
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

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// FindUserByUsernameOrEmail returns any user holding the given username or the given email.
func (db *PostgresDB) FindUserByUsernameOrEmail(
	ctx context.Context,
	username,
	email string,
	transaction *sql.Tx,
) (*models.User, bool, error) {
	row := db.queryer(transaction).QueryRowContext(
		ctx,
		`SELECT id, username, email FROM users WHERE username = $1 OR email = $2 LIMIT 1`,
		username,
		email,
	)

	return scanUser(row)
}

// GetUserByID fetches a user by id. The boolean is false when there is no such user.
func (db *PostgresDB) GetUserByID(ctx context.Context, id int64, transaction *sql.Tx) (*models.User, bool, error) {
	row := db.queryer(transaction).QueryRowContext(
		ctx,
		`SELECT id, username, email FROM users WHERE id = $1`,
		id,
	)

	return scanUser(row)
}

// InsertUser stores a new user and returns it with its assigned id.
// A unique constraint violation is reported as models.ErrConflict.
func (db *PostgresDB) InsertUser(
	ctx context.Context,
	username,
	email string,
	transaction *sql.Tx,
) (*models.User, error) {
	row := db.queryer(transaction).QueryRowContext(
		ctx,
		`INSERT INTO users (username, email) VALUES ($1, $2) RETURNING id`,
		username,
		email,
	)

	usr := &models.User{Username: username, Email: email}
	if err := row.Scan(&usr.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/InsertUser(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	return usr, nil
}

// DeleteUserByID removes the user with the given id.
// It returns models.ErrNotFound when nothing was deleted.
func (db *PostgresDB) DeleteUserByID(ctx context.Context, id int64, transaction *sql.Tx) error {
	result, err := db.executor(transaction).ExecContext(
		ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/DeleteUserByID(): error while `ExecContext()` calling: %w",
			err,
		)
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

// GetNumberOfUsers counts the stored users.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	var count int64
	err := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/GetNumberOfUsers(): error while `Scan()` calling: %w",
			err,
		)
	}

	return count, nil
}

// CommitTransaction commits the given SQL transaction.
func (db *PostgresDB) CommitTransaction(transaction *sql.Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while committing transaction: %v", r)
		}
	}()

	return transaction.Commit()
}

// RollbackTransaction rolls back the given SQL transaction.
// Rolling back an already finished transaction is not an error.
func (db *PostgresDB) RollbackTransaction(transaction *sql.Tx) error {
	err := transaction.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// BeginTransaction starts a new SQL transaction.
// The caller is responsible for committing or rolling it back.
func (db *PostgresDB) BeginTransaction(ctx context.Context) (*sql.Tx, error) {
	return db.database.BeginTx(ctx, nil)
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, bool, error) {
	var usr models.User
	err := row.Scan(&usr.ID, &usr.Username, &usr.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &usr, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

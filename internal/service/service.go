// Package service implements the user resource lifecycle: listing,
// creation with uniqueness checks, deletion and the storage health check.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
)

type transactioner interface {
	BeginTransaction(ctx context.Context) (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error
}

type userKeeper interface {
	GetUsers(ctx context.Context) (models.Users, error)

	FindUserByUsernameOrEmail(
		ctx context.Context,
		username,
		email string,
		transaction *sql.Tx,
	) (*models.User, bool, error)

	GetUserByID(ctx context.Context, id int64, transaction *sql.Tx) (*models.User, bool, error)

	InsertUser(
		ctx context.Context,
		username,
		email string,
		transaction *sql.Tx,
	) (*models.User, error)

	DeleteUserByID(ctx context.Context, id int64, transaction *sql.Tx) error

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	transactioner
	userKeeper
	pinger
}

type Service struct {
	db       storage
	validate *validator.Validate
}

func New(db storage) *Service {
	return &Service{
		db:       db,
		validate: validator.New(),
	}
}

// ListUsers returns all users ordered by id.
func (s *Service) ListUsers(ctx context.Context) (models.Users, error) {
	return s.db.GetUsers(ctx)
}

// CreateUser validates the input, rejects a username or email that is
// already taken and stores the new user. The existence check is a fast path;
// the storage's unique constraints have the final word and their violation
// is reported as models.ErrConflict as well. Nothing is written on failure.
func (s *Service) CreateUser(ctx context.Context, request models.CreateUserRequest) (*models.User, error) {
	request.Username = strings.TrimSpace(request.Username)
	request.Email = strings.TrimSpace(request.Email)

	if err := s.validate.Struct(request); err != nil {
		return nil, validationError(err)
	}

	tx, err := s.db.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.db.RollbackTransaction(tx); err != nil {
			logger.Log.Errorln("rollback failed", "error", err)
		}
	}()

	_, found, err := s.db.FindUserByUsernameOrEmail(ctx, request.Username, request.Email, tx)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, models.ErrConflict
	}

	usr, err := s.db.InsertUser(ctx, request.Username, request.Email, tx)
	if err != nil {
		return nil, err
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return nil, err
	}

	return usr, nil
}

func validationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fieldError := range fieldErrors {
			if fieldError.Tag() == "max" {
				return fmt.Errorf("%w: %s", models.ErrFieldTooLong, err.Error())
			}
		}
	}

	return fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
}

// DeleteUser removes the user with the given id, or returns
// models.ErrNotFound when there is none.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.db.RollbackTransaction(tx); err != nil {
			logger.Log.Errorln("rollback failed", "error", err)
		}
	}()

	_, found, err := s.db.GetUserByID(ctx, id, tx)
	if err != nil {
		return err
	}
	if !found {
		return models.ErrNotFound
	}

	if err := s.db.DeleteUserByID(ctx, id, tx); err != nil {
		return err
	}

	return s.db.CommitTransaction(tx)
}

// Health reports whether the storage is reachable. It never fails.
func (s *Service) Health(ctx context.Context) string {
	if err := s.db.Ping(ctx); err != nil {
		logger.Log.Warnln("storage ping failed", "error", err)
		return models.DatabaseDisconnected
	}

	return models.DatabaseConnected
}

// GetInternalStats returns the number of stored users.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{Users: users}, nil
}

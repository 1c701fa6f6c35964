// Package mockstorage provides a testify-based mock implementation
// of the storage interfaces used by the service package.
// It is used for unit testing the service and the HTTP handlers by simulating
// storage behavior, including failures a real database would be hard to provoke.
package mockstorage

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/userapi/internal/models"
)

// StorageMock is a testify mock that implements every storage method.
type StorageMock struct {
	mock.Mock
}

func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) BeginTransaction(ctx context.Context) (*sql.Tx, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(*sql.Tx)
	return tx, args.Error(1)
}

func (m *StorageMock) CommitTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) RollbackTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) GetUsers(ctx context.Context) (models.Users, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).(models.Users)
	return users, args.Error(1)
}

func (m *StorageMock) FindUserByUsernameOrEmail(
	ctx context.Context,
	username,
	email string,
	tx *sql.Tx,
) (*models.User, bool, error) {
	args := m.Called(ctx, username, email, tx)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Bool(1), args.Error(2)
}

func (m *StorageMock) GetUserByID(ctx context.Context, id int64, tx *sql.Tx) (*models.User, bool, error) {
	args := m.Called(ctx, id, tx)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Bool(1), args.Error(2)
}

func (m *StorageMock) InsertUser(
	ctx context.Context,
	username,
	email string,
	tx *sql.Tx,
) (*models.User, error) {
	args := m.Called(ctx, username, email, tx)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Error(1)
}

func (m *StorageMock) DeleteUserByID(ctx context.Context, id int64, tx *sql.Tx) error {
	args := m.Called(ctx, id, tx)
	return args.Error(0)
}

func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

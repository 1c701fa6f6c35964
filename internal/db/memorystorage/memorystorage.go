// Package memorystorage keeps users in process memory. It is used by tests
// and by local runs started with DATABASE_URL=memory://.
package memorystorage

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/userapi/internal/models"
)

// MemoryStorage implements the user storage on top of maps guarded by a mutex.
// Transactions are not supported: every write is applied at once and the
// transaction arguments are always nil.
type MemoryStorage struct {
	mu         sync.RWMutex
	users      map[int64]models.User
	usernames  map[string]int64
	emails     map[string]int64
	nextUserID int64
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		users:      map[int64]models.User{},
		usernames:  map[string]int64{},
		emails:     map[string]int64{},
		nextUserID: 1,
	}, nil
}

func (s *MemoryStorage) GetUsers(ctx context.Context) (models.Users, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := funk.Keys(s.users).([]int64)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make(models.Users, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.users[id])
	}

	return result, nil
}

func (s *MemoryStorage) FindUserByUsernameOrEmail(
	ctx context.Context,
	username,
	email string,
	transaction *sql.Tx,
) (*models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, found := s.usernames[username]
	if !found {
		id, found = s.emails[email]
	}
	if !found {
		return nil, false, nil
	}

	usr := s.users[id]
	return &usr, true, nil
}

func (s *MemoryStorage) GetUserByID(ctx context.Context, id int64, transaction *sql.Tx) (*models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usr, found := s.users[id]
	if !found {
		return nil, false, nil
	}

	return &usr, true, nil
}

// InsertUser enforces the username and email uniqueness the same way a
// database unique index would.
func (s *MemoryStorage) InsertUser(
	ctx context.Context,
	username,
	email string,
	transaction *sql.Tx,
) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[username]; taken {
		return nil, models.ErrConflict
	}
	if _, taken := s.emails[email]; taken {
		return nil, models.ErrConflict
	}

	usr := models.User{
		ID:       s.nextUserID,
		Username: username,
		Email:    email,
	}
	s.nextUserID++

	s.users[usr.ID] = usr
	s.usernames[username] = usr.ID
	s.emails[email] = usr.ID

	return &usr, nil
}

func (s *MemoryStorage) DeleteUserByID(ctx context.Context, id int64, transaction *sql.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	usr, found := s.users[id]
	if !found {
		return models.ErrNotFound
	}

	delete(s.users, id)
	delete(s.usernames, usr.Username)
	delete(s.emails, usr.Email)

	return nil
}

func (s *MemoryStorage) GetNumberOfUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.users)), nil
}

func (s *MemoryStorage) BeginTransaction(ctx context.Context) (*sql.Tx, error) {
	return nil, nil
}

func (s *MemoryStorage) CommitTransaction(transaction *sql.Tx) error {
	return nil
}

func (s *MemoryStorage) RollbackTransaction(transaction *sql.Tx) error {
	return nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// Package models holds the user entity, the JSON payloads exchanged over HTTP
// and the error taxonomy shared by storages, the service and the router.
package models

import (
	"errors"
	"fmt"
)

// User is a persisted user record.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Users []User

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,max=80"`
	Email    string `json:"email" validate:"required,max=120"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type InternalStatsResponse struct {
	Users int64 `json:"users"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeSQLite
	StorageTypeMemory
)

const (
	DatabaseConnected    = "connected"
	DatabaseDisconnected = "disconnected"
)

var (
	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("username and email are required")

	// ErrFieldTooLong is an ErrValidation for a username or email longer than
	// the storage columns allow.
	ErrFieldTooLong = fmt.Errorf("%w: field too long", ErrValidation)

	// ErrConflict is returned when the username or the email is already taken.
	ErrConflict = errors.New("username or email already exists")

	// ErrNotFound is returned when no user has the requested id.
	ErrNotFound = errors.New("user not found")
)

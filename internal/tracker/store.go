package tracker

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=store_mock_test.go -package=tracker_test

var ErrUserNotFound = errors.New("user not found")

// Store persists users and their exercises. Implementations return users and
// exercises in insertion order.
type Store interface {
	CreateUser(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	FindUser(ctx context.Context, id string) (*User, error)
	CreateExercise(ctx context.Context, userID, description string, duration int, date time.Time) (*Exercise, error)
	ListExercises(ctx context.Context, userID string) ([]Exercise, error)
}

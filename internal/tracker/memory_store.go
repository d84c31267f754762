package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const maxIDAttempts = 5

var _ Store = (*MemoryStore)(nil)

var ErrIDExhausted = errors.New("could not generate a unique id")

// MemoryStore keeps everything in process memory and is used when postgres
// is unreachable at startup. Its content is lost on restart.
type MemoryStore struct {
	mutex sync.RWMutex
	idGen IDGenerator

	users     map[string]User
	userOrder []string

	exercises       map[string]Exercise
	userExerciseIDs map[string][]string
}

func NewMemoryStore(idGen IDGenerator) *MemoryStore {
	if idGen == nil {
		idGen = ShortIDGenerator{}
	}
	return &MemoryStore{
		idGen:           idGen,
		users:           make(map[string]User),
		exercises:       make(map[string]Exercise),
		userExerciseIDs: make(map[string][]string),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, username string) (*User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, err := s.uniqueID(func(id string) bool {
		_, taken := s.users[id]
		return taken
	})
	if err != nil {
		return nil, fmt.Errorf("new user id: %w", err)
	}

	user := User{ID: id, Username: username}
	s.users[id] = user
	s.userOrder = append(s.userOrder, id)

	return &user, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	users := make([]User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		users = append(users, s.users[id])
	}
	return users, nil
}

func (s *MemoryStore) FindUser(_ context.Context, id string) (*User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (s *MemoryStore) CreateExercise(
	_ context.Context,
	userID, description string,
	duration int,
	date time.Time,
) (*Exercise, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, ErrUserNotFound
	}

	id, err := s.uniqueID(func(id string) bool {
		_, taken := s.exercises[id]
		return taken
	})
	if err != nil {
		return nil, fmt.Errorf("new exercise id: %w", err)
	}

	exercise := Exercise{
		ID:          id,
		UserID:      userID,
		Description: description,
		Duration:    duration,
		Date:        date,
	}
	s.exercises[id] = exercise
	s.userExerciseIDs[userID] = append(s.userExerciseIDs[userID], id)

	return &exercise, nil
}

func (s *MemoryStore) ListExercises(_ context.Context, userID string) ([]Exercise, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := s.userExerciseIDs[userID]
	exercises := make([]Exercise, 0, len(ids))
	for _, id := range ids {
		exercises = append(exercises, s.exercises[id])
	}
	return exercises, nil
}

// uniqueID must be called with the write lock held.
func (s *MemoryStore) uniqueID(taken func(id string) bool) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := s.idGen.NewID()
		if err != nil {
			return "", err
		}
		if !taken(id) {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

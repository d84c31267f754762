//go:build integration_test || all_tests

package test

import (
	"context"
	"math"
	"time"

	"github.com/2beens/exercisetracker/internal/tracker"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestPsqlStore() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	store := tracker.NewPsqlStore(s.pgPool)

	username := gofakeit.Username()
	user, err := store.CreateUser(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, username, user.Username)

	found, err := store.FindUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user, found)

	_, err = store.FindUser(ctx, "missing-id")
	assert.ErrorIs(t, err, tracker.ErrUserNotFound)

	_, err = store.CreateExercise(ctx, "missing-id", "run", 10, time.Now())
	assert.ErrorIs(t, err, tracker.ErrUserNotFound)

	dates := []time.Time{
		time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
	}
	for i, date := range dates {
		_, err := store.CreateExercise(ctx, user.ID, gofakeit.Hobby(), i+1, date)
		require.NoError(t, err)
	}

	exercises, err := store.ListExercises(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, exercises, 3)
	for i, ex := range exercises {
		assert.Equal(t, user.ID, ex.UserID)
		// insertion order, not date order
		assert.Equal(t, i+1, ex.Duration)
		assert.True(t, dates[i].Equal(ex.Date))
	}

	// largest duration the handlers accept
	maxDuration, err := store.CreateExercise(ctx, user.ID, "ultra", math.MaxInt32, dates[0])
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt32, maxDuration.Duration)

	_, err = store.CreateExercise(ctx, user.ID, "too long", math.MaxInt32+1, dates[0])
	assert.Error(t, err)
	assert.NotErrorIs(t, err, tracker.ErrUserNotFound)

	other, err := store.CreateUser(ctx, gofakeit.Username())
	require.NoError(t, err)
	otherExercises, err := store.ListExercises(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, otherExercises)
}

func (s *IntegrationTestSuite) TestCachedStore() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	store := tracker.NewCachedStore(tracker.NewPsqlStore(s.pgPool), 1, 0)

	user, err := store.CreateUser(ctx, gofakeit.Username())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		found, err := store.FindUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Username, found.Username)
	}

	_, err = store.FindUser(ctx, "missing-id")
	assert.ErrorIs(t, err, tracker.ErrUserNotFound)
}

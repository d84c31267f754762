package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/exercisetracker/internal/telemetry/tracing"
	"github.com/2beens/exercisetracker/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var _ Store = (*PsqlStore)(nil)

type PsqlStore struct {
	db *pgxpool.Pool
}

func NewPsqlStore(db *pgxpool.Pool) *PsqlStore {
	return &PsqlStore{
		db: db,
	}
}

func (s *PsqlStore) CreateUser(ctx context.Context, username string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.psql.createUser")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var id string
	if err := s.db.QueryRow(
		ctx,
		`INSERT INTO app_user (username) VALUES ($1) RETURNING id;`,
		username,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", id))

	return &User{
		ID:       id,
		Username: username,
	}, nil
}

func (s *PsqlStore) ListUsers(ctx context.Context) (_ []User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.psql.listUsers")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := s.db.Query(ctx, `SELECT id, username FROM app_user ORDER BY seq;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *PsqlStore) FindUser(ctx context.Context, id string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.psql.findUser")
	defer func() {
		// not found is an expected outcome, don't mark the span as failed
		if errors.Is(err, ErrUserNotFound) {
			tracing.EndSpanWithErrCheck(span, nil)
			return
		}
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", id))

	user := User{ID: id}
	if err := s.db.QueryRow(
		ctx,
		`SELECT username FROM app_user WHERE id = $1;`,
		id,
	).Scan(&user.Username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &user, nil
}

func (s *PsqlStore) CreateExercise(
	ctx context.Context,
	userID, description string,
	duration int,
	date time.Time,
) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.psql.createExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	var id string
	if err := s.db.QueryRow(
		ctx,
		`INSERT INTO exercise (user_id, description, duration, date)
			VALUES ($1, $2, $3, $4)
			RETURNING id;`,
		userID, description, duration, date,
	).Scan(&id); err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("insert exercise: %w", err)
	}

	span.SetAttributes(attribute.String("exercise.id", id))

	return &Exercise{
		ID:          id,
		UserID:      userID,
		Description: description,
		Duration:    duration,
		Date:        date,
	}, nil
}

func (s *PsqlStore) ListExercises(ctx context.Context, userID string) (_ []Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.psql.listExercises")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	rows, err := s.db.Query(
		ctx,
		`SELECT id, user_id, description, duration, date
			FROM exercise
			WHERE user_id = $1
			ORDER BY seq;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exercises := make([]Exercise, 0)
	for rows.Next() {
		var e Exercise
		if err := rows.Scan(&e.ID, &e.UserID, &e.Description, &e.Duration, &e.Date); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		exercises = append(exercises, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("exercises.count", len(exercises)))

	return exercises, nil
}

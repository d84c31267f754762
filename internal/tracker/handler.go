package tracker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/2beens/exercisetracker/internal/events"
	"github.com/2beens/exercisetracker/internal/middleware"
	"github.com/2beens/exercisetracker/internal/telemetry/metrics"
	"github.com/2beens/exercisetracker/internal/telemetry/tracing"
	"github.com/2beens/exercisetracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type exercisePublisher interface {
	PublishExerciseLogged(ctx context.Context, event events.ExerciseLogged) error
}

type AddExerciseResponse struct {
	Username    string `json:"username"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Date        string `json:"date"`
	// the user's id, not the exercise's
	ID string `json:"_id"`
}

type LogResponse struct {
	Username string     `json:"username"`
	Count    int        `json:"count"`
	ID       string     `json:"_id"`
	Log      []LogEntry `json:"log"`
}

type Handler struct {
	store          Store
	publisher      exercisePublisher
	metricsManager *metrics.Manager
	now            func() time.Time
}

func NewHandler(
	store Store,
	publisher exercisePublisher,
	metricsManager *metrics.Manager,
) *Handler {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Handler{
		store:          store,
		publisher:      publisher,
		metricsManager: metricsManager,
		now:            time.Now,
	}
}

// SetupRoutes registers the tracker API. When rateLimiter is not nil, the
// write routes are limited to allowedPerMin requests per client IP.
func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	allowedPerMin int,
) {
	limited := func(h http.HandlerFunc) http.Handler {
		if rateLimiter == nil {
			return h
		}
		return middleware.RateLimit(rateLimiter, "tracker-write", allowedPerMin, handler.metricsManager)(h)
	}

	mainRouter.Handle("/api/users", limited(handler.HandleCreateUser)).Methods("POST", "OPTIONS").Name("create-user")
	mainRouter.HandleFunc("/api/users", handler.HandleListUsers).Methods("GET", "OPTIONS").Name("list-users")
	mainRouter.Handle("/api/users/{_id}/exercises", limited(handler.HandleAddExercise)).Methods("POST", "OPTIONS").Name("add-exercise")
	mainRouter.HandleFunc("/api/users/{_id}/logs", handler.HandleGetLog).Methods("GET", "OPTIONS").Name("get-log")
}

func (handler *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.createUser")
	defer span.End()

	fields, err := readBodyFields(w, r)
	if err != nil {
		handler.writeError(w, "create user", err)
		return
	}

	input, err := parseCreateUserInput(fields)
	if err != nil {
		handler.writeError(w, "create user", err)
		return
	}

	user, err := handler.store.CreateUser(ctx, input.Username)
	if err != nil {
		handler.writeError(w, "create user", err)
		return
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	handler.metricsManager.CounterUsersCreated.Inc()
	log.Debugf("new user created: [%s] %s", user.ID, user.Username)

	pkg.WriteJSON(w, user, http.StatusOK)
}

func (handler *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.listUsers")
	defer span.End()

	users, err := handler.store.ListUsers(ctx)
	if err != nil {
		handler.writeError(w, "list users", err)
		return
	}

	if users == nil {
		users = []User{}
	}
	span.SetAttributes(attribute.Int("users.count", len(users)))

	pkg.WriteJSON(w, users, http.StatusOK)
}

func (handler *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.addExercise")
	defer span.End()

	userID := mux.Vars(r)["_id"]
	span.SetAttributes(attribute.String("user.id", userID))

	fields, err := readBodyFields(w, r)
	if err != nil {
		handler.writeError(w, "add exercise", err)
		return
	}

	input, err := parseAddExerciseInput(fields, handler.now())
	if err != nil {
		handler.writeError(w, "add exercise", err)
		return
	}

	user, err := handler.store.FindUser(ctx, userID)
	if err != nil {
		handler.writeError(w, "add exercise", err)
		return
	}

	exercise, err := handler.store.CreateExercise(ctx, user.ID, input.Description, input.Duration, input.Date)
	if err != nil {
		handler.writeError(w, "add exercise", err)
		return
	}

	handler.metricsManager.CounterExercisesAdded.Inc()
	log.Debugf("new exercise [%s] added for user [%s]", exercise.ID, user.ID)

	if err := handler.publisher.PublishExerciseLogged(ctx, events.ExerciseLogged{
		ExerciseID:  exercise.ID,
		UserID:      user.ID,
		Username:    user.Username,
		Description: exercise.Description,
		Duration:    exercise.Duration,
		Date:        exercise.Date,
	}); err != nil {
		// the exercise is stored, the client doesn't need to know
		log.Errorf("publish exercise logged event [%s]: %s", exercise.ID, err)
		handler.metricsManager.CounterEventsPublishFailed.Inc()
	}

	pkg.WriteJSON(w, AddExerciseResponse{
		Username:    user.Username,
		Description: exercise.Description,
		Duration:    exercise.Duration,
		Date:        FormatDate(exercise.Date),
		ID:          user.ID,
	}, http.StatusOK)
}

func (handler *Handler) HandleGetLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.getLog")
	defer span.End()

	userID := mux.Vars(r)["_id"]
	span.SetAttributes(attribute.String("user.id", userID))

	query, err := parseLogQuery(r.URL.Query())
	if err != nil {
		handler.writeError(w, "get log", err)
		return
	}

	user, err := handler.store.FindUser(ctx, userID)
	if err != nil {
		handler.writeError(w, "get log", err)
		return
	}

	exercises, err := handler.store.ListExercises(ctx, user.ID)
	if err != nil {
		handler.writeError(w, "get log", err)
		return
	}

	filtered := FilterLog(exercises, query)
	entries := make([]LogEntry, 0, len(filtered))
	for _, e := range filtered {
		entries = append(entries, e.LogEntry())
	}
	span.SetAttributes(attribute.Int("log.count", len(entries)))

	pkg.WriteJSON(w, LogResponse{
		Username: user.Username,
		Count:    len(entries),
		ID:       user.ID,
		Log:      entries,
	}, http.StatusOK)
}

// writeError maps err to a response: validation errors to 400, missing users
// to 404, anything else to a generic 500 with the details only logged.
func (handler *Handler) writeError(w http.ResponseWriter, operation string, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		log.Tracef("%s, invalid input: %s", operation, err)
		pkg.WriteJSONError(w, validationErr.Message, http.StatusBadRequest)
	case errors.Is(err, ErrUserNotFound):
		log.Tracef("%s: %s", operation, err)
		pkg.WriteJSONError(w, msgUserNotFound, http.StatusNotFound)
	default:
		log.Errorf("%s: %s", operation, err)
		pkg.WriteJSONError(w, msgInternalError, http.StatusInternalServerError)
	}
}

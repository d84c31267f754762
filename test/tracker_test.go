//go:build integration_test || all_tests

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/2beens/exercisetracker/internal"
	"github.com/2beens/exercisetracker/internal/tracker"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestHealth() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	status, respBytes := s.doRequest(ctx, http.MethodGet, "/health", nil, "", nil)
	require.Equal(t, http.StatusOK, status)

	var health internal.HealthResponse
	require.NoError(t, json.Unmarshal(respBytes, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, internal.StorageModePostgres, health.Storage)
}

func (s *IntegrationTestSuite) TestSchemaBootstrapped() {
	t := s.T()

	for _, table := range []string{"app_user", "exercise"} {
		var exists bool
		err := s.DB.QueryRow(
			`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
			table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func (s *IntegrationTestSuite) TestAliceScenario() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	alice := s.createUser(ctx, "alice")

	added := s.addExercise(ctx, alice.ID, url.Values{
		"description": {"run"},
		"duration":    {"30"},
		"date":        {"2023-01-15"},
	})
	assert.Equal(t, tracker.AddExerciseResponse{
		Username:    "alice",
		Description: "run",
		Duration:    30,
		Date:        "Sun Jan 15 2023",
		ID:          alice.ID,
	}, added)

	logResp := s.getLog(ctx, alice.ID, "from=2023-01-01&to=2023-12-31&limit=5")
	assert.Equal(t, tracker.LogResponse{
		Username: "alice",
		Count:    1,
		ID:       alice.ID,
		Log: []tracker.LogEntry{
			{Description: "run", Duration: 30, Date: "Sun Jan 15 2023"},
		},
	}, logResp)
}

func (s *IntegrationTestSuite) TestAddExercise_JSONBody() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	user := s.createUser(ctx, gofakeit.Username())
	description := gofakeit.HipsterSentence(3)

	body := fmt.Sprintf(`{"description":%q,"duration":45}`, description)
	status, respBytes := s.doRequest(
		ctx,
		http.MethodPost,
		"/api/users/"+user.ID+"/exercises",
		strings.NewReader(body),
		"application/json",
		nil,
	)
	require.Equal(t, http.StatusOK, status, string(respBytes))

	var added tracker.AddExerciseResponse
	require.NoError(t, json.Unmarshal(respBytes, &added))
	assert.Equal(t, description, added.Description)
	assert.Equal(t, 45, added.Duration)
	// no date given -> now
	assert.NotEmpty(t, added.Date)
}

func (s *IntegrationTestSuite) TestListUsers() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	first := s.createUser(ctx, gofakeit.Username())
	second := s.createUser(ctx, gofakeit.Username())

	status, respBytes := s.doRequest(ctx, http.MethodGet, "/api/users", nil, "", nil)
	require.Equal(t, http.StatusOK, status)

	var users []tracker.User
	require.NoError(t, json.Unmarshal(respBytes, &users))

	firstIdx, secondIdx := -1, -1
	for i, u := range users {
		switch u.ID {
		case first.ID:
			firstIdx = i
		case second.ID:
			secondIdx = i
		}
	}
	require.NotEqual(t, -1, firstIdx)
	require.NotEqual(t, -1, secondIdx)
	assert.Less(t, firstIdx, secondIdx, "users must come back in creation order")
}

func (s *IntegrationTestSuite) TestLogFilters() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	user := s.createUser(ctx, gofakeit.Username())
	for _, date := range []string{"2023-01-01", "2023-06-01", "2023-12-01"} {
		s.addExercise(ctx, user.ID, url.Values{
			"description": {gofakeit.Hobby()},
			"duration":    {"10"},
			"date":        {date},
		})
	}

	full := s.getLog(ctx, user.ID, "")
	assert.Equal(t, 3, full.Count)
	require.Len(t, full.Log, 3)
	assert.Equal(t, "Sun Jan 01 2023", full.Log[0].Date)
	assert.Equal(t, "Fri Dec 01 2023", full.Log[2].Date)

	middle := s.getLog(ctx, user.ID, "from=2023-02-01&to=2023-11-30")
	require.Len(t, middle.Log, 1)
	assert.Equal(t, "Thu Jun 01 2023", middle.Log[0].Date)

	limited := s.getLog(ctx, user.ID, "from=2023-02-01&limit=1")
	assert.Equal(t, 1, limited.Count)
	assert.Equal(t, "Thu Jun 01 2023", limited.Log[0].Date)

	none := s.getLog(ctx, user.ID, "limit=0")
	assert.Equal(t, 0, none.Count)
	assert.Empty(t, none.Log)

	status, _ := s.doRequest(ctx, http.MethodGet, "/api/users/"+user.ID+"/logs?limit=abc", nil, "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func (s *IntegrationTestSuite) TestUnknownUser() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	status, respBytes := s.doRequest(ctx, http.MethodGet, "/api/users/does-not-exist/logs", nil, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"User not found"}`, string(respBytes))

	status, respBytes = s.postForm(ctx, "/api/users/does-not-exist/exercises", url.Values{
		"description": {"run"},
		"duration":    {"30"},
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"User not found"}`, string(respBytes))
}

func (s *IntegrationTestSuite) TestValidation() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	status, respBytes := s.postForm(ctx, "/api/users", url.Values{"username": {"  "}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Username is required"}`, string(respBytes))

	user := s.createUser(ctx, gofakeit.Username())
	status, respBytes = s.postForm(ctx, "/api/users/"+user.ID+"/exercises", url.Values{
		"description": {"run"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Description and duration are required"}`, string(respBytes))

	status, _ = s.postForm(ctx, "/api/users/"+user.ID+"/exercises", url.Values{
		"description": {"run"},
		"duration":    {"thirty"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func (s *IntegrationTestSuite) TestRateLimit() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	// a dedicated client ip, so other tests keep their own budget
	headers := map[string]string{"X-Real-Ip": "203.0.113.9"}

	var lastStatus int
	for i := 0; i <= testRateLimitPerMin; i++ {
		values := url.Values{"username": {gofakeit.Username()}}
		lastStatus, _ = s.doRequest(
			ctx,
			http.MethodPost,
			"/api/users",
			strings.NewReader(values.Encode()),
			"application/x-www-form-urlencoded",
			headers,
		)
		if lastStatus == http.StatusTooManyRequests {
			break
		}
		require.Equal(t, http.StatusOK, lastStatus)
	}
	assert.Equal(t, http.StatusTooManyRequests, lastStatus)

	// reads are not limited
	status, _ := s.doRequest(ctx, http.MethodGet, "/api/users", nil, "", headers)
	assert.Equal(t, http.StatusOK, status)
}

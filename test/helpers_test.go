//go:build integration_test || all_tests

package test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/2beens/exercisetracker/internal/tracker"

	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	contentType string,
	headers map[string]string,
) (int, []byte) {
	t := s.T()

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBytes
}

func (s *IntegrationTestSuite) postForm(ctx context.Context, path string, values url.Values) (int, []byte) {
	return s.doRequest(
		ctx,
		http.MethodPost,
		path,
		strings.NewReader(values.Encode()),
		"application/x-www-form-urlencoded",
		nil,
	)
}

func (s *IntegrationTestSuite) createUser(ctx context.Context, username string) tracker.User {
	t := s.T()

	status, respBytes := s.postForm(ctx, "/api/users", url.Values{"username": {username}})
	require.Equal(t, http.StatusOK, status, string(respBytes))

	var user tracker.User
	require.NoError(t, json.Unmarshal(respBytes, &user))
	require.Equal(t, username, user.Username)
	require.NotEmpty(t, user.ID)

	return user
}

func (s *IntegrationTestSuite) addExercise(ctx context.Context, userID string, values url.Values) tracker.AddExerciseResponse {
	t := s.T()

	status, respBytes := s.postForm(ctx, "/api/users/"+userID+"/exercises", values)
	require.Equal(t, http.StatusOK, status, string(respBytes))

	var added tracker.AddExerciseResponse
	require.NoError(t, json.Unmarshal(respBytes, &added))

	return added
}

func (s *IntegrationTestSuite) getLog(ctx context.Context, userID, rawQuery string) tracker.LogResponse {
	t := s.T()

	path := "/api/users/" + userID + "/logs"
	if rawQuery != "" {
		path += "?" + rawQuery
	}
	status, respBytes := s.doRequest(ctx, http.MethodGet, path, nil, "", nil)
	require.Equal(t, http.StatusOK, status, string(respBytes))

	var logResp tracker.LogResponse
	require.NoError(t, json.Unmarshal(respBytes, &logResp))

	return logResp
}

package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20

const (
	msgUsernameRequired     = "Username is required"
	msgExerciseFieldsNeeded = "Description and duration are required"
	msgInvalidDuration      = "Duration must be an integer"
	msgInvalidDate          = "Date must be a valid date"
	msgInvalidFrom          = "From must be a valid date"
	msgInvalidTo            = "To must be a valid date"
	msgInvalidLimit         = "Limit must be a non-negative integer"
	msgInvalidBody          = "Invalid request body"
	msgUserNotFound         = "User not found"
	msgInternalError        = "Internal server error"
)

// ValidationError is returned for client input that can't be accepted.
// Message is safe to send back to the client.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type createUserInput struct {
	Username string
}

type addExerciseInput struct {
	Description string
	Duration    int
	Date        time.Time
}

// readBodyFields reads a flat set of string fields from either a JSON object
// or a url-encoded form body.
func readBodyFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return readJSONFields(r)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, &ValidationError{Message: msgInvalidBody, Err: err}
	}

	fields := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		fields[key] = r.PostForm.Get(key)
	}
	return fields, nil
}

func readJSONFields(r *http.Request) (map[string]string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, &ValidationError{Message: msgInvalidBody, Err: err}
	}

	fields := make(map[string]string)
	if len(bytes.TrimSpace(body)) == 0 {
		return fields, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, &ValidationError{Message: msgInvalidBody, Err: err}
	}

	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			// treated as absent
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = numberField(v)
		case bool:
			fields[key] = strconv.FormatBool(v)
		default:
			return nil, &ValidationError{
				Message: msgInvalidBody,
				Err:     fmt.Errorf("field %q has unsupported type %T", key, value),
			}
		}
	}

	return fields, nil
}

// numberField keeps integral floats like 30.0 usable as integers.
func numberField(n json.Number) string {
	if _, err := n.Int64(); err == nil {
		return n.String()
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return n.String()
	}
	return strconv.FormatInt(int64(f), 10)
}

// Blank checks are done on trimmed values, the stored values are kept as sent.
func parseCreateUserInput(fields map[string]string) (createUserInput, error) {
	username := fields["username"]
	if strings.TrimSpace(username) == "" {
		return createUserInput{}, &ValidationError{Message: msgUsernameRequired}
	}
	return createUserInput{Username: username}, nil
}

// parseAddExerciseInput defaults a missing or empty date to now.
func parseAddExerciseInput(fields map[string]string, now time.Time) (addExerciseInput, error) {
	description := fields["description"]
	durationStr := strings.TrimSpace(fields["duration"])
	if strings.TrimSpace(description) == "" || durationStr == "" {
		return addExerciseInput{}, &ValidationError{Message: msgExerciseFieldsNeeded}
	}

	// the durable column is a 32-bit INTEGER
	parsedDuration, err := strconv.ParseInt(durationStr, 10, 32)
	if err != nil {
		return addExerciseInput{}, &ValidationError{Message: msgInvalidDuration, Err: err}
	}
	duration := int(parsedDuration)

	date := now
	if dateStr := strings.TrimSpace(fields["date"]); dateStr != "" {
		date, err = ParseDate(dateStr)
		if err != nil {
			return addExerciseInput{}, &ValidationError{Message: msgInvalidDate, Err: err}
		}
	}

	return addExerciseInput{
		Description: description,
		Duration:    duration,
		Date:        date,
	}, nil
}

func parseLogQuery(values url.Values) (LogQuery, error) {
	var query LogQuery

	if from := strings.TrimSpace(values.Get("from")); from != "" {
		t, err := ParseDate(from)
		if err != nil {
			return LogQuery{}, &ValidationError{Message: msgInvalidFrom, Err: err}
		}
		query.From = &t
	}

	if to := strings.TrimSpace(values.Get("to")); to != "" {
		t, err := ParseDate(to)
		if err != nil {
			return LogQuery{}, &ValidationError{Message: msgInvalidTo, Err: err}
		}
		query.To = &t
	}

	if limitStr := strings.TrimSpace(values.Get("limit")); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return LogQuery{}, &ValidationError{Message: msgInvalidLimit, Err: err}
		}
		query.Limit = &limit
	}

	return query, nil
}

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/bptrack/internal/bloodpressure"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Timeout: 5 * time.Second}, nil)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func success(data any) map[string]any {
	return map[string]any{"status": "success", "message": "ok", "data": data, "request_id": "srv-1"}
}

func TestLoginStoresToken(t *testing.T) {
	var meHeaders http.Header
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var creds Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "a@example.com", creds.Email)
			assert.Equal(t, "hunter22", creds.Password)
			writeJSON(t, w, http.StatusOK, success(map[string]any{
				"access_token": "tok-1",
				"token_type":   "bearer",
				"expires_in":   1800,
				"user":         map[string]any{"id": 7, "full_name": "Ann", "role": "patient"},
			}))
		case "/api/v1/users/me":
			meHeaders = r.Header.Clone()
			writeJSON(t, w, http.StatusOK, success(map[string]any{
				"profile": map[string]any{"id": 7, "full_name": "Ann", "role": "patient", "date_of_birth": "1990-04-02T00:00:00"},
			}))
		default:
			http.NotFound(w, r)
		}
	})

	session, err := client.Login(context.Background(), Credentials{Email: "a@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.AccessToken)
	assert.Equal(t, int64(7), session.User.ID)
	assert.Equal(t, "tok-1", client.Token())

	user, err := client.CurrentUser(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", meHeaders.Get("Authorization"))
	assert.Equal(t, "test-key", meHeaders.Get(HeaderAPIKey))
	assert.NotEmpty(t, meHeaders.Get(HeaderRequestID))

	person := user.Person()
	assert.Equal(t, bloodpressure.RolePatient, person.Role)
	require.NotNil(t, person.DateOfBirth)
	assert.Equal(t, 34, person.Age(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)))
}

func TestLogoutClearsToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"status": "success", "message": "Logged out"})
	})
	client.SetToken("tok")

	require.NoError(t, client.Logout(context.Background()))
	assert.Empty(t, client.Token())
}

func TestErrorDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"detail": "Invalid credentials"})
	})

	_, err := client.Login(context.Background(), Credentials{Email: "a@example.com", Password: "nope"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid credentials", apiErr.Detail)
	assert.True(t, IsUnauthorized(err))
	assert.Empty(t, client.Token())
}

func TestErrorValidationEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{
			"status":  "error",
			"message": "Validation error",
			"errors":  []map[string]string{{"field": "body.systolic", "message": "too high"}},
		})
	})

	_, err := client.CreateRecord(context.Background(), RecordInput{Systolic: 999})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Validation error", apiErr.Message)
	require.Len(t, apiErr.Errors, 1)
	assert.Contains(t, err.Error(), "body.systolic: too high")
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))
}

func TestErrorStatusInSuccessfulResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"status": "error", "message": "Something broke"})
	})

	err := client.DeleteRecord(context.Background(), 3)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, "Something broke", apiErr.Message)
}

func TestErrorPlainTextBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down\n")
	})

	err := client.DeleteRecord(context.Background(), 3)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Detail)
}

func TestGetIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, http.StatusOK, success(map[string]any{"records": []any{}}))
	}))
	t.Cleanup(srv.Close)
	client := NewClient(Config{BaseURL: srv.URL, RetryCount: 1}, nil)

	_, err := client.ListRecords(context.Background(), ListOptions{})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWriteIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(Config{BaseURL: srv.URL, RetryCount: 3}, nil)

	_, err := client.CreateRecord(context.Background(), RecordInput{Systolic: 120, Diastolic: 80, Pulse: 70})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTimeUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{"naive", `"2024-03-01T08:30:00"`, time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"naive micro", `"2024-03-01T08:30:00.250000"`, time.Date(2024, 3, 1, 8, 30, 0, 250000000, time.UTC)},
		{"offset", `"2024-03-01T15:30:00+07:00"`, time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Time
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.True(t, got.Equal(tt.expected), "got %v", got.Time)
		})
	}

	var bad Time
	assert.Error(t, json.Unmarshal([]byte(`"last tuesday"`), &bad))
}

func TestTimeNullAndMarshal(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"measurement_date":null,"created_at":"2024-01-02T03:04:05"}`), &rec))
	assert.Nil(t, rec.MeasurementDate)
	assert.Nil(t, rec.MeasurementDate.Ptr())
	require.NotNil(t, rec.CreatedAt.Ptr())

	b, err := json.Marshal(NewTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-02T03:04:05Z"`, string(b))
	assert.Nil(t, NewTime(time.Time{}))
}

func TestAPIErrorMessageFallback(t *testing.T) {
	err := &APIError{StatusCode: http.StatusNotFound}
	assert.True(t, strings.HasSuffix(err.Error(), "Not Found"))
}

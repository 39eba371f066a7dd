package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-proctor-service/internal/domain"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *ErrorBody      `json:"error"`
}

func doJSON(t *testing.T, env testEnv, method, path string, body any, token string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var out envelope
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func login(t *testing.T, env testEnv) string {
	t.Helper()
	code, out := doJSON(t, env, http.MethodPost, "/api/instructor/login", map[string]string{"passcode": testPasscode}, "")
	require.Equal(t, http.StatusOK, code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(out.Data, &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestGetQuizHidesAnswerKey(t *testing.T) {
	env := newTestEnv(t)

	code, out := doJSON(t, env, http.MethodGet, "/api/quiz", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(out.Data), "correctAnswer")

	var resp struct {
		Quiz          domain.PublicQuestionSet `json:"quiz"`
		MaxViolations int                      `json:"maxViolations"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &resp))
	assert.Len(t, resp.Quiz.Questions, 2)
	assert.Equal(t, 300, resp.Quiz.DurationSeconds)
	assert.Equal(t, 3, resp.MaxViolations)
}

func TestRegisterStudent(t *testing.T) {
	env := newTestEnv(t)

	code, out := doJSON(t, env, http.MethodPost, "/api/students", map[string]string{
		"studentId": "1001", "name": " Alice ", "email": "alice@school.test",
	}, "")
	require.Equal(t, http.StatusCreated, code)
	var student domain.Student
	require.NoError(t, json.Unmarshal(out.Data, &student))
	assert.Equal(t, "Alice", student.Name)
	assert.NotEmpty(t, student.ID)
}

func TestRegisterValidationMessages(t *testing.T) {
	env := newTestEnv(t)

	code, out := doJSON(t, env, http.MethodPost, "/api/students", map[string]string{
		"studentId": "abc", "name": "", "email": "not-an-email",
	}, "")
	require.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrValidation, out.Error.Code)
	assert.Contains(t, out.Error.Fields, "studentId")
	assert.Contains(t, out.Error.Fields, "name")
	assert.Contains(t, out.Error.Fields, "email")
}

func TestRegisterAfterSubmissionConflicts(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateSubmission(context.Background(), domain.Submission{
		ID: "s1", StudentID: "1001", Score: 80, TotalQuestions: 2, Timestamp: time.Now(),
	}))

	code, out := doJSON(t, env, http.MethodPost, "/api/students", map[string]string{
		"studentId": "1001", "name": "Alice", "email": "alice@school.test",
	}, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, ErrDuplicateAttempt, out.Error.Code)
}

func TestResultVisibleOnlyAfterRelease(t *testing.T) {
	env := newTestEnv(t)

	code, out := doJSON(t, env, http.MethodGet, "/api/results/1001", nil, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrNotSubmitted, out.Error.Code)

	require.NoError(t, env.store.CreateSubmission(context.Background(), domain.Submission{
		ID: "s1", StudentID: "1001", Score: 80, TotalQuestions: 2, Timestamp: time.Now(),
	}))
	code, out = doJSON(t, env, http.MethodGet, "/api/results/1001", nil, "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, ErrResultNotReleased, out.Error.Code)

	token := login(t, env)
	code, _ = doJSON(t, env, http.MethodPost, "/api/instructor/release", nil, token)
	require.Equal(t, http.StatusOK, code)

	code, out = doJSON(t, env, http.MethodGet, "/api/results/1001", nil, "")
	require.Equal(t, http.StatusOK, code)
	var sub domain.Submission
	require.NoError(t, json.Unmarshal(out.Data, &sub))
	assert.Equal(t, 80, sub.Score)
	assert.True(t, sub.Released)
}

func TestInstructorLogin(t *testing.T) {
	env := newTestEnv(t)

	code, out := doJSON(t, env, http.MethodPost, "/api/instructor/login", map[string]string{"passcode": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, ErrInvalidPasscode, out.Error.Code)

	code, out = doJSON(t, env, http.MethodPost, "/api/instructor/login", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out.Error.Fields, "passcode")

	token := login(t, env)
	claims, err := env.auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "instructor", claims.Role)
}

func TestInstructorRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/instructor/submissions", "/api/instructor/stats", "/api/instructor/release"} {
		code, out := doJSON(t, env, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, ErrTokenRequired, out.Error.Code, path)

		code, out = doJSON(t, env, http.MethodGet, path, nil, "garbage")
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, ErrTokenInvalid, out.Error.Code, path)
	}
}

func TestDashboardEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerStudent(t, "1001", "alice")
	env.registerStudent(t, "1002", "Bob")
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.store.CreateSubmission(ctx, domain.Submission{
		ID: "a", StudentID: "1001", Score: 90, Violations: 0, CorrectAnswers: 9, TotalQuestions: 10, Timestamp: base,
	}))
	require.NoError(t, env.store.CreateSubmission(ctx, domain.Submission{
		ID: "b", StudentID: "1002", Score: 55, Violations: 3, CorrectAnswers: 5, TotalQuestions: 10, Timestamp: base.Add(time.Minute),
	}))
	token := login(t, env)

	code, out := doJSON(t, env, http.MethodGet, "/api/instructor/submissions?sort=studentName&dir=asc", nil, token)
	require.Equal(t, http.StatusOK, code)
	var rows []struct {
		StudentName   string `json:"studentName"`
		ScoreBand     string `json:"scoreBand"`
		ViolationBand string `json:"violationBand"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].StudentName)
	assert.Equal(t, "excellent", rows[0].ScoreBand)
	assert.Equal(t, "flagged", rows[1].ViolationBand)

	code, out = doJSON(t, env, http.MethodGet, "/api/instructor/submissions?sort=bogus", nil, token)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrValidation, out.Error.Code)

	code, out = doJSON(t, env, http.MethodGet, "/api/instructor/stats", nil, token)
	require.Equal(t, http.StatusOK, code)
	var stats struct {
		Total        int `json:"total"`
		AverageScore int `json:"averageScore"`
		Passed       int `json:"passed"`
		PassRate     int `json:"passRate"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 73, stats.AverageScore)
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 50, stats.PassRate)
}

func TestReleaseToggle(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateSubmission(context.Background(), domain.Submission{
		ID: "s1", StudentID: "1001", Score: 80, TotalQuestions: 2, Timestamp: time.Now(),
	}))
	token := login(t, env)

	var status releaseStatus
	code, out := doJSON(t, env, http.MethodGet, "/api/instructor/release", nil, token)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(out.Data, &status))
	assert.False(t, status.Released)

	_, out = doJSON(t, env, http.MethodPost, "/api/instructor/release", nil, token)
	require.NoError(t, json.Unmarshal(out.Data, &status))
	assert.Equal(t, 1, status.Changed)

	_, out = doJSON(t, env, http.MethodPost, "/api/instructor/release", nil, token)
	require.NoError(t, json.Unmarshal(out.Data, &status))
	assert.Equal(t, 0, status.Changed)
	assert.True(t, status.Released)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/auth"
	"quiz-proctor-service/internal/metrics"
	"quiz-proctor-service/internal/validator"
)

type quizResponse struct {
	Quiz          any `json:"quiz"`
	MaxViolations int `json:"maxViolations"`
}

// StudentHandler serves the public student endpoints.
type StudentHandler struct {
	quiz      *app.QuizService
	registrar *app.Registrar
	release   *app.ReleaseService
}

func NewStudentHandler(quiz *app.QuizService, registrar *app.Registrar, release *app.ReleaseService) *StudentHandler {
	return &StudentHandler{quiz: quiz, registrar: registrar, release: release}
}

// GetQuiz returns the question set without the answer key.
func (h *StudentHandler) GetQuiz(c *gin.Context) {
	qs, err := h.quiz.QuestionSet(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}
	success(c, http.StatusOK, quizResponse{Quiz: qs.Public(), MaxViolations: h.quiz.MaxViolations()})
}

// Register admits a student.
func (h *StudentHandler) Register(c *gin.Context) {
	var form app.RegistrationForm
	if err := c.ShouldBindJSON(&form); err != nil {
		fail(c, http.StatusBadRequest, ErrInvalidPayload)
		return
	}
	student, err := h.registrar.Register(c.Request.Context(), form)
	if err != nil {
		failFromError(c, err)
		return
	}
	success(c, http.StatusCreated, student)
}

// Result returns a released score.
func (h *StudentHandler) Result(c *gin.Context) {
	sub, err := h.release.StudentResult(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		failFromError(c, err)
		return
	}
	success(c, http.StatusOK, sub)
}

// InstructorHandler serves login, the dashboard and the release toggle.
type InstructorHandler struct {
	auth      *auth.Authenticator
	dashboard *app.Dashboard
	release   *app.ReleaseService
	log       zerolog.Logger
}

func NewInstructorHandler(authenticator *auth.Authenticator, dashboard *app.Dashboard, release *app.ReleaseService, log zerolog.Logger) *InstructorHandler {
	return &InstructorHandler{
		auth:      authenticator,
		dashboard: dashboard,
		release:   release,
		log:       log.With().Str("component", "instructor_handler").Logger(),
	}
}

type loginRequest struct {
	Passcode string `json:"passcode" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	LoginTime time.Time `json:"loginTime"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login exchanges the shared passcode for a token.
func (h *InstructorHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failWithFields(c, http.StatusBadRequest, ErrValidation, validator.TranslateErrors(err))
		return
	}
	token, claims, err := h.auth.Login(req.Passcode)
	metrics.RecordLogin(err == nil)
	if err != nil {
		h.log.Warn().Str("client_ip", c.ClientIP()).Msg("instructor login rejected")
		failFromError(c, err)
		return
	}
	success(c, http.StatusOK, loginResponse{
		Token:     token,
		LoginTime: claims.LoginTime,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

// Submissions lists dashboard rows, sorted by ?sort= and ?dir=.
func (h *InstructorHandler) Submissions(c *gin.Context) {
	field, dir, err := app.ParseSort(c.Query("sort"), c.Query("dir"))
	if err != nil {
		failWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"sort": err.Error()})
		return
	}
	rows, err := h.dashboard.Rows(c.Request.Context(), field, dir)
	if err != nil {
		failFromError(c, err)
		return
	}
	success(c, http.StatusOK, rows)
}

func (h *InstructorHandler) Stats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}
	success(c, http.StatusOK, stats)
}

type releaseStatus struct {
	Released bool `json:"released"`
	Changed  int  `json:"changed"`
}

func (h *InstructorHandler) ReleaseStatus(c *gin.Context) {
	released, err := h.release.AreReleased(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}
	success(c, http.StatusOK, releaseStatus{Released: released})
}

// Release publishes every pending score.
func (h *InstructorHandler) Release(c *gin.Context) {
	n, err := h.release.ReleaseAll(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}
	success(c, http.StatusOK, releaseStatus{Released: true, Changed: n})
}

package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"quiz-proctor-service/internal/domain"
)

// ErrCode identifies an API error independently of the message text.
type ErrCode string

const (
	ErrInvalidPasscode   ErrCode = "INVALID_PASSCODE"
	ErrTokenRequired     ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid      ErrCode = "TOKEN_INVALID"
	ErrValidation        ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload    ErrCode = "INVALID_PAYLOAD"
	ErrDuplicateAttempt  ErrCode = "DUPLICATE_ATTEMPT"
	ErrStudentNotFound   ErrCode = "STUDENT_NOT_FOUND"
	ErrNotSubmitted      ErrCode = "NOT_SUBMITTED"
	ErrResultNotReleased ErrCode = "RESULT_NOT_RELEASED"
	ErrQuizUnavailable   ErrCode = "QUIZ_UNAVAILABLE"
	ErrInternal          ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrInvalidPasscode:   "Invalid instructor passcode.",
	ErrTokenRequired:     "Instructor token is required.",
	ErrTokenInvalid:      "Instructor token is invalid or expired.",
	ErrValidation:        "Validation failed. Please check your input.",
	ErrInvalidPayload:    "Request payload is invalid.",
	ErrDuplicateAttempt:  "You have already taken this quiz.",
	ErrStudentNotFound:   "Student is not registered.",
	ErrNotSubmitted:      "No submission found for this student.",
	ErrResultNotReleased: "Results have not been released yet.",
	ErrQuizUnavailable:   "Quiz content is unavailable.",
	ErrInternal:          "Internal server error.",
}

// Message returns the human readable text for code.
func Message(code ErrCode) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return "Unexpected error."
}

// Response is the API envelope.
type Response struct {
	Data     any        `json:"data"`
	Error    *ErrorBody `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

const contextKeyRequestID = "request_id"

// RequestID tags every request with X-Request-ID, generating one if absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Data: data, Metadata: metadata(c)})
}

func fail(c *gin.Context, status int, code ErrCode) {
	c.JSON(status, Response{Error: &ErrorBody{Code: code, Message: Message(code)}, Metadata: metadata(c)})
}

func failWithFields(c *gin.Context, status int, code ErrCode, fields map[string]string) {
	c.JSON(status, Response{
		Error:    &ErrorBody{Code: code, Message: Message(code), Fields: fields},
		Metadata: metadata(c),
	})
}

func abortFail(c *gin.Context, status int, code ErrCode) {
	c.AbortWithStatusJSON(status, Response{Error: &ErrorBody{Code: code, Message: Message(code)}, Metadata: metadata(c)})
}

func metadata(c *gin.Context) Metadata {
	id := c.GetString(contextKeyRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	return Metadata{RequestID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// failFromError maps domain errors onto status codes.
func failFromError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		failWithFields(c, http.StatusBadRequest, ErrValidation, verr.Fields)
	case errors.Is(err, domain.ErrDuplicateAttempt):
		fail(c, http.StatusConflict, ErrDuplicateAttempt)
	case errors.Is(err, domain.ErrStudentNotFound):
		fail(c, http.StatusNotFound, ErrStudentNotFound)
	case errors.Is(err, domain.ErrSubmissionNotFound):
		fail(c, http.StatusNotFound, ErrNotSubmitted)
	case errors.Is(err, domain.ErrResultNotReleased):
		fail(c, http.StatusForbidden, ErrResultNotReleased)
	case errors.Is(err, domain.ErrQuestionSetNotFound), errors.Is(err, domain.ErrInvalidQuestionSet):
		fail(c, http.StatusServiceUnavailable, ErrQuizUnavailable)
	case errors.Is(err, domain.ErrInvalidPasscode):
		fail(c, http.StatusUnauthorized, ErrInvalidPasscode)
	default:
		fail(c, http.StatusInternalServerError, ErrInternal)
	}
}

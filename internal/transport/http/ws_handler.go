package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/countdown"
	"quiz-proctor-service/internal/proctor"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWSHandler builds the quiz channel handler. An empty allowedOrigins
// accepts every origin.
func NewWSHandler(service *app.QuizService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range allowedOrigins {
					if strings.EqualFold(allowed, origin) {
						return true
					}
				}
				return false
			},
		},
		log: log.With().Str("component", "ws_handler").Logger(),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type navigatePayload struct {
	Index int `json:"index"`
}

type signalPayload struct {
	Signal string `json:"signal"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type tickPayload struct {
	Remaining int    `json:"remaining"`
	Clock     string `json:"clock"`
}

type submittedPayload struct {
	Reason    app.SubmitReason `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// Serve upgrades GET /ws?studentId= and runs one proctored attempt over the
// connection. Scores are never sent; students read them after release.
func (h *WSHandler) Serve(c *gin.Context) {
	studentID := strings.TrimSpace(c.Query("studentId"))
	if studentID == "" {
		fail(c, http.StatusBadRequest, ErrInvalidPayload)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("student_id", studentID).Logger()
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	// push never blocks past teardown, so hooks fired by the timer goroutine
	// cannot outlive the connection.
	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	attempt, err := h.service.BeginAttempt(ctx, studentID, app.AttemptHooks{
		OnTick: func(remaining int) {
			push(outboundMessage[any]{Type: "tick", Payload: tickPayload{Remaining: remaining, Clock: countdown.FormatClock(remaining)}})
		},
		OnViolation: func(state proctor.State) {
			push(outboundMessage[any]{Type: "violation", Payload: state})
		},
		OnSubmitted: func(o app.SubmitOutcome) {
			// manual submits are answered by dispatch
			if o.Reason != app.ReasonManual {
				push(submittedMessage(o))
			}
		},
		OnSubmitFailed: func(reason app.SubmitReason, _ error) {
			if reason != app.ReasonManual {
				push(errorMessage("automatic submission failed, please submit again"))
			}
		},
	})
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	defer attempt.Close()

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					wsLog.Warn().Err(err).Msg("ws write error")
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	wsLog.Info().Msg("student connected")
	push(outboundMessage[any]{Type: "state", Payload: attempt.State()})
	attempt.Start(ctx)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("unexpected close")
			}
			break
		}
		if reply, ok := h.dispatch(ctx, attempt, inbound); ok {
			push(reply)
		}
	}

	attempt.Close()
	close(closeSignals)
	<-writerDone
	wsLog.Info().Msg("student disconnected")
}

// dispatch applies one client message. The bool is false when the reply is
// delivered by an attempt hook instead.
func (h *WSHandler) dispatch(ctx context.Context, attempt *app.Attempt, in inboundMessage) (outboundMessage[any], bool) {
	var (
		snap app.Snapshot
		err  error
	)
	switch in.Type {
	case "answer":
		var p answerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage("invalid answer payload"), true
		}
		snap, err = attempt.SelectAnswer(ctx, p.QuestionIndex, p.OptionIndex)
	case "clear":
		var p answerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage("invalid clear payload"), true
		}
		snap, err = attempt.ClearAnswer(ctx, p.QuestionIndex)
	case "navigate":
		var p navigatePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage("invalid navigate payload"), true
		}
		snap, err = attempt.Navigate(ctx, p.Index)
	case "next":
		snap, err = attempt.Next(ctx)
	case "previous":
		snap, err = attempt.Previous(ctx)
	case "signal":
		var p signalPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage("invalid signal payload"), true
		}
		sig, err := proctor.ParseSignal(p.Signal)
		if err != nil {
			return errorMessage(err.Error()), true
		}
		if _, err := attempt.Signal(sig); err != nil {
			return errorMessage(err.Error()), true
		}
		return outboundMessage[any]{}, false
	case "dismissWarning":
		return outboundMessage[any]{Type: "violation", Payload: attempt.DismissWarning()}, true
	case "submit":
		outcome, err := attempt.Submit(ctx, app.ReasonManual)
		if err != nil {
			return errorMessage(err.Error()), true
		}
		return submittedMessage(outcome), true
	default:
		return errorMessage("unsupported message type"), true
	}
	if err != nil {
		return errorMessage(err.Error()), true
	}
	return outboundMessage[any]{Type: "state", Payload: stateFrom(attempt, snap)}, true
}

func submittedMessage(o app.SubmitOutcome) outboundMessage[any] {
	return outboundMessage[any]{Type: "submitted", Payload: submittedPayload{
		Reason:    o.Reason,
		Timestamp: o.Result.Submission.Timestamp,
	}}
}

func stateFrom(attempt *app.Attempt, snap app.Snapshot) app.AttemptState {
	state := attempt.State()
	state.Session = snap
	return state
}

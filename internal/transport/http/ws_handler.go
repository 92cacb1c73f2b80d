package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/domain"
)

// WSHandler runs the study stream: answers and finished sessions come in,
// queue acknowledgements and live totals go out.
type WSHandler struct {
	service  *app.ProgressService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ProgressService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
}

type attemptQueued struct {
	QuestionID string `json:"questionId"`
	Queued     bool   `json:"queued"`
}

type sessionSaved struct {
	ID string `json:"id"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades an authenticated request. The stream tracks the caller's
// own subject unless ?subjectId= names another one the caller may access.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := CallerID(ctx)
	subjectID := r.URL.Query().Get("subjectId")
	if subjectID == "" {
		subjectID = callerID
	}
	ctx = config.ContextWithFields(ctx, logrus.Fields{"subject_id": subjectID})
	log := config.WithContext(ctx)

	// Authorizes before the upgrade so a refusal is a plain HTTP error.
	totals, err := h.service.Stats(ctx, callerID, subjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.service.Feed().Subscribe(subjectID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "stats", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "stats", Payload: app.StatsUpdate{SubjectID: subjectID, Totals: totals}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			queued, err := h.service.SubmitAttempt(ctx, callerID, app.Attempt{
				SubjectID:  subjectID,
				QuestionID: payload.QuestionID,
				Correct:    payload.Correct,
			})
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "attemptQueued", Payload: attemptQueued{QuestionID: payload.QuestionID, Queued: queued}}
		case "finish":
			var record domain.SessionRecord
			if err := json.Unmarshal(inbound.Payload, &record); err != nil {
				send <- errorMessage("invalid session payload")
				continue
			}
			id, err := h.service.SaveSession(ctx, callerID, subjectID, record)
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "sessionSaved", Payload: sessionSaved{ID: id}}
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

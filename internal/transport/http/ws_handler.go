package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"proctored-quiz-engine/internal/app"
	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/media"
)

type WSHandler struct {
	service  *app.ProctorService
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ProctorService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
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
	Option     string `json:"option"`
}

type changeSubjectPayload struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Category domain.Category `json:"category"`
	Message  string          `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{
		Category: domain.CategoryOf(err),
		Message:  domain.Message(err),
	}}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the session use cases.
// Snapshots are pushed on every change; the session outlives the connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	session, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(domain.CategoryOf(err)), domain.Message(err))
		return
	}
	log := h.log.WithField("session", id)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := session.Engine.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// a single writer goroutine owns the connection's write side
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		resultSent := false
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				msgs := []outboundMessage[any]{{Type: "snapshot", Payload: snap}}
				if snap.State == domain.StateCompleted && snap.Result != nil && !resultSent {
					resultSent = true
					msgs = append(msgs, outboundMessage[any]{Type: "result", Payload: snap.Result})
				}
				for _, msg := range msgs {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(r, session, inbound); err != nil {
			select {
			case send <- errorMessage(err):
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

var errBadPayload = domain.E(domain.CategoryValidation, "ws.dispatch", errInvalidPayload)

func (h *WSHandler) dispatch(r *http.Request, session *app.Session, msg inboundMessage) error {
	engine := session.Engine
	switch msg.Type {
	case "consent":
		var access media.Access
		if err := json.Unmarshal(msg.Payload, &access); err != nil {
			return errBadPayload
		}
		return h.service.Consent(r.Context(), session.ID, access)
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errBadPayload
		}
		return engine.SelectAnswer(payload.QuestionID, payload.Option)
	case "next":
		return engine.NextQuestion()
	case "previous":
		return engine.PreviousQuestion()
	case "changeSubject":
		var payload changeSubjectPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errBadPayload
		}
		return engine.ChangeSubject(payload.Index)
	case "submitSubject":
		return engine.SubmitCurrentSubject()
	case "submitAll":
		return engine.SubmitAll()
	case "signal":
		var sig media.Signal
		if err := json.Unmarshal(msg.Payload, &sig); err != nil {
			return errBadPayload
		}
		return h.service.Signal(r.Context(), session.ID, sig)
	case "cancel":
		return h.service.Cancel(r.Context(), session.ID)
	}
	return domain.E(domain.CategoryValidation, "ws.dispatch", errUnsupported)
}

package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"proctored-quiz-engine/internal/app"
	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/media"
)

// NewRouter wires the REST and WebSocket endpoints of the proctoring service.
func NewRouter(service *app.ProctorService, log logrus.FieldLogger) http.Handler {
	h := &restHandler{service: service, log: log}
	ws := NewWSHandler(service, log)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/sessions", h.start).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", h.cancel).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/consent", h.consent).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/result", h.result).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/ws", ws.ServeWS).Methods(http.MethodGet)
	return r
}

type restHandler struct {
	service *app.ProctorService
	log     logrus.FieldLogger
}

// startRequest accepts courses as a JSON array, a JSON-encoded array or a comma string.
type startRequest struct {
	StudentID string          `json:"studentId"`
	Courses   json.RawMessage `json:"courses"`
	ClassName string          `json:"className"`
	Mode      string          `json:"mode"`
}

func (h *restHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := h.service.Start(r.Context(), app.StartRequest{
		StudentID: req.StudentID,
		Courses:   catalog.NormalizeCourses(req.Courses),
		ClassName: req.ClassName,
		Mode:      req.Mode,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.Engine.Snapshot())
}

func (h *restHandler) get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Engine.Snapshot())
}

func (h *restHandler) consent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var access media.Access
	if err := json.NewDecoder(r.Body).Decode(&access); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.Consent(r.Context(), id, access); err != nil {
		h.fail(w, err)
		return
	}
	h.get(w, r)
}

func (h *restHandler) result(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *restHandler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *restHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(domain.CategoryOf(err))
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	writeError(w, status, domain.Message(err))
}

func statusFor(category domain.Category) int {
	switch category {
	case domain.CategoryValidation:
		return http.StatusBadRequest
	case domain.CategoryConsent:
		return http.StatusForbidden
	case domain.CategoryNotFound:
		return http.StatusNotFound
	case domain.CategoryState:
		return http.StatusConflict
	case domain.CategoryInitialization:
		return http.StatusUnprocessableEntity
	case domain.CategoryPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"converseiq-service/internal/app"
	"converseiq-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ConversationHandler exposes the session progression operations over REST.
type ConversationHandler struct {
	service *app.ConversationService
}

func NewConversationHandler(service *app.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleStartSession)
	r.Get("/sessions/{sessionId}/next-question", h.handleNextQuestion)
	r.Post("/sessions/{sessionId}/answers", h.handleSubmitAnswer)
	r.Get("/sessions/{sessionId}/events", h.handleListEvents)
}

type startSessionRequest struct {
	User *domain.UserDescriptor `json:"user"`
}

type submitAnswerRequest struct {
	QuestionID string          `json:"questionId"`
	Response   json.RawMessage `json:"response"`
}

func (h *ConversationHandler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var payload startSessionRequest
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	progress, err := h.service.StartSession(r.Context(), payload.User)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, progress)
}

func (h *ConversationHandler) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.GetNextQuestion(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (h *ConversationHandler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var payload submitAnswerRequest
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	response, err := decodeResponseValue(payload.Response)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid response value")
		return
	}

	outcome, err := h.service.RecordAnswer(r.Context(), chi.URLParam(r, "sessionId"), payload.QuestionID, response)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, outcome)
}

func (h *ConversationHandler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// decodeBody treats an empty body as an empty JSON object.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// decodeResponseValue returns nil for an absent or null response. Numbers are
// kept as json.Number so their textual form survives normalization.
func decodeResponseValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

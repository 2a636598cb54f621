package http

import (
	"encoding/json"
	"log"
	"net/http"

	"converseiq-service/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError picks the status from the error kind, never from its text.
func respondDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindNotFound:
		respondError(w, http.StatusNotFound, err.Error())
	case domain.KindValidation, domain.KindInvalidState, domain.KindConflict:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("conversation handler error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	log.Printf("conversation request rejected (%s): %v", kind, err)
}

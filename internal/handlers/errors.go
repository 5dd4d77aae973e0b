package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quizzies/internal/service"
	"quizzies/internal/validation"
)

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		log.Printf("%s: %v", logMsg, err)
	}

	respondJSON(w, status, map[string]string{"error": userMsg})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to encode response: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondWithServiceError maps service and validation errors to a status.
// Only unexpected failures are logged; the services already log their own.
func respondWithServiceError(w http.ResponseWriter, logMsg string, err error) {
	var verr validation.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, verr.Message, "", nil)
	case errors.Is(err, service.ErrUnknownWord):
		respondWithError(w, http.StatusBadRequest, "Word is not in the spelling list", "", nil)
	case errors.Is(err, service.ErrInvalidEvent):
		respondWithError(w, http.StatusBadRequest, "Invalid event", "", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "Invalid email or password", "", nil)
	case errors.Is(err, service.ErrEmailTaken):
		respondWithError(w, http.StatusConflict, "An account with this email already exists", "", nil)
	case errors.Is(err, service.ErrNotReady):
		respondWithError(w, http.StatusConflict, "Session is not ready", "", nil)
	case errors.Is(err, service.ErrTransactionFailed):
		w.Header().Set("Retry-After", "1")
		respondWithError(w, http.StatusServiceUnavailable, ErrRetryLater, "", nil)
	default:
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, logMsg, err)
	}
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return false
	}
	return true
}

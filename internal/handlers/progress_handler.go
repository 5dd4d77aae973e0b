package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"quizzies/internal/metrics"
	"quizzies/internal/models"
	"quizzies/internal/service"
)

// ProgressHandler serves the ledger: snapshots, events and the live stream
type ProgressHandler struct {
	progress  *service.ProgressService
	words     *service.WordService
	metrics   *metrics.Metrics
	heartbeat time.Duration

	renameAccount func(ctx context.Context, userID, username string) error
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(progress *service.ProgressService, words *service.WordService, m *metrics.Metrics) *ProgressHandler {
	return &ProgressHandler{
		progress:  progress,
		words:     words,
		metrics:   m,
		heartbeat: streamHeartbeat,
	}
}

// SyncAccountNames keeps the sign-in account's username in step with the
// ledger after profile updates
func (h *ProgressHandler) SyncAccountNames(rename func(ctx context.Context, userID, username string) error) {
	h.renameAccount = rename
}

type wordEventRequest struct {
	Word string `json:"word"`
}

type profileRequest struct {
	Username        string `json:"username"`
	ProfileImageRef string `json:"profileImageRef"`
}

// GetProgress signs the user in, which rolls the ledger over to today, and
// returns the snapshot
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentityFromContext(r.Context())
	if identity == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snapshot, err := h.progress.SignIn(ctx, *identity)
	if err != nil {
		respondWithServiceError(w, "Failed to load progress", err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// AnswerWord records a correctly spelled word
func (h *ProgressHandler) AnswerWord(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentityFromContext(r.Context())
	if identity == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}

	var req wordEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snapshot, err := h.words.Answer(ctx, identity.UserID, req.Word)
	if err != nil {
		respondWithServiceError(w, "Failed to record word", err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// AnswerNumber records a solved number problem
func (h *ProgressHandler) AnswerNumber(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentityFromContext(r.Context())
	if identity == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snapshot, err := h.progress.AnswerNumber(ctx, identity.UserID)
	if err != nil {
		respondWithServiceError(w, "Failed to record number", err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// UpdateProfile changes the display name and picture
func (h *ProgressHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentityFromContext(r.Context())
	if identity == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}

	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snapshot, err := h.progress.UpdateProfile(ctx, identity.UserID, req.Username, req.ProfileImageRef)
	if err != nil {
		respondWithServiceError(w, "Failed to update profile", err)
		return
	}
	if h.renameAccount != nil && snapshot.Username != identity.DisplayName {
		if err := h.renameAccount(ctx, identity.UserID, snapshot.Username); err != nil {
			log.Printf("Failed to sync account name for user %s: %v", identity.UserID, err)
		}
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// Stream pushes every new snapshot as a server-sent event until the client
// goes away. The stream is backed by a ledger session, so the first event is
// the signed-in snapshot.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentityFromContext(r.Context())
	if identity == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming unsupported", "", nil)
		return
	}

	session := service.NewLedgerSession(h.progress)
	if err := session.SignIn(r.Context(), *identity); err != nil {
		respondWithServiceError(w, "Failed to open progress stream", err)
		return
	}
	defer session.Logout()

	h.metrics.SubscriptionOpened()
	defer h.metrics.SubscriptionClosed()

	// the server write timeout would otherwise cut the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case p := <-session.Updates():
			if err := writeEvent(w, p); err != nil {
				log.Printf("Failed to write progress event for user %s: %v", identity.UserID, err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if session.State() != service.StateReady {
				log.Printf("Progress stream for user %s lost its subscription", identity.UserID)
				return
			}
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, p *models.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", p.Version, data)
	return err
}

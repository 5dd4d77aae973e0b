package handlers

import (
	"context"
	"net/http"
	"strconv"

	"quizzies/internal/audio"
	"quizzies/internal/models"
	"quizzies/internal/rewards"
	"quizzies/internal/service"
)

// CatalogHandler serves the static challenge, achievement and word catalogs
type CatalogHandler struct {
	words      *service.WordService
	pronouncer *audio.Pronouncer
}

// NewCatalogHandler creates a new catalog handler. pronouncer may be nil,
// which disables word audio.
func NewCatalogHandler(words *service.WordService, pronouncer *audio.Pronouncer) *CatalogHandler {
	return &CatalogHandler{words: words, pronouncer: pronouncer}
}

// Challenges lists the daily challenge templates
func (h *CatalogHandler) Challenges(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, rewards.ChallengeTemplates())
}

// Achievements lists every achievement
func (h *CatalogHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, rewards.Achievements())
}

// Words lists spelling words. q fuzzy searches, category filters.
func (h *CatalogHandler) Words(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var words []models.Word
	if q := query.Get("q"); q != "" {
		limit, _ := strconv.Atoi(query.Get("limit"))
		words = h.words.Search(q, limit)
	} else {
		words = h.words.Words(query.Get("category"))
	}
	if words == nil {
		words = []models.Word{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.words.Categories(),
		"words":      words,
	})
}

// NextWord picks a word of the category the player has not learned yet
func (h *CatalogHandler) NextWord(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentityFromContext(r.Context())
	if identity == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	word, ok, err := h.words.Next(ctx, identity.UserID, r.URL.Query().Get("category"))
	if err != nil {
		respondWithServiceError(w, "Failed to pick next word", err)
		return
	}
	if !ok {
		respondJSON(w, http.StatusOK, map[string]interface{}{"done": true})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"done": false, "word": word})
}

// WordAudio serves the spoken pronunciation of a catalog word
func (h *CatalogHandler) WordAudio(w http.ResponseWriter, r *http.Request) {
	word := rewards.NormalizeWord(r.PathValue("word"))
	if !rewards.IsCatalogWord(word) {
		respondWithError(w, http.StatusNotFound, "Word not found", "", nil)
		return
	}
	if h.pronouncer == nil {
		respondWithError(w, http.StatusNotFound, "Audio not available", "", nil)
		return
	}

	path, err := h.pronouncer.Pronounce(r.Context(), word)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "Audio not available", "Failed to pronounce "+word, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

// Health reports liveness
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

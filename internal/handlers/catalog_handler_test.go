package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"quizzies/internal/audio"
	"quizzies/internal/models"
	"quizzies/internal/service"
)

func TestCatalogHandler(t *testing.T) {
	h := NewCatalogHandler(service.NewWordService(nil), nil)

	recorder := httptest.NewRecorder()
	h.Challenges(recorder, httptest.NewRequest(http.MethodGet, "/api/catalog/challenges", nil))
	var templates []models.ChallengeTemplate
	if err := json.Unmarshal(recorder.Body.Bytes(), &templates); err != nil || len(templates) != 5 {
		t.Errorf("challenges = %v, %v", templates, err)
	}

	recorder = httptest.NewRecorder()
	h.Achievements(recorder, httptest.NewRequest(http.MethodGet, "/api/catalog/achievements", nil))
	var achievements []models.Achievement
	if err := json.Unmarshal(recorder.Body.Bytes(), &achievements); err != nil || len(achievements) != 7 {
		t.Errorf("achievements = %v, %v", achievements, err)
	}
}

func TestWordsHandler(t *testing.T) {
	h := NewCatalogHandler(service.NewWordService(nil), nil)

	tests := []struct {
		name     string
		url      string
		contains string
		empty    bool
	}{
		{"all", "/api/words", "APPLE", false},
		{"category", "/api/words?category=fruit", "ORANGE", false},
		{"search", "/api/words?q=watermln", "WATERMELON", false},
		{"unknown category", "/api/words?category=spaceships", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Words(recorder, httptest.NewRequest(http.MethodGet, tt.url, nil))

			var body struct {
				Categories []string      `json:"categories"`
				Words      []models.Word `json:"words"`
			}
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if len(body.Categories) == 0 {
				t.Error("categories missing")
			}
			if tt.empty {
				if len(body.Words) != 0 {
					t.Errorf("words = %v, want none", body.Words)
				}
				return
			}
			found := false
			for _, w := range body.Words {
				if w.Text == tt.contains {
					found = true
				}
			}
			if !found {
				t.Errorf("words %v missing %s", body.Words, tt.contains)
			}
		})
	}
}

func TestNextWordHandler(t *testing.T) {
	_, progress, _ := newTestProgressHandler(t)
	h := NewCatalogHandler(service.NewWordService(progress), nil)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/words/next?category=Fruit", nil), "u-1", "Maya")
	recorder := httptest.NewRecorder()
	h.NextWord(recorder, req)

	var body struct {
		Done bool        `json:"done"`
		Word models.Word `json:"word"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Done || body.Word.Category != "Fruit" {
		t.Errorf("next word = %+v", body)
	}

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/api/words/next?category=Spaceships", nil), "u-1", "Maya")
	recorder = httptest.NewRecorder()
	h.NextWord(recorder, req)
	body.Done = false
	json.Unmarshal(recorder.Body.Bytes(), &body)
	if !body.Done {
		t.Error("unknown category should be done")
	}
}

func TestHealth(t *testing.T) {
	recorder := httptest.NewRecorder()
	Health(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	if recorder.Code != http.StatusOK {
		t.Errorf("status = %d", recorder.Code)
	}
}

func TestWordAudio(t *testing.T) {
	tts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3-" + r.URL.Query().Get("q")))
	}))
	defer tts.Close()

	pronouncer, err := audio.NewPronouncer(t.TempDir(), tts.URL)
	if err != nil {
		t.Fatalf("NewPronouncer() error = %v", err)
	}
	h := NewCatalogHandler(service.NewWordService(nil), pronouncer)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/words/{word}/audio", h.WordAudio)

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/words/apple/audio", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Body.String() != "ID3-APPLE" {
		t.Errorf("body = %q", recorder.Body.String())
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("content type = %q", ct)
	}

	recorder = httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/words/xyzzy/audio", nil))
	if recorder.Code != http.StatusNotFound {
		t.Errorf("unknown word status = %d, want 404", recorder.Code)
	}
}

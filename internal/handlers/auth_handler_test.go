package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quizzies/internal/database"
	"quizzies/internal/repository"
	"quizzies/internal/service"
)

func newTestAuthHandler(t *testing.T) (*AuthHandler, *Middleware) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database-backed test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	authService := service.NewAuthService(repository.NewUserRepository(db), nil, nil, time.Hour)
	progress, err := service.NewProgressService(repository.NewProgressRepository(db, 5), service.ProgressOptions{})
	if err != nil {
		t.Fatalf("NewProgressService() error = %v", err)
	}
	return NewAuthHandler(authService, progress, nil, ""), NewMiddleware(authService, nil, nil, nil)
}

func TestRegisterLoginLogout(t *testing.T) {
	h, mw := newTestAuthHandler(t)

	recorder := httptest.NewRecorder()
	h.Register(recorder, httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"maya@example.com","password":"password123","username":"Maya"}`)))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	var registered authResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &registered); err != nil {
		t.Fatalf("invalid register response: %v", err)
	}
	if registered.Token == "" || registered.Progress == nil || registered.Progress.Username != "Maya" {
		t.Fatalf("register response = %+v", registered)
	}

	recorder = httptest.NewRecorder()
	h.Register(recorder, httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"maya@example.com","password":"password123","username":"Maya"}`)))
	if recorder.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	h.Login(recorder, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"maya@example.com","password":"wrong-password"}`)))
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	h.Login(recorder, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"MAYA@example.com","password":"password123"}`)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var loggedIn authResponse
	json.Unmarshal(recorder.Body.Bytes(), &loggedIn)
	if loggedIn.Progress == nil || loggedIn.Progress.UserID != registered.User.ID {
		t.Fatalf("login progress = %+v", loggedIn.Progress)
	}

	logout := mw.RequireAuth(h.Logout)
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+loggedIn.Token)
	recorder = httptest.NewRecorder()
	logout(recorder, req)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", recorder.Code)
	}

	// the session is gone afterwards
	recorder = httptest.NewRecorder()
	logout(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("reused token status = %d, want 401", recorder.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	h, _ := newTestAuthHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad email", `{"email":"nope","password":"password123","username":"Maya"}`},
		{"short password", `{"email":"a@example.com","password":"x","username":"Maya"}`},
		{"missing username", `{"email":"a@example.com","password":"password123","username":""}`},
		{"bad json", `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Register(recorder, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body)))
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", recorder.Code, recorder.Body.String())
			}
		})
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"

	"quizzies/internal/audio"
	"quizzies/internal/config"
	"quizzies/internal/database"
	"quizzies/internal/handlers"
	"quizzies/internal/identity"
	"quizzies/internal/metrics"
	"quizzies/internal/repository"
	"quizzies/internal/rewards"
	"quizzies/internal/security"
	"quizzies/internal/service"
	"quizzies/internal/validation"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migrations completed successfully")

	var app *firebase.App
	if cfg.LedgerBackend == repository.BackendFirestore || cfg.FirebaseAuthEnabled {
		app, err = identity.NewFirebaseApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile, cfg.FirebaseCredentialsJSON)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
	}

	ledger, closeLedger, err := openLedger(ctx, cfg, db, app)
	if err != nil {
		log.Fatalf("Failed to open ledger store: %v", err)
	}
	defer closeLedger()

	log.Printf("Ledger store ready (backend: %s)", cfg.LedgerBackend)

	nameFilter := validation.NewNameFilter()
	loadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := nameFilter.Load(loadCtx, validation.DefaultBlocklistURL); err != nil {
		log.Printf("Warning: Failed to load display name blocklist: %v", err)
	}
	cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	authService := service.NewAuthService(userRepo, emailService, nameFilter, cfg.SessionDuration)

	progressService, err := service.NewProgressService(ledger, service.ProgressOptions{
		Timeout:    cfg.TransactionTimeout,
		CacheSize:  cfg.SnapshotCacheSize,
		Metrics:    m,
		NameFilter: nameFilter,
	})
	if err != nil {
		log.Fatalf("Failed to initialize progress service: %v", err)
	}
	progressService.OnAchievements(emailService.AchievementNotifier(userRepo.GetUserByID))
	wordService := service.NewWordService(progressService)

	var verifier handlers.IdentityVerifier
	if cfg.FirebaseAuthEnabled {
		firebaseVerifier, err := identity.NewFirebaseVerifier(ctx, app)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase auth: %v", err)
		}
		verifier = firebaseVerifier
		log.Println("Firebase ID token sign-in enabled")
	}

	oauthProviders := map[string]handlers.OAuthProvider{
		"google": {
			Name:  "google",
			Label: "Google",
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			JWKSURL:     "https://www.googleapis.com/oauth2/v3/certs",
			Issuers:     []string{"https://accounts.google.com", "accounts.google.com"},
		},
	}

	limiter := security.NewRateLimiter(cfg.EventRatePerSecond, cfg.EventBurst, 10*time.Minute)
	middleware := handlers.NewMiddleware(authService, verifier, limiter, m)
	authHandler := handlers.NewAuthHandler(authService, progressService, oauthProviders, cfg.OAuthRedirectBaseURL)
	defer authHandler.Close()
	progressHandler := handlers.NewProgressHandler(progressService, wordService, m)
	progressHandler.SyncAccountNames(userRepo.UpdateUsername)
	pronouncer, err := audio.NewPronouncer(cfg.AudioDir, cfg.TTSURL)
	if err != nil {
		log.Printf("Warning: word audio disabled: %v", err)
		pronouncer = nil
	} else if n, err := pronouncer.Prune(catalogWords()); err != nil {
		log.Printf("Warning: Failed to cleanup orphaned audio files: %v", err)
	} else if n > 0 {
		log.Printf("Removed %d orphaned audio files", n)
	}
	catalogHandler := handlers.NewCatalogHandler(wordService, pronouncer)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health)
	mux.Handle("GET /metrics", handlers.BasicAuth(cfg.MetricsUser, cfg.MetricsPass, promhttp.Handler()))

	mux.HandleFunc("POST /auth/register", middleware.RateLimit(authHandler.Register))
	mux.HandleFunc("POST /auth/login", middleware.RateLimit(authHandler.Login))
	mux.HandleFunc("POST /auth/logout", middleware.RequireAuth(authHandler.Logout))
	mux.HandleFunc("GET /auth/{provider}/start", authHandler.StartOAuth)
	mux.HandleFunc("GET /auth/{provider}/callback", middleware.RateLimit(authHandler.OAuthCallback))

	mux.HandleFunc("GET /api/progress", middleware.RequireAuth(progressHandler.GetProgress))
	mux.HandleFunc("GET /api/progress/stream", middleware.RequireAuth(progressHandler.Stream))
	mux.HandleFunc("POST /api/events/word", middleware.RequireAuth(middleware.RateLimit(progressHandler.AnswerWord)))
	mux.HandleFunc("POST /api/events/number", middleware.RequireAuth(middleware.RateLimit(progressHandler.AnswerNumber)))
	mux.HandleFunc("PUT /api/profile", middleware.RequireAuth(middleware.RateLimit(progressHandler.UpdateProfile)))

	mux.HandleFunc("GET /api/catalog/challenges", catalogHandler.Challenges)
	mux.HandleFunc("GET /api/catalog/achievements", catalogHandler.Achievements)
	mux.HandleFunc("GET /api/words", catalogHandler.Words)
	mux.HandleFunc("GET /api/words/next", middleware.RequireAuth(catalogHandler.NextWord))
	mux.HandleFunc("GET /api/words/{word}/audio", catalogHandler.WordAudio)

	cors := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(cfg.CORSOrigins),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length", "Retry-After"}),
	)

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handlers.Logging(m.Middleware(cors(mux))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		cleanupExpiredSessions(gctx, authService)
		return nil
	})

	g.Go(func() error {
		cleanupRateLimiter(gctx, limiter, cfg.Debug)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// openLedger builds the configured ledger backend and a func releasing it
func openLedger(ctx context.Context, cfg *config.Config, db *database.DB, app *firebase.App) (repository.LedgerStore, func(), error) {
	switch cfg.LedgerBackend {
	case repository.BackendSQL, "":
		store := repository.NewProgressRepository(db, cfg.TransactionAttempts)
		store.SetPollInterval(cfg.LedgerPollInterval)
		return store, func() {}, nil
	case repository.BackendFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store := repository.NewFirestoreProgressRepository(client, repository.DefaultProgressCollection, cfg.TransactionAttempts)
		return store, func() { client.Close() }, nil
	case repository.BackendMemory:
		log.Println("Warning: in-memory ledger store, progress is lost on restart")
		return repository.NewMemoryProgressRepository(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

func catalogWords() []string {
	var words []string
	for _, w := range rewards.Words("") {
		words = append(words, w.Text)
	}
	return words
}

func cleanupExpiredSessions(ctx context.Context, authService *service.AuthService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := authService.CleanupExpiredSessions(ctx); err != nil {
				log.Printf("Error cleaning up sessions: %v", err)
			}
		}
	}
}

func cleanupRateLimiter(ctx context.Context, limiter *security.RateLimiter, debug bool) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := limiter.Cleanup(now); n > 0 && debug {
				log.Printf("[DEBUG] Dropped %d idle rate limit buckets", n)
			}
		}
	}
}

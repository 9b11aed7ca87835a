package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"address-verifier/internal/auspost"
	"address-verifier/internal/auth"
	"address-verifier/internal/db"
	gql "address-verifier/internal/graphql"
	"address-verifier/internal/observability"
	"address-verifier/internal/verification"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	ausPostBaseURL, err := mustEnv("AUSPOST_BASE_URL")
	if err != nil {
		return nil, err
	}
	ausPostBearer, err := mustEnv("AUSPOST_BEARER")
	if err != nil {
		return nil, err
	}
	elasticNode, err := mustEnv("ELASTICSEARCH_NODE")
	if err != nil {
		return nil, err
	}

	appEnv := envOrDefault("APP_ENV", "development")
	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), appEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{elasticNode},
		APIKey:    os.Getenv("ELASTICSEARCH_API_KEY"),
		Username:  os.Getenv("ELASTICSEARCH_USERNAME"),
		Password:  os.Getenv("ELASTICSEARCH_PASSWORD"),
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init elasticsearch client: %w", err)
	}

	logStore := verification.NewESStore(esClient, envOrDefault("ELASTICSEARCH_VERIF_INDEX", "verifications"))
	ensureCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := logStore.EnsureIndex(ensureCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ensure verification index: %w", err)
	}

	sessions := auth.NewSessions(jwtSecret, envOrDefault("SESSION_COOKIE_NAME", "session"), appEnv == "production")
	userRepo := auth.NewRepository(database)
	authService := auth.NewService(userRepo)
	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 300),
	)
	authHandler := auth.NewHandler(authService, sessions, loginLimiter, logger)

	ausPostClient := auspost.NewClient(ausPostBaseURL, ausPostBearer)
	validator := auspost.NewValidator(ausPostClient)

	verificationHandler := verification.NewHandler(logStore, logger)

	resolver := gql.NewResolver(validator, logStore, logger)
	schema, err := gql.NewSchema(resolver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}
	graphqlHandler := gql.NewHandler(schema)

	r := chi.NewRouter()
	r.Use(observability.RecoverMiddleware(logger))
	r.Use(observability.RequestLoggingMiddleware(logger))
	r.Use(auth.SessionMiddleware(sessions))

	r.Post("/auth/register", authHandler.Register)
	r.Post("/auth/login", authHandler.Login)
	r.Post("/auth/logout", authHandler.Logout)
	r.Get("/auth/me", authHandler.Me)

	r.Handle("/graphql", graphqlHandler)
	r.Get("/logs", verificationHandler.Logs)
	r.With(auth.RequireSession).Post("/verify", verificationHandler.Verify)

	r.With(auth.RedirectIfAuthenticated("/verifier")).Get("/login", loginPage)
	r.With(auth.RedirectIfAnonymous("/login")).Get("/verifier", verifierPage)

	r.Get("/health", healthHandler(database, logStore))

	return &Runtime{
		Handler: r,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func loginPage(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, "<!doctype html><title>Log in</title><h1>Log in</h1>")
}

func verifierPage(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, "<!doctype html><title>Address Verifier</title><h1>Address Verifier</h1>")
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func healthHandler(database *sql.DB, logStore *verification.ESStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		state := "ok"
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			state = "degraded"
		} else if err := logStore.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": state,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

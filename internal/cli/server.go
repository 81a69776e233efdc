package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collab-quiz-service/internal/app"
	"collab-quiz-service/internal/auth"
	"collab-quiz-service/internal/config"
	"collab-quiz-service/internal/domain"
	"collab-quiz-service/internal/infra/memory"
	pgstore "collab-quiz-service/internal/infra/postgres"
	redisstore "collab-quiz-service/internal/infra/redis"
	transport "collab-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the collaborative quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var records app.SessionStore = memory.NewRecordStore()
	var profiles app.ProfileStore = memory.NewProfileStore(sampleProfiles())
	if pool != nil {
		records = pgstore.NewSessionStore(pool)
		profiles = pgstore.NewProfileStore(pool)
	}

	var presence app.Presence
	if redisClient != nil {
		presence = redisstore.NewPresence(redisClient, redisTTL)
	}

	service := app.NewService(quizRepo, records, profiles, presence, clockwork.NewRealClock(), app.Config{
		DefaultSettings: domain.SessionSettings{
			MaxPlayers:         cfg.Session.MaxPlayers,
			TimePerQuestionSec: cfg.Session.TimePerQuestion,
		},
		PointsPerCorrect: cfg.Scoring.PointsPerCorrect,
		NormalizeAnswers: cfg.Scoring.NormalizeAnswers,
		FinishedGrace:    config.TTLDuration(cfg.Session.FinishedGrace, time.Minute),
		WaitingTTL:       config.TTLDuration(cfg.Session.WaitingTTL, time.Hour),
	})

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "dev-secret-change-me"
		log.Warn().Msg("auth.jwt_secret not configured, using development secret")
	}
	tokens := auth.NewTokenManager(secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	wsHandler := transport.NewWSHandler(service, tokens)

	if pool == nil {
		logDemoTokens(tokens)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting collaborative quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides minimal quiz data for running without a database.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					Text:          "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: "4",
				},
				{
					Text:          "Which planet is closest to the sun?",
					Options:       []string{"Venus", "Mercury", "Mars"},
					CorrectAnswer: "Mercury",
				},
				{
					Text:          "What is the capital of France?",
					Options:       []string{"Paris", "Lyon", "Marseille"},
					CorrectAnswer: "Paris",
				},
			},
		},
	}
}

func sampleProfiles() map[string]domain.Profile {
	return map[string]domain.Profile{
		"u1": {ID: "u1", DisplayName: "Alice"},
		"u2": {ID: "u2", DisplayName: "Bob"},
		"u3": {ID: "u3", DisplayName: "Carol"},
	}
}

func logDemoTokens(tokens *auth.TokenManager) {
	for _, id := range []string{"u1", "u2", "u3"} {
		if token, err := tokens.Issue(id); err == nil {
			log.Info().Str("user_id", id).Str("token", token).Msg("demo token")
		}
	}
}

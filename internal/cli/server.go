package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/postgres"
	infraredis "trivia-service/internal/infra/redis"
	transport "trivia-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores is the set of backends selected by configuration.
type stores struct {
	quizzes  app.QuizRepository
	groups   app.GroupDirectory
	attempts app.AttemptStore
	rankings app.RankingStore
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildStores(ctx context.Context, cfg config.Config) (*stores, error) {
	s := &stores{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func() { _ = redisClient.Close() })
	}

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		db = openBun(cfg.Postgres.URL)
		s.closers = append(s.closers, func() { _ = db.Close() })
		if err := migrateDB(ctx, db); err != nil {
			s.close()
			return nil, err
		}
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
	}

	var loader memory.QuizLoader = memory.NewCatalog(sampleQuizzes()...)
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
		s.groups = postgres.NewGroupDirectory(pool)
		s.attempts = postgres.NewAttemptStore(db)
	} else {
		log.Printf("postgres not configured; using in-memory quizzes, groups and attempts")
		s.groups = memory.NewGroupDirectory(sampleGroups()...)
		s.attempts = memory.NewAttemptStore()
	}

	if redisClient != nil {
		s.quizzes = infraredis.NewQuizRepository(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	} else {
		s.quizzes = memory.NewQuizRepository(loader, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
	}

	switch backend := cfg.RankingBackend(); backend {
	case config.BackendPostgres:
		if db == nil {
			s.close()
			return nil, fmt.Errorf("ranking backend %q needs postgres.url", backend)
		}
		s.rankings = postgres.NewRankingStore(db)
	case config.BackendRedis:
		if redisClient == nil {
			s.close()
			return nil, fmt.Errorf("ranking backend %q needs redis.addr", backend)
		}
		s.rankings = infraredis.NewRankingStore(redisClient)
	default:
		s.rankings = memory.NewRankingStore()
	}
	log.Printf("ranking backend: %s", cfg.RankingBackend())
	return s, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	logger := log.Default()
	feed := app.NewRankingFeed(cfg.Ranking.FeedBuffer)
	attempts := app.NewAttemptService(st.quizzes, st.groups, st.attempts, app.NewRankingUpdater(st.rankings, feed), logger)
	rankings := app.NewRankingService(st.rankings, feed)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewAPIHandler(attempts, rankings, logger).Register(mux)
	mux.HandleFunc("GET /ws/rankings", transport.NewWSHandler(rankings, logger).ServeRankings)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived ranking streams.
	}

	go func() {
		log.Printf("starting trivia service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory catalog when no database is configured.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:            "genesis",
			Name:          "Genesis",
			Participation: domain.ParticipationAll,
			PassingScore:  60,
			MaxAttempts:   3,
			IsActive:      true,
			IsPublic:      true,
			Questions: []domain.Question{
				{
					ID: "q1", Text: "Who built the ark?", Type: domain.QuestionSingle, Points: 5, Penalty: 1,
					Choices: []domain.Choice{
						{ID: "q1-a", Text: "Abraham"},
						{ID: "q1-b", Text: "Noah", IsCorrect: true},
						{ID: "q1-c", Text: "Moses"},
					},
				},
				{
					ID: "q2", Text: "Which were sons of Jacob?", Type: domain.QuestionMultiple, Points: 10,
					Choices: []domain.Choice{
						{ID: "q2-a", Text: "Judah", IsCorrect: true},
						{ID: "q2-b", Text: "Joseph", IsCorrect: true},
						{ID: "q2-c", Text: "Esau"},
					},
				},
				{ID: "q3", Text: "Describe the covenant with Noah.", Type: domain.QuestionOpen, Points: 5},
			},
		},
	}
}

func sampleGroups() []domain.TriviaGroup {
	return []domain.TriviaGroup{
		{ID: "youth", Name: "Youth Fellowship", CaptainID: "captain", PatronID: "pastor"},
	}
}

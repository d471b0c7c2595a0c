package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/postgres"
	pgmigrations "trivia-service/internal/infra/postgres/migrations"
	infraredis "trivia-service/internal/infra/redis"
)

type backends struct {
	pool  *pgxpool.Pool
	db    *bun.DB
	redis *goredis.Client
}

func setup(t *testing.T, ctx context.Context) backends {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := migrateDB(t, ctx, pgURL)
	t.Cleanup(func() { db.Close() })

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	loader := postgres.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	if err := postgres.NewGroupDirectory(pool).SaveGroup(ctx, domain.TriviaGroup{
		ID: "g1", Name: "St. Paul Choir", CaptainID: "cap", PatronID: "pastor", MemberIDs: []string{"m1", "m2"},
	}); err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return backends{pool: pool, db: db, redis: redisClient}
}

func (b backends) service(rankings app.RankingStore) *app.AttemptService {
	quizRepo := infraredis.NewQuizRepository(b.redis, postgres.NewQuizLoader(b.pool), 5*time.Minute)
	return app.NewAttemptService(
		quizRepo,
		postgres.NewGroupDirectory(b.pool),
		postgres.NewAttemptStore(b.db),
		app.NewRankingUpdater(rankings, nil),
		log.New(io.Discard, "", 0),
	)
}

func TestSubmitEndToEndWithPostgresRankings(t *testing.T) {
	ctx := context.Background()
	b := setup(t, ctx)
	rankings := postgres.NewRankingStore(b.db)
	service := b.service(rankings)

	// q1 is wrong (penalty 2), q2 earns full marks, q3 is ungraded.
	answers := map[string]domain.Answer{
		"q1": {ChoiceID: "c1"},
		"q2": {ChoiceIDs: []string{"a", "b"}},
		"q3": {Text: "In the beginning was the Word"},
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := service.Submit(ctx, "quiz-1", app.Submitter{UserID: "u1"}, answers)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if result.Score != 10 || len(result.RankingFailures) != 0 {
				t.Errorf("unexpected result %+v", result)
			}
			mu.Lock()
			numbers = append(numbers, result.AttemptNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(numbers)
	if fmt.Sprint(numbers) != "[1 2 3 4]" {
		t.Fatalf("expected attempt numbers 1..4, got %v", numbers)
	}

	ranking, err := rankings.Get(ctx, domain.UserOwner("u1"))
	if err != nil {
		t.Fatalf("get ranking: %v", err)
	}
	if ranking.Points != 40 || ranking.Penalty != 8 {
		t.Fatalf("expected 40 points and 8 penalty, got %+v", ranking)
	}
	if ranking.Monthly[app.MonthKey(time.Now())] != 40 {
		t.Fatalf("expected current month bucket, got %v", ranking.Monthly)
	}

	history, err := service.History(ctx, "u1", domain.UserOwner("u1"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(history))
	}

	review, err := service.Review(ctx, "u1", history[0].ID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if len(review.Items) != 3 || review.Items[0].Metadata.QuestionPenalty != 2 || review.Items[0].Metadata.WrongSelected != 1 {
		t.Fatalf("expected frozen penalty on first item, got %+v", review.Items)
	}
	if review.Items[2].TextAnswer != "In the beginning was the Word" {
		t.Fatalf("expected open answer kept verbatim, got %q", review.Items[2].TextAnswer)
	}
}

func TestGroupSubmitWithRedisRankings(t *testing.T) {
	ctx := context.Background()
	b := setup(t, ctx)
	rankings := infraredis.NewRankingStore(b.redis)
	service := b.service(rankings)

	result, err := service.Submit(ctx, "quiz-1", app.Submitter{UserID: "m2", GroupID: "g1"}, map[string]domain.Answer{
		"q1": {ChoiceID: "c2"},
		"q2": {ChoiceIDs: []string{"a"}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.AttemptKind != domain.OwnerGroup || result.Score != 9 {
		t.Fatalf("unexpected result %+v", result)
	}

	board, err := rankings.Top(ctx, domain.OwnerGroup, 5)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(board) != 1 || board[0].Owner.ID != "g1" || board[0].Points != 9 {
		t.Fatalf("unexpected group leaderboard %+v", board)
	}
	if _, err := rankings.Get(ctx, domain.UserOwner("m2")); err == nil {
		t.Fatalf("group submission must not rank the submitting user")
	}

	if _, err := service.Submit(ctx, "quiz-1", app.Submitter{UserID: "stranger", GroupID: "g1"}, nil); err == nil {
		t.Fatalf("expected outsider to be rejected")
	}
}

func TestSaveAttemptRollsBackOnDuplicateResponse(t *testing.T) {
	ctx := context.Background()
	b := setup(t, ctx)
	store := postgres.NewAttemptStore(b.db)
	owner := domain.UserOwner("u1")
	done := time.Now().UTC()

	attempt := domain.Attempt{
		ID: "a1", QuizID: "quiz-1", Owner: owner, InitiatedBy: "u1", AttemptNumber: 1,
		Status: domain.AttemptCompleted, Score: 4, StartedAt: done, CompletedAt: &done,
	}
	responses := []domain.Response{
		{ID: "r1", QuestionID: "q1", Owner: owner, RespondedBy: "u1", PointsAwarded: 4, CreatedAt: done},
		{ID: "r2", QuestionID: "q1", Owner: owner, RespondedBy: "u1", CreatedAt: done},
	}
	if err := store.SaveAttempt(ctx, attempt, responses); !errors.Is(err, domain.ErrDuplicateResponse) {
		t.Fatalf("expected duplicate response error, got %v", err)
	}
	if _, err := store.GetAttempt(ctx, "a1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt insert to roll back, got %v", err)
	}

	if err := store.SaveAttempt(ctx, attempt, responses[:1]); err != nil {
		t.Fatalf("save after rollback: %v", err)
	}
	stored, err := store.ListResponses(ctx, "a1")
	if err != nil || len(stored) != 1 || stored[0].AttemptID != "a1" {
		t.Fatalf("expected one stored response, got %+v (%v)", stored, err)
	}
	clash := attempt
	clash.ID = "a2"
	if err := store.SaveAttempt(ctx, clash, nil); !errors.Is(err, domain.ErrAttemptConflict) {
		t.Fatalf("expected attempt number conflict, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:            "quiz-1",
		Name:          "Gospels",
		Participation: domain.ParticipationAll,
		PassingScore:  50,
		IsActive:      true,
		IsPublic:      true,
		Questions: []domain.Question{
			{
				ID: "q1", Text: "Who built the ark?", Type: domain.QuestionSingle, Points: 4, Penalty: 2,
				Choices: []domain.Choice{{ID: "c1", Text: "Moses"}, {ID: "c2", Text: "Noah", IsCorrect: true}},
			},
			{
				ID: "q2", Text: "Which are gospels?", Type: domain.QuestionMultiple, Points: 10,
				Choices: []domain.Choice{
					{ID: "a", Text: "Mark", IsCorrect: true},
					{ID: "b", Text: "Luke", IsCorrect: true},
					{ID: "c", Text: "Acts"},
				},
			},
			{ID: "q3", Text: "Quote John 1:1.", Type: domain.QuestionOpen, Points: 6},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

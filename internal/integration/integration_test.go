package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/jackc/pgx/v4/pgxpool"

	"matrix-quiz-bot/internal/bot"
	"matrix-quiz-bot/internal/domain"
	"matrix-quiz-bot/internal/infra/memory"
	pgsource "matrix-quiz-bot/internal/infra/postgres"
	pgmigrations "matrix-quiz-bot/internal/infra/postgres/migrations"
	redisinfra "matrix-quiz-bot/internal/infra/redis"
)

// Full quiz conversation with quiz content seeded in Postgres, cached in
// Redis, and session liveness mirrored to Redis.
func TestQuizConversationEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisAddr, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestionSet(t, ctx, pgURL, sampleQuestionSet())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: redisAddr})

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)

	source := pgsource.NewQuestionSource(pool)
	provider := redisinfra.NewQuestionCache(redisClient, source, 5*time.Minute)
	store := redisinfra.NewSessionStore(redisClient, 5*time.Minute)
	submitter := memory.NewAttemptLog()
	messenger := &recorder{}
	notifier := bot.NewRoomNotifier(messenger, "", log)

	engine := bot.NewSessionEngine(store, provider, submitter, messenger, notifier, log)
	catalog := []domain.CatalogEntry{{ID: "quiz_math_1", Title: "Basic Math Chapter 1"}}
	dispatcher := bot.NewDispatcher(engine, store, messenger, catalog, log)

	dispatcher.HandleEvent(ctx, bot.Event{RoomID: "R1", Sender: "U1", Body: "!quiz start quiz_math_1"})

	if redisClient.Exists(ctx, "quiz:session:R1").Val() != 1 {
		t.Fatalf("expected session liveness key in redis")
	}
	if redisClient.Exists(ctx, "quiz:quiz_math_1:questions").Val() != 1 {
		t.Fatalf("expected question set cached in redis")
	}

	for _, answer := range []string{"B", "A", "C"} {
		dispatcher.HandleEvent(ctx, bot.Event{RoomID: "R1", Sender: "U1", Body: answer})
	}

	attempts := submitter.Attempts()
	if len(attempts) != 1 {
		t.Fatalf("expected one submitted attempt, got %d", len(attempts))
	}
	want := map[string]string{"q1": "B", "q2": "A", "q3": "C"}
	for key, letter := range want {
		if attempts[0].Answers[key] != letter {
			t.Fatalf("expected %s=%s, got %v", key, letter, attempts[0].Answers)
		}
	}

	if _, ok := store.Get("R1"); ok {
		t.Fatalf("expected session removed after completion")
	}
	if redisClient.Exists(ctx, "quiz:session:R1").Val() != 0 {
		t.Fatalf("expected liveness key cleared")
	}

	replies := messenger.bodies("R1")
	last := replies[len(replies)-1]
	if !strings.Contains(last, "Quiz Completed") {
		t.Fatalf("expected completion summary, got %q", last)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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
	return fmt.Sprintf("%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestionSet(t *testing.T, ctx context.Context, dsn string, set domain.QuestionSet) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal question set: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, set.QuizID, string(data)); err != nil {
		t.Fatalf("insert question set: %v", err)
	}
}

func sampleQuestionSet() domain.QuestionSet {
	return domain.QuestionSet{
		QuizID: "quiz_math_1",
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"A) 3", "B) 4", "C) 5", "D) 6"}, Type: "multiple_choice", Order: 1},
			{ID: "q2", Text: "What is 5 × 3?", Options: []string{"A) 15", "B) 12", "C) 18", "D) 20"}, Type: "multiple_choice", Order: 2},
			{ID: "q3", Text: "What is the capital of France?", Options: []string{"A) London", "B) Berlin", "C) Paris", "D) Madrid"}, Type: "multiple_choice", Order: 3},
		},
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

type sentMessage struct {
	roomID string
	body   string
}

type recorder struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (r *recorder) Send(_ context.Context, roomID, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, sentMessage{roomID: roomID, body: body})
	return nil
}

func (r *recorder) bodies(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, msg := range r.messages {
		if msg.roomID == roomID {
			out = append(out, msg.body)
		}
	}
	return out
}

package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"matrix-quiz-bot/internal/bot"
	"matrix-quiz-bot/internal/config"
	"matrix-quiz-bot/internal/domain"
	"matrix-quiz-bot/internal/infra/memory"
	pgsource "matrix-quiz-bot/internal/infra/postgres"
	redisinfra "matrix-quiz-bot/internal/infra/redis"
	"matrix-quiz-bot/internal/matrix"
	"matrix-quiz-bot/internal/moodle"
	"matrix-quiz-bot/internal/transport/ws"
)

// NewStartCmd builds the CLI subcommand to start the bot.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *configPath, *port)
		},
	}
}

func runBot(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

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

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(runCtx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Question content: Moodle when configured, else the Postgres content
	// store, else the built-in demo catalog.
	var moodleClient *moodle.Client
	var source memory.QuestionSource
	switch {
	case cfg.Moodle.URL != "" && cfg.Moodle.Token != "":
		moodleClient = moodle.NewClient(cfg.Moodle.URL, cfg.Moodle.Token, logger.WithField("component", "moodle"))
		source = moodleClient
	case pool != nil:
		source = pgsource.NewQuestionSource(pool)
	default:
		source = memory.NewStaticQuestionSource(sampleQuestionSets())
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var provider bot.QuestionSetProvider
	if redisClient != nil {
		provider = redisinfra.NewQuestionCache(redisClient, source, quizTTL)
	} else {
		provider = memory.NewQuestionCache(source, quizTTL)
	}

	var submitter bot.AttemptSubmitter = memory.NewAttemptLog()
	if moodleClient != nil {
		submitter = moodleClient
	}

	var store bot.SessionStore
	if redisClient != nil {
		sessionTTL := config.TTLDuration(cfg.Redis.TTL, time.Hour)
		store = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		store = memory.NewSessionStore()
	}

	gateway := ws.NewGateway(logger.WithField("component", "ws"))
	messengers := []bot.Messenger{gateway}

	var matrixClient *matrix.Client
	if cfg.Matrix.Homeserver != "" && cfg.Matrix.Username != "" && cfg.Matrix.Password != "" {
		matrixClient = matrix.NewClient(cfg.Matrix.Homeserver, logger.WithField("component", "matrix"))
		if err := matrixClient.Login(runCtx, cfg.Matrix.Username, cfg.Matrix.Password); err != nil {
			return err
		}
		messengers = append(messengers, matrixClient)
	}
	messenger := bot.FanoutMessenger(messengers...)

	notifier := bot.NewRoomNotifier(messenger, cfg.Matrix.TeacherRoom, logger.WithField("component", "notifier"))

	catalog := cfg.Quiz.Catalog
	if len(catalog) == 0 {
		catalog = defaultCatalog()
	}

	engine := bot.NewSessionEngine(store, provider, submitter, messenger, notifier, logger.WithField("component", "engine"))
	dispatcher := bot.NewDispatcher(engine, store, messenger, catalog, logger.WithField("component", "dispatcher"))
	gateway.SetHandler(dispatcher)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", gateway.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Infof("starting quiz bot endpoint on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("failed to start server")
		}
	}()

	if matrixClient != nil {
		go func() {
			if err := matrixClient.Sync(runCtx, func(ev bot.Event) {
				dispatcher.HandleEvent(runCtx, ev)
			}); err != nil && runCtx.Err() == nil {
				logger.WithError(err).Error("matrix sync loop stopped")
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down bot...")
	case <-runCtx.Done():
		logger.Info("context canceled, shutting down bot...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func defaultCatalog() []domain.CatalogEntry {
	return []domain.CatalogEntry{
		{ID: "quiz_math_1", Title: "Basic Math Chapter 1"},
		{ID: "quiz_english_1", Title: "Grammar Basics"},
		{ID: "quiz_science_1", Title: "Introduction to Physics"},
	}
}

// sampleQuestionSets seeds the demo catalog; production deployments use
// Moodle or the Postgres content store instead.
func sampleQuestionSets() map[string][]domain.Question {
	return map[string][]domain.Question{
		"quiz_math_1": {
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"A) 3", "B) 4", "C) 5", "D) 6"}, Type: "multiple_choice", Order: 1},
			{ID: "q2", Text: "What is 5 × 3?", Options: []string{"A) 15", "B) 12", "C) 18", "D) 20"}, Type: "multiple_choice", Order: 2},
			{ID: "q3", Text: "What is the capital of France?", Options: []string{"A) London", "B) Berlin", "C) Paris", "D) Madrid"}, Type: "multiple_choice", Order: 3},
		},
		"quiz_english_1": {
			{ID: "q1", Text: "Which word is a noun?", Options: []string{"A) quickly", "B) table", "C) run", "D) blue"}, Type: "multiple_choice", Order: 1},
			{ID: "q2", Text: "Choose the correct form: She ___ to school.", Options: []string{"A) go", "B) gone", "C) goes", "D) going"}, Type: "multiple_choice", Order: 2},
		},
		"quiz_science_1": {
			{ID: "q1", Text: "What force pulls objects toward Earth?", Options: []string{"A) Magnetism", "B) Friction", "C) Gravity", "D) Inertia"}, Type: "multiple_choice", Order: 1},
			{ID: "q2", Text: "What is the unit of force?", Options: []string{"A) Joule", "B) Newton", "C) Watt", "D) Pascal"}, Type: "multiple_choice", Order: 2},
		},
	}
}

package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"quiz-match-service/internal/app"
	"quiz-match-service/internal/config"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
	"quiz-match-service/internal/infra/postgres"
	infraredis "quiz-match-service/internal/infra/redis"
	transport "quiz-match-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the match server",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			cfg, err := config.Load(v.GetString("config"))
			if err != nil {
				return err
			}
			applyOverrides(v, &cfg)
			log := setupLogging(v, cfg.Log.Level, cfg.Log.Format)
			return runServer(cmd.Context(), cfg, log)
		},
	}
	f := cmd.Flags()
	f.String("port", "", "port to listen on")
	f.String("postgres-url", "", "postgres connection URL")
	f.String("redis-addr", "", "redis address")
	return cmd
}

// applyOverrides lets flags and MATCHD_* variables replace config file values.
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	if s := v.GetString("port"); s != "" {
		cfg.Server.Port = s
	}
	if s := v.GetString("postgres-url"); s != "" {
		cfg.Postgres.URL = s
	}
	if s := v.GetString("redis-addr"); s != "" {
		cfg.Redis.Addr = s
	}
}

// stores groups the repositories the service runs on.
type stores struct {
	matches   app.MatchRepository
	answers   app.AnswerRepository
	players   app.PlayerRepository
	games     app.GameRepository
	enrolment app.Enrolment
}

func runServer(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = newRedisClient(cfg)
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	st := buildStores(cfg, pool, redisClient)

	feed := app.NewFeed()
	var publisher app.EventPublisher = feed
	if redisClient != nil {
		relay := infraredis.NewEventRelay(redisClient, feed, "", log)
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("event relay stopped", "error", err)
			}
		}()
	}

	service := app.NewMatchService(st.matches, st.answers, st.players, st.games, st.enrolment,
		app.WithLogger(log),
		app.WithPublisher(publisher),
		app.WithPlayerTimeout(config.Duration(cfg.Match.PlayerTimeout, app.DefaultPlayerTimeout)),
	)
	api := transport.NewAPI(service, log)
	ws := transport.NewWSHandler(service, feed,
		config.Duration(cfg.Match.RefreshInterval, transport.DefaultRefreshInterval), log)

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     transport.NewRouter(api, ws),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting match service", "port", port,
			"postgres", pool != nil, "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// buildStores picks postgres for durable state when configured, redis for
// the game cache and player liveness when configured, and memory otherwise.
func buildStores(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) stores {
	var st stores
	gameTTL := config.Duration(cfg.Game.CacheTTL, 10*time.Minute)

	var loader memory.GameLoader = memory.NewStaticGameLoader(sampleGames())
	if pool != nil {
		loader = postgres.NewGameLoader(pool)
		st.matches = postgres.NewMatchStore(pool)
		st.answers = postgres.NewAnswerStore(pool)
		st.players = postgres.NewPlayerStore(pool)
		st.enrolment = postgres.NewEnrolment(pool)
	} else {
		st.matches = memory.NewMatchStore()
		st.answers = memory.NewAnswerStore()
		st.players = memory.NewPlayerStore()
		st.enrolment = memory.NewEnrolment()
	}

	if redisClient != nil {
		st.games = infraredis.NewGameRepository(redisClient, loader, gameTTL)
		st.players = infraredis.NewPlayerStore(redisClient, config.Duration(cfg.Redis.TTL, 10*time.Minute))
	} else {
		st.games = memory.NewGameRepository(loader, gameTTL)
	}
	return st
}

// sampleGames is the game served when no postgres is configured.
func sampleGames() map[int64]domain.Game {
	return map[int64]domain.Game{
		1: {
			Cod:      1,
			Title:    "Warm-up",
			MaxGrade: 10,
			Questions: []domain.Question{
				{
					Cod:        101,
					Ind:        1,
					Stem:       "What is 2 + 2?",
					AnswerType: domain.AnswerUniqueChoice,
					Shuffle:    true,
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", Correct: true},
						{Text: "5"},
					},
				},
				{
					Cod:        102,
					Ind:        2,
					Stem:       "Which planet is closest to the sun?",
					AnswerType: domain.AnswerUniqueChoice,
					Options: []domain.Option{
						{Text: "Venus"},
						{Text: "Mercury", Correct: true},
						{Text: "Mars"},
						{Text: "Earth"},
					},
				},
			},
		},
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"quiz-match-service/internal/config"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
	"quiz-match-service/internal/infra/postgres"
	infraredis "quiz-match-service/internal/infra/redis"
)

// NewImportGameCmd loads a game document into postgres.
func NewImportGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-game FILE",
		Short: "Import a YAML or JSON game document into postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			cfg, err := config.Load(v.GetString("config"))
			if err != nil {
				return err
			}
			applyOverrides(v, &cfg)
			log := setupLogging(v, cfg.Log.Level, cfg.Log.Format)

			game, err := readGame(args[0])
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if err := importGame(cmd.Context(), cfg.Postgres.URL, game); err != nil {
				return err
			}
			if cfg.Redis.Addr != "" {
				client := newRedisClient(cfg)
				defer client.Close()
				if err := invalidateCachedGame(cmd.Context(), client, game.Cod); err != nil {
					return fmt.Errorf("invalidate cached game: %w", err)
				}
			}
			log.Info("game imported", "game", game.Cod, "questions", len(game.Questions))
			return nil
		},
	}
	cmd.Flags().String("postgres-url", "", "postgres connection URL")
	cmd.Flags().String("redis-addr", "", "redis address of the running servers' game cache")
	return cmd
}

// readGame decodes a game document by file extension and normalizes it.
func readGame(path string) (domain.Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Game{}, err
	}
	var game domain.Game
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &game)
	default:
		err = yaml.Unmarshal(data, &game)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if game.Cod <= 0 {
		return domain.Game{}, fmt.Errorf("game in %s has no cod", path)
	}
	return memory.Normalize(game), nil
}

func importGame(ctx context.Context, url string, game domain.Game) error {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()
	return postgres.NewGameLoader(pool).SaveGame(ctx, game)
}

// invalidateCachedGame drops the game from the shared redis cache so running
// servers load the new version on their next read.
func invalidateCachedGame(ctx context.Context, client *redis.Client, gamCod int64) error {
	return infraredis.NewGameRepository(client, nil, 0).Invalidate(ctx, gamCod)
}

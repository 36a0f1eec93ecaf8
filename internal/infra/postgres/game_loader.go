package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-match-service/internal/domain"
)

// GameLoader loads game JSONB from Postgres.
type GameLoader struct {
	pool *pgxpool.Pool
}

func NewGameLoader(pool *pgxpool.Pool) *GameLoader {
	return &GameLoader{pool: pool}
}

func (l *GameLoader) LoadGame(ctx context.Context, gamCod int64) (domain.Game, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM games WHERE cod=$1`, gamCod).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("load game: %w", err)
	}
	var game domain.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return domain.Game{}, fmt.Errorf("unmarshal game: %w", err)
	}
	game.Cod = gamCod
	return game, nil
}

// SaveGame inserts or replaces a game.
func (l *GameLoader) SaveGame(ctx context.Context, game domain.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO games (cod, data, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (cod) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`,
		game.Cod, string(data))
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// PlayerStore records when each student last refreshed a match.
type PlayerStore struct {
	pool *pgxpool.Pool
}

func NewPlayerStore(pool *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{pool: pool}
}

func (s *PlayerStore) RegisterPlayer(ctx context.Context, matchCod, usrCod int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO match_players (match_cod, usr_cod, seen_at) VALUES ($1, $2, $3)
		ON CONFLICT (match_cod, usr_cod) DO UPDATE SET seen_at=EXCLUDED.seen_at`,
		matchCod, usrCod, at)
	return err
}

func (s *PlayerStore) IsPlayer(ctx context.Context, matchCod, usrCod int64, since time.Time) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM match_players WHERE match_cod=$1 AND usr_cod=$2 AND seen_at >= $3)`,
		matchCod, usrCod, since).Scan(&ok)
	return ok, err
}

func (s *PlayerStore) PurgeStale(ctx context.Context, matchCod int64, before time.Time) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM match_players WHERE match_cod=$1 AND seen_at < $2`, matchCod, before)
	return err
}

func (s *PlayerStore) CountPlayers(ctx context.Context, matchCod int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM match_players WHERE match_cod=$1`, matchCod).Scan(&n)
	return n, err
}

func (s *PlayerStore) RemovePlayers(ctx context.Context, matchCod int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM match_players WHERE match_cod=$1`, matchCod)
	return err
}

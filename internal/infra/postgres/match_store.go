package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// MatchStore keeps matches and their answer indexes in Postgres. Status
// updates lock the match row for the duration of the callback.
type MatchStore struct {
	pool *pgxpool.Pool
}

func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

const matchColumns = `cod, gam_cod, usr_cod, title, start_time, end_time, status, ticked_at, elapsed`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (domain.Match, error) {
	var (
		m               domain.Match
		status, elapsed []byte
	)
	if err := row.Scan(&m.Cod, &m.GamCod, &m.UsrCod, &m.Title, &m.StartTime, &m.EndTime, &status, &m.TickedAt, &elapsed); err != nil {
		return domain.Match{}, err
	}
	if err := json.Unmarshal(status, &m.Status); err != nil {
		return domain.Match{}, fmt.Errorf("unmarshal status of match %d: %w", m.Cod, err)
	}
	m.Elapsed = make(map[int]int)
	if len(elapsed) > 0 {
		if err := json.Unmarshal(elapsed, &m.Elapsed); err != nil {
			return domain.Match{}, fmt.Errorf("unmarshal elapsed of match %d: %w", m.Cod, err)
		}
	}
	return m, nil
}

func (s *MatchStore) CreateMatch(ctx context.Context, match domain.Match, indexes []domain.AnswerIndex) (domain.Match, error) {
	status, err := json.Marshal(match.Status)
	if err != nil {
		return domain.Match{}, err
	}
	elapsed, err := json.Marshal(match.Elapsed)
	if err != nil {
		return domain.Match{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Match{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO matches (gam_cod, usr_cod, title, start_time, end_time, status, ticked_at, elapsed)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::jsonb) RETURNING cod`,
		match.GamCod, match.UsrCod, match.Title, match.StartTime, match.EndTime, string(status), match.TickedAt, string(elapsed),
	).Scan(&match.Cod)
	if err != nil {
		return domain.Match{}, fmt.Errorf("insert match: %w", err)
	}

	batch := &pgx.Batch{}
	for _, ix := range indexes {
		order, err := json.Marshal(ix.Order)
		if err != nil {
			return domain.Match{}, err
		}
		batch.Queue(`INSERT INTO match_indexes (match_cod, qst_ind, qst_cod, answer_order) VALUES ($1, $2, $3, $4::jsonb)`,
			match.Cod, ix.QstInd, ix.QstCod, string(order))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return domain.Match{}, fmt.Errorf("insert indexes: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Match{}, err
	}
	return match, nil
}

func (s *MatchStore) GetMatch(ctx context.Context, matchCod int64) (domain.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE cod=$1`, matchCod))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return m, err
}

func (s *MatchStore) ListMatches(ctx context.Context, gamCod int64) ([]domain.Match, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+matchColumns+` FROM matches WHERE gam_cod=$1 ORDER BY cod DESC`, gamCod)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MatchStore) UpdateMatch(ctx context.Context, matchCod int64, fn func(*domain.Match) error) (domain.Match, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Match{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanMatch(tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE cod=$1 FOR UPDATE`, matchCod))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	if err != nil {
		return domain.Match{}, err
	}

	updated := withOwnElapsed(current)
	if err := fn(&updated); err != nil {
		if errors.Is(err, app.ErrNoChange) {
			return current, nil
		}
		return domain.Match{}, err
	}

	status, err := json.Marshal(updated.Status)
	if err != nil {
		return domain.Match{}, err
	}
	elapsed, err := json.Marshal(updated.Elapsed)
	if err != nil {
		return domain.Match{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE matches SET title=$2, end_time=$3, status=$4::jsonb, ticked_at=$5, elapsed=$6::jsonb
		WHERE cod=$1`,
		matchCod, updated.Title, updated.EndTime, string(status), updated.TickedAt, string(elapsed))
	if err != nil {
		return domain.Match{}, fmt.Errorf("update match: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Match{}, err
	}
	return updated, nil
}

// withOwnElapsed gives the callback its own Elapsed map.
func withOwnElapsed(m domain.Match) domain.Match {
	elapsed := make(map[int]int, len(m.Elapsed))
	for k, v := range m.Elapsed {
		elapsed[k] = v
	}
	m.Elapsed = elapsed
	return m
}

// RemoveMatch deletes the match; indexes, answers, prints and players go
// with it through their foreign keys.
func (s *MatchStore) RemoveMatch(ctx context.Context, matchCod int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM matches WHERE cod=$1`, matchCod)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

func (s *MatchStore) GetIndexes(ctx context.Context, matchCod int64) (domain.Sequence, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT qst_ind, qst_cod, answer_order FROM match_indexes
		WHERE match_cod=$1 ORDER BY qst_ind`, matchCod)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seq domain.Sequence
	for rows.Next() {
		var (
			ix  domain.AnswerIndex
			raw []byte
		)
		if err := rows.Scan(&ix.QstInd, &ix.QstCod, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &ix.Order); err != nil {
			return nil, fmt.Errorf("unmarshal indexes of match %d: %w", matchCod, err)
		}
		seq = append(seq, ix)
	}
	return seq, rows.Err()
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-match-service/internal/domain"
)

// AnswerStore keeps student answers and match prints.
type AnswerStore struct {
	pool *pgxpool.Pool
}

func NewAnswerStore(pool *pgxpool.Pool) *AnswerStore {
	return &AnswerStore{pool: pool}
}

const answerColumns = `match_cod, usr_cod, qst_ind, num_opt, ans_ind, answered_at`

func scanAnswer(row rowScanner) (domain.UserAnswer, error) {
	var a domain.UserAnswer
	err := row.Scan(&a.MatchCod, &a.UsrCod, &a.QstInd, &a.NumOpt, &a.AnsInd, &a.AnsweredAt)
	return a, err
}

func (s *AnswerStore) GetAnswer(ctx context.Context, matchCod, usrCod int64, qstInd int) (domain.UserAnswer, bool, error) {
	a, err := scanAnswer(s.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM match_answers WHERE match_cod=$1 AND usr_cod=$2 AND qst_ind=$3`,
		matchCod, usrCod, qstInd))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserAnswer{}, false, nil
	}
	if err != nil {
		return domain.UserAnswer{}, false, err
	}
	return a, true, nil
}

func (s *AnswerStore) SaveAnswer(ctx context.Context, a domain.UserAnswer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO match_answers (`+answerColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_cod, usr_cod, qst_ind)
		DO UPDATE SET num_opt=EXCLUDED.num_opt, ans_ind=EXCLUDED.ans_ind, answered_at=EXCLUDED.answered_at`,
		a.MatchCod, a.UsrCod, a.QstInd, a.NumOpt, a.AnsInd, a.AnsweredAt)
	return err
}

func (s *AnswerStore) DeleteAnswer(ctx context.Context, matchCod, usrCod int64, qstInd int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM match_answers WHERE match_cod=$1 AND usr_cod=$2 AND qst_ind=$3`,
		matchCod, usrCod, qstInd)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *AnswerStore) UserAnswers(ctx context.Context, matchCod, usrCod int64) ([]domain.UserAnswer, error) {
	return s.queryAnswers(ctx,
		`SELECT `+answerColumns+` FROM match_answers WHERE match_cod=$1 AND usr_cod=$2 ORDER BY qst_ind`,
		matchCod, usrCod)
}

func (s *AnswerStore) QuestionAnswers(ctx context.Context, matchCod int64, qstInd int) ([]domain.UserAnswer, error) {
	return s.queryAnswers(ctx,
		`SELECT `+answerColumns+` FROM match_answers WHERE match_cod=$1 AND qst_ind=$2 ORDER BY usr_cod`,
		matchCod, qstInd)
}

func (s *AnswerStore) queryAnswers(ctx context.Context, sql string, args ...interface{}) ([]domain.UserAnswer, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.UserAnswer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AnswerStore) HasAnswers(ctx context.Context, matchCod int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM match_answers WHERE match_cod=$1)`, matchCod).Scan(&exists)
	return exists, err
}

func (s *AnswerStore) SavePrint(ctx context.Context, p domain.MatchPrint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO match_prints (match_cod, usr_cod, start_time, end_time, num_qsts, num_qsts_not_blank, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (match_cod, usr_cod) DO UPDATE SET
			start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time, num_qsts=EXCLUDED.num_qsts,
			num_qsts_not_blank=EXCLUDED.num_qsts_not_blank, score=EXCLUDED.score`,
		p.MatchCod, p.UsrCod, nullTime(p.StartTime), nullTime(p.EndTime), p.NumQsts, p.NumQstsNotBlank, p.Score)
	return err
}

const printColumns = `match_cod, usr_cod, start_time, end_time, num_qsts, num_qsts_not_blank, score`

func scanPrint(row rowScanner) (domain.MatchPrint, error) {
	var (
		p          domain.MatchPrint
		start, end *time.Time
	)
	if err := row.Scan(&p.MatchCod, &p.UsrCod, &start, &end, &p.NumQsts, &p.NumQstsNotBlank, &p.Score); err != nil {
		return domain.MatchPrint{}, err
	}
	if start != nil {
		p.StartTime = *start
	}
	if end != nil {
		p.EndTime = *end
	}
	return p, nil
}

func (s *AnswerStore) GetPrint(ctx context.Context, matchCod, usrCod int64) (domain.MatchPrint, bool, error) {
	p, err := scanPrint(s.pool.QueryRow(ctx,
		`SELECT `+printColumns+` FROM match_prints WHERE match_cod=$1 AND usr_cod=$2`, matchCod, usrCod))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MatchPrint{}, false, nil
	}
	if err != nil {
		return domain.MatchPrint{}, false, err
	}
	return p, true, nil
}

func (s *AnswerStore) ListPrints(ctx context.Context, matchCod int64) ([]domain.MatchPrint, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+printColumns+` FROM match_prints WHERE match_cod=$1 ORDER BY usr_cod`, matchCod)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.MatchPrint
	for rows.Next() {
		p, err := scanPrint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *AnswerStore) RemoveMatchAnswers(ctx context.Context, matchCod int64) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM match_answers WHERE match_cod=$1`, matchCod)
	batch.Queue(`DELETE FROM match_prints WHERE match_cod=$1`, matchCod)
	return s.pool.SendBatch(ctx, batch).Close()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

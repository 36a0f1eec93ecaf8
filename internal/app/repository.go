package app

import (
	"context"
	"time"

	"quiz-match-service/internal/domain"
)

// GameRepository loads game content (from cache/backing store).
type GameRepository interface {
	GetGame(ctx context.Context, gamCod int64) (domain.Game, error)
}

// MatchRepository stores matches, their status and their answer indexes.
type MatchRepository interface {
	// CreateMatch stores the match together with its answer indexes in one
	// atomic operation and returns it with its code assigned.
	CreateMatch(ctx context.Context, match domain.Match, indexes []domain.AnswerIndex) (domain.Match, error)
	GetMatch(ctx context.Context, matchCod int64) (domain.Match, error)
	ListMatches(ctx context.Context, gamCod int64) ([]domain.Match, error)
	// UpdateMatch runs fn on the current match under exclusive access and
	// persists the result. Returning ErrNoChange from fn skips the write.
	UpdateMatch(ctx context.Context, matchCod int64, fn func(*domain.Match) error) (domain.Match, error)
	RemoveMatch(ctx context.Context, matchCod int64) error
	// GetIndexes returns the match's answer-index table ordered by question index.
	GetIndexes(ctx context.Context, matchCod int64) (domain.Sequence, error)
}

// AnswerRepository stores user answers and match prints.
type AnswerRepository interface {
	GetAnswer(ctx context.Context, matchCod, usrCod int64, qstInd int) (domain.UserAnswer, bool, error)
	SaveAnswer(ctx context.Context, answer domain.UserAnswer) error
	DeleteAnswer(ctx context.Context, matchCod, usrCod int64, qstInd int) (bool, error)
	UserAnswers(ctx context.Context, matchCod, usrCod int64) ([]domain.UserAnswer, error)
	QuestionAnswers(ctx context.Context, matchCod int64, qstInd int) ([]domain.UserAnswer, error)
	HasAnswers(ctx context.Context, matchCod int64) (bool, error)
	SavePrint(ctx context.Context, print domain.MatchPrint) error
	GetPrint(ctx context.Context, matchCod, usrCod int64) (domain.MatchPrint, bool, error)
	ListPrints(ctx context.Context, matchCod int64) ([]domain.MatchPrint, error)
	RemoveMatchAnswers(ctx context.Context, matchCod int64) error
}

// PlayerRepository tracks which students are polling a match.
type PlayerRepository interface {
	RegisterPlayer(ctx context.Context, matchCod, usrCod int64, at time.Time) error
	// IsPlayer reports whether the student was seen at or after since.
	IsPlayer(ctx context.Context, matchCod, usrCod int64, since time.Time) (bool, error)
	PurgeStale(ctx context.Context, matchCod int64, before time.Time) error
	CountPlayers(ctx context.Context, matchCod int64) (int, error)
	RemovePlayers(ctx context.Context, matchCod int64) error
}

// Enrolment answers whether a student belongs to the groups a match is open to.
// A match restricted to no groups is open to every student.
type Enrolment interface {
	StudentIsEntitledToPlay(ctx context.Context, matchCod, usrCod int64) (bool, error)
	RestrictToGroups(ctx context.Context, matchCod int64, grpCods ...int64) error
}

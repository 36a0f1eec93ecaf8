package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"quiz-match-service/internal/domain"
)

// ErrNoChange is returned by UpdateMatch callbacks that leave the match untouched.
var ErrNoChange = errors.New("no change")

// AnswerIndexer creates the option permutation of every question when a match
// is created and resolves it afterwards. Permutations never change, so they
// are cached per match once read.
type AnswerIndexer struct {
	matches MatchRepository
	log     *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand

	cache sync.Map // matchCod -> domain.Sequence
}

func NewAnswerIndexer(matches MatchRepository, log *slog.Logger) *AnswerIndexer {
	if log == nil {
		log = slog.Default()
	}
	return &AnswerIndexer{
		matches: matches,
		log:     log,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewAnswerIndexerWithSeed is test-only for deterministic permutations.
func NewAnswerIndexerWithSeed(matches MatchRepository, seed int64) *AnswerIndexer {
	ix := NewAnswerIndexer(matches, nil)
	ix.rnd = rand.New(rand.NewSource(seed))
	return ix
}

// CreateIndexes builds one permutation per unique choice question of the game,
// in game order, and stores it atomically with the match.
func (ix *AnswerIndexer) CreateIndexes(ctx context.Context, game domain.Game, match domain.Match) (domain.Match, domain.Sequence, error) {
	seq, err := ix.build(game)
	if err != nil {
		return domain.Match{}, nil, err
	}
	created, err := ix.matches.CreateMatch(ctx, match, seq)
	if err != nil {
		return domain.Match{}, nil, fmt.Errorf("create match: %w", err)
	}
	ix.cache.Store(created.Cod, seq.Clone())
	return created, seq, nil
}

func (ix *AnswerIndexer) build(game domain.Game) (domain.Sequence, error) {
	seq := make(domain.Sequence, 0, len(game.Questions))
	for _, q := range game.Questions {
		if q.AnswerType != domain.AnswerUniqueChoice {
			ix.log.Warn("skipping question not playable in matches",
				"game", game.Cod, "question", q.Cod, "type", q.AnswerType)
			continue
		}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("question %d of game %d: %w: %d options",
				q.Cod, game.Cod, domain.ErrInvalidQuestion, len(q.Options))
		}
		order := make([]int, len(q.Options))
		for i := range order {
			order[i] = i
		}
		if q.Shuffle {
			ix.mu.Lock()
			ix.rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
			ix.mu.Unlock()
		}
		seq = append(seq, domain.AnswerIndex{QstInd: q.Ind, QstCod: q.Cod, Order: order})
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("game %d: %w: no playable questions", game.Cod, domain.ErrInvalidQuestion)
	}
	return seq, nil
}

// Sequence returns the ordered questions of a match.
func (ix *AnswerIndexer) Sequence(ctx context.Context, matchCod int64) (domain.Sequence, error) {
	if cached, ok := ix.cache.Load(matchCod); ok {
		return cached.(domain.Sequence).Clone(), nil
	}
	seq, err := ix.matches.GetIndexes(ctx, matchCod)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("match %d: %w", matchCod, domain.ErrIndexesMissing)
	}
	ix.cache.Store(matchCod, seq.Clone())
	return seq, nil
}

// Resolve returns a copy of the permutation of question qstInd in the match.
func (ix *AnswerIndexer) Resolve(ctx context.Context, matchCod int64, qstInd int) ([]int, error) {
	seq, err := ix.Sequence(ctx, matchCod)
	if err != nil {
		return nil, err
	}
	entry, ok := seq.Find(qstInd)
	if !ok {
		return nil, fmt.Errorf("match %d question %d: %w", matchCod, qstInd, domain.ErrIndexesMissing)
	}
	return entry.Order, nil
}

// Forget drops the cached permutations of a removed match.
func (ix *AnswerIndexer) Forget(matchCod int64) {
	ix.cache.Delete(matchCod)
}

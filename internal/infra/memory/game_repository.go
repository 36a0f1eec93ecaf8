package memory

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"quiz-match-service/internal/domain"
)

// GameLoader fetches game content from a backing store.
type GameLoader interface {
	LoadGame(ctx context.Context, gamCod int64) (domain.Game, error)
}

// GameRepository caches games with TTL to avoid repeated DB hits.
// Games are read on every answer and every refresh, so a cache miss storm
// on a hot match is coalesced through singleflight.
type GameRepository struct {
	loader GameLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[int64]cachedGame
}

type cachedGame struct {
	game      domain.Game
	expiresAt time.Time
}

func NewGameRepository(loader GameLoader, ttl time.Duration) *GameRepository {
	return &GameRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedGame),
	}
}

func (r *GameRepository) GetGame(ctx context.Context, gamCod int64) (domain.Game, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[gamCod]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.game, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(strconv.FormatInt(gamCod, 10), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[gamCod]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.game, nil
		}
		r.mu.RUnlock()

		game, err := r.loader.LoadGame(ctx, gamCod)
		if err != nil {
			return domain.Game{}, err
		}
		game = Normalize(game)

		r.mu.Lock()
		r.cache[gamCod] = cachedGame{
			game:      game,
			expiresAt: now.Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return game, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	return result.(domain.Game), nil
}

// Invalidate drops a cached game, e.g. after it was re-imported.
func (r *GameRepository) Invalidate(gamCod int64) {
	r.mu.Lock()
	delete(r.cache, gamCod)
	r.mu.Unlock()
}

func (r *GameRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// Normalize orders questions by index and numbers unindexed ones after the
// last known position, so every loader hands out the same shape.
func Normalize(game domain.Game) domain.Game {
	questions := make([]domain.Question, len(game.Questions))
	copy(questions, game.Questions)
	next := 0
	for _, q := range questions {
		if q.Ind > next {
			next = q.Ind
		}
	}
	for i := range questions {
		if questions[i].Ind <= 0 {
			next++
			questions[i].Ind = next
		}
		if questions[i].AnswerType == "" {
			questions[i].AnswerType = domain.AnswerUniqueChoice
		}
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Ind < questions[j].Ind })
	game.Questions = questions
	return game
}

// StaticGameLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticGameLoader struct {
	games map[int64]domain.Game
}

func NewStaticGameLoader(games map[int64]domain.Game) *StaticGameLoader {
	return &StaticGameLoader{games: games}
}

func (l *StaticGameLoader) LoadGame(_ context.Context, gamCod int64) (domain.Game, error) {
	if game, ok := l.games[gamCod]; ok {
		return game, nil
	}
	return domain.Game{}, domain.ErrGameNotFound
}

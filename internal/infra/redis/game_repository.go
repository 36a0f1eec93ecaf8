package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
)

// GameLoader fetches game content from a backing store (e.g., postgres).
type GameLoader interface {
	LoadGame(ctx context.Context, gamCod int64) (domain.Game, error)
}

// GameRepository caches whole games in Redis and falls back to a loader on
// cache miss. Games are stored as JSON: SET game:{gamCod} {json} EX ttl.
type GameRepository struct {
	client *redis.Client
	loader GameLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGameRepository(client *redis.Client, loader GameLoader, ttl time.Duration) *GameRepository {
	return &GameRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *GameRepository) GetGame(ctx context.Context, gamCod int64) (domain.Game, error) {
	if game, ok := r.cached(ctx, gamCod); ok {
		return game, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(gamCod, 10), func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if game, ok := r.cached(ctx, gamCod); ok {
			return game, nil
		}
		game, err := r.loader.LoadGame(ctx, gamCod)
		if err != nil {
			return domain.Game{}, err
		}
		game = memory.Normalize(game)

		raw, err := json.Marshal(game)
		if err != nil {
			return domain.Game{}, fmt.Errorf("encode game %d: %w", gamCod, err)
		}
		// best-effort: a failed write only costs another load
		_ = r.client.Set(ctx, gameKey(gamCod), raw, r.ttlWithJitter()).Err()
		return game, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	return result.(domain.Game), nil
}

// Invalidate drops a cached game, e.g. after it was re-imported.
func (r *GameRepository) Invalidate(ctx context.Context, gamCod int64) error {
	return r.client.Del(ctx, gameKey(gamCod)).Err()
}

func (r *GameRepository) cached(ctx context.Context, gamCod int64) (domain.Game, bool) {
	raw, err := r.client.Get(ctx, gameKey(gamCod)).Bytes()
	if err != nil {
		return domain.Game{}, false
	}
	var game domain.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return domain.Game{}, false
	}
	return game, true
}

func (r *GameRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func gameKey(gamCod int64) string {
	return "game:" + strconv.FormatInt(gamCod, 10)
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

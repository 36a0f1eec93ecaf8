package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PlayerStore keeps the players of each match in a sorted set scored by the
// time of their last refresh, in unix milliseconds:
// ZADD match:{matchCod}:players {ms} {usrCod}
// The key expires after ttl without any registration.
type PlayerStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPlayerStore(client *redis.Client, ttl time.Duration) *PlayerStore {
	return &PlayerStore{client: client, ttl: ttl}
}

func (s *PlayerStore) RegisterPlayer(ctx context.Context, matchCod, usrCod int64, at time.Time) error {
	key := playersKey(matchCod)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: strconv.FormatInt(usrCod, 10)})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *PlayerStore) IsPlayer(ctx context.Context, matchCod, usrCod int64, since time.Time) (bool, error) {
	score, err := s.client.ZScore(ctx, playersKey(matchCod), strconv.FormatInt(usrCod, 10)).Result()
	if isNil(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return int64(score) >= since.UnixMilli(), nil
}

func (s *PlayerStore) PurgeStale(ctx context.Context, matchCod int64, before time.Time) error {
	upper := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	return s.client.ZRemRangeByScore(ctx, playersKey(matchCod), "-inf", upper).Err()
}

func (s *PlayerStore) CountPlayers(ctx context.Context, matchCod int64) (int, error) {
	n, err := s.client.ZCard(ctx, playersKey(matchCod)).Result()
	return int(n), err
}

func (s *PlayerStore) RemovePlayers(ctx context.Context, matchCod int64) error {
	return s.client.Del(ctx, playersKey(matchCod)).Err()
}

func playersKey(matchCod int64) string {
	return "match:" + strconv.FormatInt(matchCod, 10) + ":players"
}

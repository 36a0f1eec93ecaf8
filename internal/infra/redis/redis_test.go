package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
)

func TestGameRepositoryCachesInRedis(t *testing.T) {
	mr, client := newRedis(t)

	loader := &countingLoader{
		GameLoader: memory.NewStaticGameLoader(map[int64]domain.Game{
			1: sampleGame(),
		}),
	}
	repo := NewGameRepository(client, loader, time.Minute)

	game, err := repo.GetGame(context.Background(), 1)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("game:1") {
		t.Fatalf("expected game cached in redis")
	}
	if ttl := mr.TTL("game:1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %v", ttl)
	}

	// A second repository shares the cache, as another instance would.
	other := NewGameRepository(client, loader, time.Minute)
	cached, err := other.GetGame(context.Background(), 1)
	if err != nil {
		t.Fatalf("get cached game: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.Questions[0].Options[1].Correct != game.Questions[0].Options[1].Correct || cached.Questions[0].Stem != "What is 2 + 2?" {
		t.Fatalf("cached game differs: %+v", cached)
	}

	if err := repo.Invalidate(context.Background(), 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetGame(context.Background(), 1)
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestPlayerStoreTracksLiveness(t *testing.T) {
	mr, client := newRedis(t)
	store := NewPlayerStore(client, time.Hour)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = store.RegisterPlayer(ctx, 5, 100, base)
	_ = store.RegisterPlayer(ctx, 5, 101, base.Add(20*time.Second))
	if !mr.Exists("match:5:players") {
		t.Fatalf("expected players key")
	}

	if ok, _ := store.IsPlayer(ctx, 5, 100, base); !ok {
		t.Fatalf("expected player 100 live at its own refresh time")
	}
	if ok, _ := store.IsPlayer(ctx, 5, 100, base.Add(time.Millisecond)); ok {
		t.Fatalf("expected player 100 stale after it")
	}
	if ok, _ := store.IsPlayer(ctx, 5, 999, time.Time{}); ok {
		t.Fatalf("expected unknown user not a player")
	}

	if err := store.PurgeStale(ctx, 5, base.Add(10*time.Second)); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n, _ := store.CountPlayers(ctx, 5); n != 1 {
		t.Fatalf("expected one live player, got %d", n)
	}

	if err := store.RemovePlayers(ctx, 5); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mr.Exists("match:5:players") {
		t.Fatalf("expected players key removed")
	}
}

func TestEventRelayDeliversToLocalFeed(t *testing.T) {
	_, client := newRedis(t)
	feed := app.NewFeed()
	relay := NewEventRelay(client, feed, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	ch, unsubscribe := feed.Subscribe(3)
	defer unsubscribe()

	// Wait for the relay subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, _ := client.PubSubNumSub(ctx, DefaultEventChannel).Result()
		if n[DefaultEventChannel] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("relay never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	relay.Publish(app.MatchEvent{MatchCod: 3, Kind: app.EventStatus, Status: domain.Status{Showing: domain.PhaseStem, QstInd: 1}})
	select {
	case ev := <-ch:
		if ev.Status.Showing != domain.PhaseStem {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected relayed event")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("relay stopped with %v", err)
	}
}

type countingLoader struct {
	GameLoader
	calls int
}

func (l *countingLoader) LoadGame(ctx context.Context, gamCod int64) (domain.Game, error) {
	l.calls++
	return l.GameLoader.LoadGame(ctx, gamCod)
}

func sampleGame() domain.Game {
	return domain.Game{
		Cod:      1,
		Title:    "Arithmetic",
		MaxGrade: 10,
		Questions: []domain.Question{
			{
				Cod:        11,
				Ind:        1,
				Stem:       "What is 2 + 2?",
				AnswerType: domain.AnswerUniqueChoice,
				Options: []domain.Option{
					{Text: "3", Correct: false},
					{Text: "4", Correct: true},
				},
			},
		},
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-match-service/internal/domain"
)

func TestGameRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		GameLoader: NewStaticGameLoader(map[int64]domain.Game{
			1: sampleGame(),
		}),
	}
	repo := NewGameRepository(loader, time.Minute)

	if _, err := repo.GetGame(context.Background(), 1); err != nil {
		t.Fatalf("get game: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetGame(context.Background(), 1); err != nil {
		t.Fatalf("get game 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	repo.Invalidate(1)
	if _, err := repo.GetGame(context.Background(), 1); err != nil {
		t.Fatalf("get game 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestGameRepositoryUnknownGame(t *testing.T) {
	repo := NewGameRepository(NewStaticGameLoader(nil), time.Minute)
	if _, err := repo.GetGame(context.Background(), 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNormalizeOrdersAndNumbersQuestions(t *testing.T) {
	game := Normalize(domain.Game{Questions: []domain.Question{
		{Cod: 30, Ind: 3},
		{Cod: 10, Ind: 1},
		{Cod: 40},
	}})
	want := []int64{10, 30, 40}
	for i, q := range game.Questions {
		if q.Cod != want[i] {
			t.Fatalf("position %d: expected question %d, got %d", i, want[i], q.Cod)
		}
		if q.AnswerType != domain.AnswerUniqueChoice {
			t.Fatalf("expected default answer type, got %q", q.AnswerType)
		}
	}
	if game.Questions[2].Ind != 4 {
		t.Fatalf("expected unindexed question at 4, got %d", game.Questions[2].Ind)
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

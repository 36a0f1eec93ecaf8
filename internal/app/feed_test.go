package app_test

import (
	"context"
	"testing"
	"time"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
)

func TestFeedKeepsLatestForSlowSubscriber(t *testing.T) {
	feed := app.NewFeed()
	ch, cancel := feed.Subscribe(7)
	defer cancel()

	for i := 0; i < 20; i++ {
		feed.Publish(app.MatchEvent{MatchCod: 7, Kind: app.EventStatus, Status: domain.Status{NumCols: i}})
	}
	feed.Publish(app.MatchEvent{MatchCod: 8, Kind: app.EventStatus})

	var last app.MatchEvent
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Status.NumCols != 19 {
		t.Fatalf("expected latest event kept, got %+v", last)
	}
}

func TestFeedCancelClosesChannel(t *testing.T) {
	feed := app.NewFeed()
	ch, cancel := feed.Subscribe(1)
	if feed.Subscribers(1) != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if feed.Subscribers(1) != 0 {
		t.Fatalf("expected subscription removed")
	}
}

func TestServicePublishesControlChanges(t *testing.T) {
	feed := app.NewFeed()
	matches := memory.NewMatchStore()
	games := memory.NewGameRepository(memory.NewStaticGameLoader(map[int64]domain.Game{1: oneQuestionGame()}), time.Minute)
	service := app.NewMatchService(matches, memory.NewAnswerStore(), memory.NewPlayerStore(), games, memory.NewEnrolment(),
		app.WithPublisher(feed))

	ctx := context.Background()
	m, err := service.CreateMatch(ctx, teacher, 1, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ch, cancel := feed.Subscribe(m.Cod)
	defer cancel()

	if _, err := service.Next(ctx, teacher, m.Cod, nil); err != nil {
		t.Fatalf("next: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Kind != app.EventStatus || ev.Status.Showing != domain.PhaseStem {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected status event")
	}

	// A refused control publishes nothing.
	_, _ = service.Next(ctx, other, m.Cod, nil)
	if len(ch) != 0 {
		t.Fatalf("expected no event for refused control")
	}
}

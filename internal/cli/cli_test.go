package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"quiz-match-service/internal/config"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
	infraredis "quiz-match-service/internal/infra/redis"
)

func TestReadGameYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	raw := `
cod: 7
title: Colours
max_grade: 5
questions:
  - cod: 72
    ind: 2
    stem: Sky?
    options:
      - text: blue
        correct: true
      - text: green
  - cod: 71
    ind: 1
    stem: Grass?
    options:
      - text: green
        correct: true
      - text: red
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	game, err := readGame(path)
	if err != nil {
		t.Fatalf("read game: %v", err)
	}
	if game.Cod != 7 || game.MaxGrade != 5 || len(game.Questions) != 2 {
		t.Fatalf("unexpected game %+v", game)
	}
	if game.Questions[0].Cod != 71 || !game.Questions[0].Options[0].Correct {
		t.Fatalf("expected questions ordered by index, got %+v", game.Questions)
	}
}

func TestReadGameRequiresCod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.json")
	_ = os.WriteFile(path, []byte(`{"title":"no code"}`), 0o600)
	if _, err := readGame(path); err == nil {
		t.Fatalf("expected missing cod to fail")
	}
}

func TestBuildStoresDefaultsToMemory(t *testing.T) {
	cfg := config.Config{}
	cfg.Game.CacheTTL = "1m"
	st := buildStores(cfg, nil, nil)
	if _, ok := st.matches.(*memory.MatchStore); !ok {
		t.Fatalf("expected memory match store, got %T", st.matches)
	}
	if _, ok := st.games.(*memory.GameRepository); !ok {
		t.Fatalf("expected memory game repository, got %T", st.games)
	}
	if config.Duration(cfg.Game.CacheTTL, time.Hour) != time.Minute {
		t.Fatalf("expected configured cache ttl")
	}
}

func TestApplyOverridesFromEnv(t *testing.T) {
	t.Setenv("MATCHD_PORT", "9999")
	t.Setenv("MATCHD_POSTGRES_URL", "postgres://x")
	cmd := NewStartCmd()
	v := viperForCmd(cmd)
	cfg := config.Config{}
	cfg.Server.Port = "8080"
	applyOverrides(v, &cfg)
	if cfg.Server.Port != "9999" || cfg.Postgres.URL != "postgres://x" {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
}

func TestAddMembersOpensGroupMatches(t *testing.T) {
	ctx := context.Background()
	grpCod, usrCods, err := parseMembers([]string{"7", "100", "101"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if grpCod != 7 || len(usrCods) != 2 {
		t.Fatalf("unexpected group %d members %v", grpCod, usrCods)
	}

	enrolment := memory.NewEnrolment()
	if err := enrolment.RestrictToGroups(ctx, 1, grpCod); err != nil {
		t.Fatalf("restrict: %v", err)
	}
	if err := addMembers(ctx, enrolment, grpCod, usrCods); err != nil {
		t.Fatalf("add members: %v", err)
	}
	for _, u := range []int64{100, 101} {
		if ok, _ := enrolment.StudentIsEntitledToPlay(ctx, 1, u); !ok {
			t.Fatalf("expected user %d entitled", u)
		}
	}
	if ok, _ := enrolment.StudentIsEntitledToPlay(ctx, 1, 102); ok {
		t.Fatalf("expected user 102 excluded")
	}

	if _, _, err := parseMembers([]string{"7", "x"}); err == nil {
		t.Fatalf("expected invalid user code rejected")
	}
}

func TestImportInvalidatesCachedGame(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	games := map[int64]domain.Game{7: {Cod: 7, Title: "old"}}
	repo := infraredis.NewGameRepository(client, memory.NewStaticGameLoader(games), time.Minute)
	if _, err := repo.GetGame(ctx, 7); err != nil {
		t.Fatalf("get game: %v", err)
	}
	if !mr.Exists("game:7") {
		t.Fatalf("expected game cached")
	}

	if err := invalidateCachedGame(ctx, client, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("game:7") {
		t.Fatalf("expected cached game dropped")
	}

	games[7] = domain.Game{Cod: 7, Title: "new"}
	game, err := repo.GetGame(ctx, 7)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if game.Title != "new" {
		t.Fatalf("expected reloaded game, got %q", game.Title)
	}
}

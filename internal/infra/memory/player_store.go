package memory

import (
	"context"
	"sync"
	"time"
)

// PlayerStore is an in-memory implementation of app.PlayerRepository.
type PlayerStore struct {
	mu      sync.RWMutex
	players map[int64]map[int64]time.Time
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{players: make(map[int64]map[int64]time.Time)}
}

func (s *PlayerStore) RegisterPlayer(_ context.Context, matchCod, usrCod int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen, ok := s.players[matchCod]
	if !ok {
		seen = make(map[int64]time.Time)
		s.players[matchCod] = seen
	}
	seen[usrCod] = at
	return nil
}

func (s *PlayerStore) IsPlayer(_ context.Context, matchCod, usrCod int64, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.players[matchCod][usrCod]
	return ok && !at.Before(since), nil
}

func (s *PlayerStore) PurgeStale(_ context.Context, matchCod int64, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for usrCod, at := range s.players[matchCod] {
		if at.Before(before) {
			delete(s.players[matchCod], usrCod)
		}
	}
	return nil
}

func (s *PlayerStore) CountPlayers(_ context.Context, matchCod int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players[matchCod]), nil
}

func (s *PlayerStore) RemovePlayers(_ context.Context, matchCod int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, matchCod)
	return nil
}

package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// MatchStore is an in-memory implementation of app.MatchRepository.
// A single mutex serializes every read-modify-write of a match status.
type MatchStore struct {
	mu      sync.Mutex
	nextCod int64
	matches map[int64]domain.Match
	indexes map[int64]domain.Sequence
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches: make(map[int64]domain.Match),
		indexes: make(map[int64]domain.Sequence),
	}
}

func (s *MatchStore) CreateMatch(_ context.Context, match domain.Match, indexes []domain.AnswerIndex) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCod++
	match.Cod = s.nextCod
	s.matches[match.Cod] = cloneMatch(match)

	seq := make(domain.Sequence, len(indexes))
	for i, ix := range indexes {
		seq[i] = domain.AnswerIndex{QstInd: ix.QstInd, QstCod: ix.QstCod, Order: append([]int(nil), ix.Order...)}
	}
	sort.Slice(seq, func(i, j int) bool { return seq[i].QstInd < seq[j].QstInd })
	s.indexes[match.Cod] = seq
	return cloneMatch(match), nil
}

func (s *MatchStore) GetMatch(_ context.Context, matchCod int64) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchCod]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return cloneMatch(match), nil
}

func (s *MatchStore) ListMatches(_ context.Context, gamCod int64) ([]domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Match
	for _, match := range s.matches {
		if match.GamCod == gamCod {
			out = append(out, cloneMatch(match))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cod > out[j].Cod })
	return out, nil
}

func (s *MatchStore) UpdateMatch(_ context.Context, matchCod int64, fn func(*domain.Match) error) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.matches[matchCod]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	working := cloneMatch(stored)
	if err := fn(&working); err != nil {
		if errors.Is(err, app.ErrNoChange) {
			return cloneMatch(stored), nil
		}
		return domain.Match{}, err
	}
	s.matches[matchCod] = cloneMatch(working)
	return working, nil
}

func (s *MatchStore) RemoveMatch(_ context.Context, matchCod int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[matchCod]; !ok {
		return domain.ErrMatchNotFound
	}
	delete(s.matches, matchCod)
	delete(s.indexes, matchCod)
	return nil
}

func (s *MatchStore) GetIndexes(_ context.Context, matchCod int64) (domain.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.indexes[matchCod]
	if !ok {
		return nil, nil
	}
	out := make(domain.Sequence, len(seq))
	for i, ix := range seq {
		out[i] = domain.AnswerIndex{QstInd: ix.QstInd, QstCod: ix.QstCod, Order: append([]int(nil), ix.Order...)}
	}
	return out, nil
}

func cloneMatch(m domain.Match) domain.Match {
	elapsed := make(map[int]int, len(m.Elapsed))
	for k, v := range m.Elapsed {
		elapsed[k] = v
	}
	m.Elapsed = elapsed
	return m
}

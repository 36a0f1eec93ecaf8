package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-match-service/internal/domain"
)

type answerKey struct {
	matchCod int64
	usrCod   int64
	qstInd   int
}

type printKey struct {
	matchCod int64
	usrCod   int64
}

// AnswerStore is an in-memory implementation of app.AnswerRepository.
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[answerKey]domain.UserAnswer
	prints  map[printKey]domain.MatchPrint
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		answers: make(map[answerKey]domain.UserAnswer),
		prints:  make(map[printKey]domain.MatchPrint),
	}
}

func (s *AnswerStore) GetAnswer(_ context.Context, matchCod, usrCod int64, qstInd int) (domain.UserAnswer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[answerKey{matchCod, usrCod, qstInd}]
	return a, ok, nil
}

func (s *AnswerStore) SaveAnswer(_ context.Context, answer domain.UserAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[answerKey{answer.MatchCod, answer.UsrCod, answer.QstInd}] = answer
	return nil
}

func (s *AnswerStore) DeleteAnswer(_ context.Context, matchCod, usrCod int64, qstInd int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{matchCod, usrCod, qstInd}
	if _, ok := s.answers[key]; !ok {
		return false, nil
	}
	delete(s.answers, key)
	return true, nil
}

func (s *AnswerStore) UserAnswers(_ context.Context, matchCod, usrCod int64) ([]domain.UserAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.UserAnswer
	for key, a := range s.answers {
		if key.matchCod == matchCod && key.usrCod == usrCod {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QstInd < out[j].QstInd })
	return out, nil
}

func (s *AnswerStore) QuestionAnswers(_ context.Context, matchCod int64, qstInd int) ([]domain.UserAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.UserAnswer
	for key, a := range s.answers {
		if key.matchCod == matchCod && key.qstInd == qstInd {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UsrCod < out[j].UsrCod })
	return out, nil
}

func (s *AnswerStore) HasAnswers(_ context.Context, matchCod int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key := range s.answers {
		if key.matchCod == matchCod {
			return true, nil
		}
	}
	return false, nil
}

func (s *AnswerStore) SavePrint(_ context.Context, print domain.MatchPrint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prints[printKey{print.MatchCod, print.UsrCod}] = print
	return nil
}

func (s *AnswerStore) GetPrint(_ context.Context, matchCod, usrCod int64) (domain.MatchPrint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prints[printKey{matchCod, usrCod}]
	return p, ok, nil
}

func (s *AnswerStore) ListPrints(_ context.Context, matchCod int64) ([]domain.MatchPrint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MatchPrint
	for key, p := range s.prints {
		if key.matchCod == matchCod {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UsrCod < out[j].UsrCod })
	return out, nil
}

func (s *AnswerStore) RemoveMatchAnswers(_ context.Context, matchCod int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.answers {
		if key.matchCod == matchCod {
			delete(s.answers, key)
		}
	}
	for key := range s.prints {
		if key.matchCod == matchCod {
			delete(s.prints, key)
		}
	}
	return nil
}

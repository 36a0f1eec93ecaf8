package app

import (
	"context"
	"fmt"
	"math"
	"sort"

	"quiz-match-service/internal/domain"
)

// PrintView is a match print together with its grade.
type PrintView struct {
	domain.MatchPrint
	Grade    float64 `json:"grade"`
	MaxGrade float64 `json:"maxGrade"`
}

// ScoreBucket is one bar of the score distribution chart.
type ScoreBucket struct {
	Score    float64 `json:"score"`
	NumUsers int     `json:"numUsers"`
}

// ScoreMatchPrint recomputes the print of a student from all their answers
// in the match and stores it.
func (s *MatchService) ScoreMatchPrint(ctx context.Context, match domain.Match, usrCod int64) (domain.MatchPrint, error) {
	game, err := s.games.GetGame(ctx, match.GamCod)
	if err != nil {
		return domain.MatchPrint{}, err
	}
	seq, err := s.indexer.Sequence(ctx, match.Cod)
	if err != nil {
		return domain.MatchPrint{}, err
	}
	answers, err := s.answers.UserAnswers(ctx, match.Cod, usrCod)
	if err != nil {
		return domain.MatchPrint{}, err
	}
	summary, err := computePrint(game, seq, match.Cod, usrCod, answers)
	if err != nil {
		s.log.Error("cannot score match print", "match", match.Cod, "user", usrCod, "error", err)
		return domain.MatchPrint{}, err
	}
	if err := s.answers.SavePrint(ctx, summary); err != nil {
		return domain.MatchPrint{}, fmt.Errorf("save print: %w", err)
	}
	return summary, nil
}

func computePrint(game domain.Game, seq domain.Sequence, matchCod, usrCod int64, answers []domain.UserAnswer) (domain.MatchPrint, error) {
	byInd := make(map[int]domain.UserAnswer, len(answers))
	for _, a := range answers {
		byInd[a.QstInd] = a
	}

	summary := domain.MatchPrint{MatchCod: matchCod, UsrCod: usrCod, NumQsts: len(seq)}
	for _, ix := range seq {
		q, ok := game.Question(ix.QstInd)
		if !ok {
			return domain.MatchPrint{}, fmt.Errorf("question %d: %w", ix.QstInd, domain.ErrQuestionNotFound)
		}
		a, answered := byInd[ix.QstInd]
		correct := false
		if answered {
			if a.AnsInd < 0 || a.AnsInd >= len(q.Options) {
				return domain.MatchPrint{}, fmt.Errorf("question %d answer %d: %w", ix.QstInd, a.AnsInd, domain.ErrOptionNotFound)
			}
			correct = q.Options[a.AnsInd].Correct
			summary.NumQstsNotBlank++
			if summary.StartTime.IsZero() || a.AnsweredAt.Before(summary.StartTime) {
				summary.StartTime = a.AnsweredAt
			}
			if a.AnsweredAt.After(summary.EndTime) {
				summary.EndTime = a.AnsweredAt
			}
		}
		score, err := domain.ScoreQuestion(len(q.Options), answered, correct)
		if err != nil {
			return domain.MatchPrint{}, fmt.Errorf("question %d: %w", ix.QstInd, err)
		}
		summary.Score += score
	}
	return summary, nil
}

// GetMatchPrint returns the print of a student. The match owner may read any
// print; students only their own, once the match has ended and results are shown.
func (s *MatchService) GetMatchPrint(ctx context.Context, caller domain.Caller, matchCod, usrCod int64) (PrintView, error) {
	match, err := s.matches.GetMatch(ctx, matchCod)
	if err != nil {
		return PrintView{}, err
	}
	if err := checkResultsReader(caller, match); err != nil {
		return PrintView{}, err
	}
	if caller.Role == domain.RoleStudent && caller.UserID != usrCod {
		return PrintView{}, fmt.Errorf("%w: print of another student", domain.ErrForbidden)
	}
	summary, err := s.currentPrint(ctx, match, usrCod)
	if err != nil {
		return PrintView{}, err
	}
	views, err := s.gradePrints(ctx, match, []domain.MatchPrint{summary})
	if err != nil {
		return PrintView{}, err
	}
	return views[0], nil
}

// ListMatchPrints returns every student's print, best score first.
func (s *MatchService) ListMatchPrints(ctx context.Context, caller domain.Caller, matchCod int64) ([]PrintView, error) {
	match, err := s.matches.GetMatch(ctx, matchCod)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(caller, match); err != nil {
		return nil, err
	}
	prints, err := s.answers.ListPrints(ctx, matchCod)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(prints, func(i, j int) bool {
		if prints[i].Score != prints[j].Score {
			return prints[i].Score > prints[j].Score
		}
		return prints[i].UsrCod < prints[j].UsrCod
	})
	return s.gradePrints(ctx, match, prints)
}

// GetMatchScoreDistribution counts students per score, highest score first.
// Scores are rounded to two decimals before grouping.
func (s *MatchService) GetMatchScoreDistribution(ctx context.Context, caller domain.Caller, matchCod int64) ([]ScoreBucket, error) {
	match, err := s.matches.GetMatch(ctx, matchCod)
	if err != nil {
		return nil, err
	}
	if err := checkResultsReader(caller, match); err != nil {
		return nil, err
	}
	prints, err := s.answers.ListPrints(ctx, matchCod)
	if err != nil {
		return nil, err
	}
	return scoreDistribution(prints), nil
}

func scoreDistribution(prints []domain.MatchPrint) []ScoreBucket {
	counts := make(map[float64]int)
	for _, p := range prints {
		counts[math.Round(p.Score*100)/100]++
	}
	buckets := make([]ScoreBucket, 0, len(counts))
	for score, n := range counts {
		buckets = append(buckets, ScoreBucket{Score: score, NumUsers: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Score > buckets[j].Score })
	return buckets
}

func (s *MatchService) gradePrints(ctx context.Context, match domain.Match, prints []domain.MatchPrint) ([]PrintView, error) {
	game, err := s.games.GetGame(ctx, match.GamCod)
	if err != nil {
		return nil, err
	}
	seq, err := s.indexer.Sequence(ctx, match.Cod)
	if err != nil {
		return nil, err
	}
	lo, hi, err := domain.ScoreBounds(game, seq)
	if err != nil {
		return nil, err
	}
	maxGrade := domain.ClampMaxGrade(game.MaxGrade)
	views := make([]PrintView, 0, len(prints))
	for _, p := range prints {
		views = append(views, PrintView{
			MatchPrint: p,
			Grade:      domain.Grade(p.Score, lo, hi, maxGrade),
			MaxGrade:   maxGrade,
		})
	}
	return views, nil
}

func checkResultsReader(caller domain.Caller, match domain.Match) error {
	if !caller.LoggedIn() {
		return domain.ErrForbidden
	}
	if caller.Role.IsTeacherLike() {
		return checkOwner(caller, match)
	}
	if !match.Finished() || !match.Status.ShowUsrResults {
		return fmt.Errorf("%w: results are not published", domain.ErrForbidden)
	}
	return nil
}

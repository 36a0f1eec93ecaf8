package app

import (
	"context"
	"errors"
	"fmt"

	"quiz-match-service/internal/domain"
)

// SubmitResult summarizes an accepted answer change for one student.
// Changed is false when the request left the stored answer as it was.
type SubmitResult struct {
	Answer  domain.UserAnswer `json:"answer"`
	Changed bool              `json:"changed"`
	Print   domain.MatchPrint `json:"print"`
}

// SubmitAnswer records the on-screen option a student selected for the
// question being answered. Every refusal is returned as an error.
func (s *MatchService) SubmitAnswer(ctx context.Context, caller domain.Caller, matchCod int64, qstInd, option int) (SubmitResult, error) {
	match, err := s.checkAnswerWindow(ctx, caller, matchCod, qstInd)
	if err != nil {
		return SubmitResult{}, err
	}

	order, err := s.indexer.Resolve(ctx, matchCod, qstInd)
	if err != nil {
		s.log.Error("cannot resolve answer index", "match", matchCod, "qst_ind", qstInd, "error", err)
		return SubmitResult{}, err
	}
	if option < 0 || option >= len(order) {
		return SubmitResult{}, fmt.Errorf("%w: %d of %d", domain.ErrOptionNotFound, option, len(order))
	}
	ansInd := order[option]

	prev, found, err := s.answers.GetAnswer(ctx, matchCod, caller.UserID, qstInd)
	if err != nil {
		return SubmitResult{}, err
	}
	if found && prev.AnsInd == ansInd {
		summary, err := s.currentPrint(ctx, match, caller.UserID)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Answer: prev, Print: summary}, nil
	}

	answer := domain.UserAnswer{
		MatchCod:   matchCod,
		UsrCod:     caller.UserID,
		QstInd:     qstInd,
		NumOpt:     option,
		AnsInd:     ansInd,
		AnsweredAt: s.now(),
	}
	if err := s.answers.SaveAnswer(ctx, answer); err != nil {
		return SubmitResult{}, fmt.Errorf("save answer: %w", err)
	}
	summary, err := s.ScoreMatchPrint(ctx, match, caller.UserID)
	if err != nil {
		return SubmitResult{}, err
	}
	s.publish(EventAnswers, match)
	return SubmitResult{Answer: answer, Changed: true, Print: summary}, nil
}

// RetractAnswer removes the student's answer to the current question.
func (s *MatchService) RetractAnswer(ctx context.Context, caller domain.Caller, matchCod int64, qstInd int) (SubmitResult, error) {
	match, err := s.checkAnswerWindow(ctx, caller, matchCod, qstInd)
	if err != nil {
		return SubmitResult{}, err
	}
	deleted, err := s.answers.DeleteAnswer(ctx, matchCod, caller.UserID, qstInd)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("delete answer: %w", err)
	}
	if !deleted {
		summary, err := s.currentPrint(ctx, match, caller.UserID)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Print: summary}, nil
	}
	summary, err := s.ScoreMatchPrint(ctx, match, caller.UserID)
	if err != nil {
		return SubmitResult{}, err
	}
	s.publish(EventAnswers, match)
	return SubmitResult{Changed: true, Print: summary}, nil
}

// checkAnswerWindow verifies the match accepts answers to qstInd from caller.
func (s *MatchService) checkAnswerWindow(ctx context.Context, caller domain.Caller, matchCod int64, qstInd int) (domain.Match, error) {
	if !caller.LoggedIn() || caller.Role != domain.RoleStudent {
		return domain.Match{}, domain.ErrNotStudent
	}
	match, err := s.matches.GetMatch(ctx, matchCod)
	if err != nil {
		return domain.Match{}, err
	}

	switch {
	case match.Finished():
		return match, domain.ErrMatchEnded
	case qstInd != match.Status.QstInd:
		return match, domain.ErrWrongQuestion
	case !match.Status.Playing:
		return match, domain.ErrNotPlaying
	case match.Status.Showing != domain.PhaseAnswers:
		return match, domain.ErrNotAnswering
	}

	entitled, err := s.enrolment.StudentIsEntitledToPlay(ctx, matchCod, caller.UserID)
	if err != nil {
		return match, fmt.Errorf("check enrolment: %w", err)
	}
	if !entitled {
		return match, domain.ErrNotEntitled
	}
	joined, err := s.players.IsPlayer(ctx, matchCod, caller.UserID, s.now().Add(-s.playerTimeout))
	if err != nil {
		return match, fmt.Errorf("check player: %w", err)
	}
	if !joined {
		return match, domain.ErrNotPlayer
	}
	return match, nil
}

func (s *MatchService) currentPrint(ctx context.Context, match domain.Match, usrCod int64) (domain.MatchPrint, error) {
	summary, found, err := s.answers.GetPrint(ctx, match.Cod, usrCod)
	if err != nil {
		return domain.MatchPrint{}, err
	}
	if found {
		return summary, nil
	}
	seq, err := s.indexer.Sequence(ctx, match.Cod)
	if err != nil {
		return domain.MatchPrint{}, err
	}
	return domain.MatchPrint{MatchCod: match.Cod, UsrCod: usrCod, NumQsts: len(seq)}, nil
}

// IsRejection reports whether err is a refusal the student should be told
// about rather than a failure of the service.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrNotFound)
}

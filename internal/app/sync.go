package app

import (
	"context"
	"fmt"
	"time"

	"quiz-match-service/internal/domain"
)

// OptionView is one answer button. Number is its on-screen position.
type OptionView struct {
	Number     int    `json:"number"`
	AnsInd     int    `json:"ansInd"`
	Text       string `json:"text,omitempty"`
	Correct    *bool  `json:"correct,omitempty"`
	NumAnswers *int   `json:"numAnswers,omitempty"`
}

// QuestionView is the question currently on screen.
type QuestionView struct {
	QstInd  int          `json:"qstInd"`
	QstCod  int64        `json:"qstCod"`
	Stem    string       `json:"stem,omitempty"`
	NumCols int          `json:"numCols"`
	Options []OptionView `json:"options,omitempty"`
}

// StudentOptionView is an answer button as a student sees it: only its
// on-screen number, never the answer it stands for.
type StudentOptionView struct {
	Number int `json:"number"`
}

// StudentQuestionView is the question a student may answer.
type StudentQuestionView struct {
	QstInd  int                 `json:"qstInd"`
	QstCod  int64               `json:"qstCod"`
	NumCols int                 `json:"numCols"`
	Options []StudentOptionView `json:"options"`
}

// TeacherView is what a teacher refresh returns.
type TeacherView struct {
	Match              domain.Match  `json:"match"`
	Phase              domain.Phase  `json:"phase"`
	Question           *QuestionView `json:"question,omitempty"`
	ElapsedInMatch     int           `json:"elapsedInMatch"`
	ElapsedInQuestion  int           `json:"elapsedInQuestion"`
	NumResponders      int           `json:"numResponders"`
	NumPlayers         int           `json:"numPlayers"`
	CountdownRemaining int           `json:"countdownRemaining"`
}

// StudentView is what a student refresh returns.
type StudentView struct {
	MatchCod int64                `json:"matchCod"`
	Phase    domain.Phase         `json:"phase"`
	Waiting  bool                 `json:"waiting"`
	Question *StudentQuestionView `json:"question,omitempty"`
	Answer   *int                 `json:"answer,omitempty"`
	Result   *PrintView           `json:"result,omitempty"`
}

// TeacherRefresh is polled by the controlling teacher. Each call accounts the
// time elapsed since the previous one, which also drives the countdown, and
// refreshes the number of live players.
func (s *MatchService) TeacherRefresh(ctx context.Context, caller domain.Caller, matchCod int64) (TeacherView, error) {
	current, err := s.matches.GetMatch(ctx, matchCod)
	if err != nil {
		return TeacherView{}, err
	}
	if err := checkOwner(caller, current); err != nil {
		return TeacherView{}, err
	}
	seq, err := s.indexer.Sequence(ctx, matchCod)
	if err != nil {
		s.log.Error("match has no answer indexes", "match", matchCod, "error", err)
		return TeacherView{}, err
	}

	now := s.now()
	if err := s.players.PurgeStale(ctx, matchCod, now.Add(-s.playerTimeout)); err != nil {
		return TeacherView{}, fmt.Errorf("purge players: %w", err)
	}
	numPlayers, err := s.players.CountPlayers(ctx, matchCod)
	if err != nil {
		return TeacherView{}, fmt.Errorf("count players: %w", err)
	}

	advanced := false
	match, err := s.matches.UpdateMatch(ctx, matchCod, func(m *domain.Match) error {
		if m.Tick(now, seq) {
			advanced = true
			m.EndTime = now
			s.log.Info("countdown advanced match", "match", matchCod,
				"qst_ind", m.Status.QstInd, "showing", m.Status.Showing)
		}
		m.Status.NumPlayers = numPlayers
		return nil
	})
	if err != nil {
		return TeacherView{}, err
	}
	if advanced {
		s.publish(EventStatus, match)
	}

	view := TeacherView{
		Match:              match,
		Phase:              match.Status.Showing,
		ElapsedInMatch:     int(match.ElapsedInMatch() / time.Second),
		ElapsedInQuestion:  int(match.ElapsedInQuestion() / time.Second),
		NumPlayers:         numPlayers,
		CountdownRemaining: match.Status.Countdown,
	}

	switch match.Status.Showing {
	case domain.PhaseStem, domain.PhaseAnswers, domain.PhaseResults:
	default:
		return view, nil
	}

	answers, err := s.answers.QuestionAnswers(ctx, matchCod, match.Status.QstInd)
	if err != nil {
		return TeacherView{}, err
	}
	view.NumResponders = len(answers)

	question, err := s.teacherQuestion(ctx, match, seq, answers)
	if err != nil {
		return TeacherView{}, err
	}
	view.Question = question
	return view, nil
}

func (s *MatchService) teacherQuestion(ctx context.Context, match domain.Match, seq domain.Sequence, answers []domain.UserAnswer) (*QuestionView, error) {
	game, err := s.games.GetGame(ctx, match.GamCod)
	if err != nil {
		return nil, err
	}
	entry, ok := seq.Find(match.Status.QstInd)
	if !ok {
		return nil, fmt.Errorf("match %d question %d: %w", match.Cod, match.Status.QstInd, domain.ErrIndexesMissing)
	}
	q, ok := game.Question(match.Status.QstInd)
	if !ok {
		return nil, fmt.Errorf("question %d: %w", match.Status.QstInd, domain.ErrQuestionNotFound)
	}

	view := &QuestionView{
		QstInd:  q.Ind,
		QstCod:  q.Cod,
		Stem:    q.Stem,
		NumCols: match.Status.NumCols,
	}
	if match.Status.Showing == domain.PhaseStem {
		return view, nil
	}

	tally := make(map[int]int, len(entry.Order))
	for _, a := range answers {
		tally[a.AnsInd]++
	}
	for number, ansInd := range entry.Order {
		if ansInd < 0 || ansInd >= len(q.Options) {
			return nil, fmt.Errorf("question %d answer %d: %w", q.Ind, ansInd, domain.ErrOptionNotFound)
		}
		opt := OptionView{Number: number, AnsInd: ansInd, Text: q.Options[ansInd].Text}
		if match.Status.ShowQstResults {
			n := tally[ansInd]
			opt.NumAnswers = &n
		}
		if match.Status.Showing == domain.PhaseResults {
			correct := q.Options[ansInd].Correct
			opt.Correct = &correct
		}
		view.Options = append(view.Options, opt)
	}
	return view, nil
}

// StudentRefresh is polled by every student (JoinAndRefresh). While the match
// is playing the student is registered as a player, which is required to answer.
func (s *MatchService) StudentRefresh(ctx context.Context, caller domain.Caller, matchCod int64) (StudentView, error) {
	if !caller.LoggedIn() || caller.Role != domain.RoleStudent {
		return StudentView{}, domain.ErrNotStudent
	}
	match, err := s.matches.GetMatch(ctx, matchCod)
	if err != nil {
		return StudentView{}, err
	}
	entitled, err := s.enrolment.StudentIsEntitledToPlay(ctx, matchCod, caller.UserID)
	if err != nil {
		return StudentView{}, fmt.Errorf("check enrolment: %w", err)
	}
	if !entitled {
		return StudentView{}, domain.ErrNotEntitled
	}

	now := s.now()
	view := StudentView{MatchCod: matchCod, Phase: match.Status.Showing}

	if match.Finished() {
		if !match.Status.ShowUsrResults {
			return view, nil
		}
		joined, err := s.hasPlayed(ctx, match, caller.UserID)
		if err != nil {
			return StudentView{}, err
		}
		if !joined {
			return view, nil
		}
		result, err := s.GetMatchPrint(ctx, caller, matchCod, caller.UserID)
		if err != nil {
			return StudentView{}, err
		}
		view.Result = &result
		return view, nil
	}

	if !match.Status.Playing {
		view.Waiting = true
		return view, nil
	}
	if err := s.players.RegisterPlayer(ctx, matchCod, caller.UserID, now); err != nil {
		return StudentView{}, fmt.Errorf("register player: %w", err)
	}

	switch match.Status.Showing {
	case domain.PhaseAnswers, domain.PhaseResults:
	default:
		return view, nil
	}

	prev, found, err := s.answers.GetAnswer(ctx, matchCod, caller.UserID, match.Status.QstInd)
	if err != nil {
		return StudentView{}, err
	}
	if found {
		numOpt := prev.NumOpt
		view.Answer = &numOpt
	}
	if match.Status.Showing != domain.PhaseAnswers {
		return view, nil
	}

	order, err := s.indexer.Resolve(ctx, matchCod, match.Status.QstInd)
	if err != nil {
		s.log.Error("cannot resolve answer index", "match", matchCod, "qst_ind", match.Status.QstInd, "error", err)
		return StudentView{}, err
	}
	question := &StudentQuestionView{
		QstInd:  match.Status.QstInd,
		QstCod:  match.Status.QstCod,
		NumCols: match.Status.NumCols,
		Options: make([]StudentOptionView, len(order)),
	}
	for number := range order {
		question.Options[number] = StudentOptionView{Number: number}
	}
	view.Question = question
	return view, nil
}

// hasPlayed reports whether the student ever joined the match, either as a
// registered player or through a stored print.
func (s *MatchService) hasPlayed(ctx context.Context, match domain.Match, usrCod int64) (bool, error) {
	joined, err := s.players.IsPlayer(ctx, match.Cod, usrCod, time.Time{})
	if err != nil {
		return false, err
	}
	if joined {
		return true, nil
	}
	_, found, err := s.answers.GetPrint(ctx, match.Cod, usrCod)
	return found, err
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quiz-match-service/internal/domain"
)

// DefaultPlayerTimeout is how long a student stays counted as a player
// without polling.
const DefaultPlayerTimeout = 30 * time.Second

// MatchService contains the match use cases.
type MatchService struct {
	matches   MatchRepository
	answers   AnswerRepository
	players   PlayerRepository
	games     GameRepository
	enrolment Enrolment
	indexer   *AnswerIndexer
	events    EventPublisher

	now           func() time.Time
	playerTimeout time.Duration
	log           *slog.Logger
}

type Option func(*MatchService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MatchService) { s.now = now }
}

func WithPlayerTimeout(d time.Duration) Option {
	return func(s *MatchService) {
		if d > 0 {
			s.playerTimeout = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *MatchService) { s.log = log }
}

func WithIndexer(ix *AnswerIndexer) Option {
	return func(s *MatchService) { s.indexer = ix }
}

// WithPublisher sends every match change to p.
func WithPublisher(p EventPublisher) Option {
	return func(s *MatchService) { s.events = p }
}

func NewMatchService(matches MatchRepository, answers AnswerRepository, players PlayerRepository, games GameRepository, enrolment Enrolment, opts ...Option) *MatchService {
	s := &MatchService{
		matches:       matches,
		answers:       answers,
		players:       players,
		games:         games,
		enrolment:     enrolment,
		now:           time.Now,
		playerTimeout: DefaultPlayerTimeout,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.indexer == nil {
		s.indexer = NewAnswerIndexer(matches, s.log)
	}
	return s
}

// ControlResult is what every teacher control operation returns: the fresh
// match, whether the requested transition happened and, if not, why.
type ControlResult struct {
	Match   domain.Match
	Applied bool
	Reason  error
}

// CreateMatch starts a new match of a game owned by the calling teacher.
// When groups are given only their members may play it.
func (s *MatchService) CreateMatch(ctx context.Context, caller domain.Caller, gamCod int64, title string, groups ...int64) (domain.Match, error) {
	if !caller.LoggedIn() || !caller.Role.IsTeacherLike() {
		return domain.Match{}, domain.ErrNotTeacher
	}
	game, err := s.games.GetGame(ctx, gamCod)
	if err != nil {
		return domain.Match{}, err
	}
	if title == "" {
		title = game.Title
	}

	match := domain.NewMatch(game.Cod, caller.UserID, title, s.now())
	created, seq, err := s.indexer.CreateIndexes(ctx, game, match)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuestion) {
			s.log.Error("game cannot be played", "game", gamCod, "error", err)
		}
		return domain.Match{}, err
	}
	if len(groups) > 0 {
		if err := s.enrolment.RestrictToGroups(ctx, created.Cod, groups...); err != nil {
			if rmErr := s.matches.RemoveMatch(ctx, created.Cod); rmErr != nil {
				s.log.Error("cannot drop unrestricted match", "match", created.Cod, "error", rmErr)
			}
			s.indexer.Forget(created.Cod)
			return domain.Match{}, fmt.Errorf("restrict match: %w", err)
		}
	}
	s.log.Info("match created", "match", created.Cod, "game", gamCod, "teacher", caller.UserID,
		"questions", len(seq), "groups", groups)
	return created, nil
}

// RestrictMatch replaces the groups whose members may play a match. An empty
// list opens it to every student.
func (s *MatchService) RestrictMatch(ctx context.Context, caller domain.Caller, matchCod int64, groups []int64) error {
	match, err := s.matches.GetMatch(ctx, matchCod)
	if err != nil {
		return err
	}
	if err := checkOwner(caller, match); err != nil {
		return err
	}
	if err := s.enrolment.RestrictToGroups(ctx, matchCod, groups...); err != nil {
		return fmt.Errorf("restrict match: %w", err)
	}
	s.log.Info("match groups changed", "match", matchCod, "groups", groups)
	return nil
}

// GetMatch returns a match to any logged in caller.
func (s *MatchService) GetMatch(ctx context.Context, caller domain.Caller, matchCod int64) (domain.Match, error) {
	if !caller.LoggedIn() {
		return domain.Match{}, domain.ErrForbidden
	}
	return s.matches.GetMatch(ctx, matchCod)
}

// ListMatches returns the matches of a game, newest first.
func (s *MatchService) ListMatches(ctx context.Context, caller domain.Caller, gamCod int64) ([]domain.Match, error) {
	if !caller.LoggedIn() {
		return nil, domain.ErrForbidden
	}
	return s.matches.ListMatches(ctx, gamCod)
}

// RemoveMatch deletes a match with its indexes, answers, prints and players.
func (s *MatchService) RemoveMatch(ctx context.Context, caller domain.Caller, matchCod int64) error {
	match, err := s.matches.GetMatch(ctx, matchCod)
	if err != nil {
		return err
	}
	if reason := checkOwner(caller, match); reason != nil {
		return reason
	}
	if err := s.answers.RemoveMatchAnswers(ctx, matchCod); err != nil {
		return fmt.Errorf("remove answers: %w", err)
	}
	if err := s.players.RemovePlayers(ctx, matchCod); err != nil {
		return fmt.Errorf("remove players: %w", err)
	}
	if err := s.matches.RemoveMatch(ctx, matchCod); err != nil {
		return err
	}
	s.indexer.Forget(matchCod)
	s.publish(EventRemoved, domain.Match{Cod: matchCod})
	s.log.Info("match removed", "match", matchCod, "by", caller.UserID)
	return nil
}

// Resume lets a paused match play again.
func (s *MatchService) Resume(ctx context.Context, caller domain.Caller, matchCod int64) (ControlResult, error) {
	return s.control(ctx, caller, matchCod, "resume", func(m *domain.Match, _ domain.Sequence, now time.Time) error {
		if m.Finished() {
			return domain.ErrMatchEnded
		}
		if !m.Status.Resume() {
			return ErrNoChange
		}
		m.TickedAt = now
		return nil
	})
}

func (s *MatchService) PlayPause(ctx context.Context, caller domain.Caller, matchCod int64) (ControlResult, error) {
	return s.control(ctx, caller, matchCod, "play_pause", func(m *domain.Match, _ domain.Sequence, now time.Time) error {
		if !m.Status.PlayPause() {
			return domain.ErrMatchEnded
		}
		if m.Status.Playing {
			m.TickedAt = now
		}
		return nil
	})
}

// Next moves the match one step forward. When expect is not nil the step is
// only taken if the match is still at that position.
func (s *MatchService) Next(ctx context.Context, caller domain.Caller, matchCod int64, expect *domain.Position) (ControlResult, error) {
	return s.control(ctx, caller, matchCod, "next", func(m *domain.Match, seq domain.Sequence, _ time.Time) error {
		if expect != nil && *expect != m.Status.Position() {
			return domain.ErrStaleRequest
		}
		if !m.Status.Next(seq) {
			return domain.ErrMatchEnded
		}
		return nil
	})
}

// Previous moves the match one step back. See Next for expect.
func (s *MatchService) Previous(ctx context.Context, caller domain.Caller, matchCod int64, expect *domain.Position) (ControlResult, error) {
	return s.control(ctx, caller, matchCod, "previous", func(m *domain.Match, seq domain.Sequence, _ time.Time) error {
		if expect != nil && *expect != m.Status.Position() {
			return domain.ErrStaleRequest
		}
		if m.Finished() {
			return domain.ErrMatchEnded
		}
		if !m.Status.Previous(seq) {
			return ErrNoChange
		}
		return nil
	})
}

// SetCountdown starts a countdown of seconds, or clears it when negative.
func (s *MatchService) SetCountdown(ctx context.Context, caller domain.Caller, matchCod int64, seconds int) (ControlResult, error) {
	return s.control(ctx, caller, matchCod, "countdown", func(m *domain.Match, _ domain.Sequence, _ time.Time) error {
		switch {
		case m.Finished():
			return domain.ErrMatchEnded
		case !m.Status.Playing:
			return domain.ErrNotPlaying
		case m.Status.Showing == domain.PhaseStart:
			return fmt.Errorf("%w: no question shown yet", domain.ErrInvalidState)
		}
		if !m.Status.SetCountdown(seconds) {
			return ErrNoChange
		}
		return nil
	})
}

func (s *MatchService) ToggleQstResultsVisible(ctx context.Context, caller domain.Caller, matchCod int64) (ControlResult, error) {
	return s.control(ctx, caller, matchCod, "toggle_qst_results", func(m *domain.Match, _ domain.Sequence, _ time.Time) error {
		m.Status.ToggleQstResults()
		return nil
	})
}

func (s *MatchService) ToggleUsrResultsVisible(ctx context.Context, caller domain.Caller, matchCod int64) (ControlResult, error) {
	return s.control(ctx, caller, matchCod, "toggle_usr_results", func(m *domain.Match, _ domain.Sequence, _ time.Time) error {
		if !m.Status.ToggleUsrResults() {
			return fmt.Errorf("%w: results are not visible", domain.ErrInvalidState)
		}
		return nil
	})
}

func (s *MatchService) ChangeNumCols(ctx context.Context, caller domain.Caller, matchCod int64, numCols int) (ControlResult, error) {
	return s.control(ctx, caller, matchCod, "num_cols", func(m *domain.Match, _ domain.Sequence, _ time.Time) error {
		if m.Finished() {
			return domain.ErrMatchEnded
		}
		if !m.Status.SetNumCols(numCols) {
			return ErrNoChange
		}
		return nil
	})
}

type transition func(m *domain.Match, seq domain.Sequence, now time.Time) error

// control runs one teacher transition as an atomic read-modify-write.
// Permission and phase failures are reported in the result, not as errors.
func (s *MatchService) control(ctx context.Context, caller domain.Caller, matchCod int64, op string, fn transition) (ControlResult, error) {
	current, err := s.matches.GetMatch(ctx, matchCod)
	if errors.Is(err, domain.ErrNotFound) {
		return ControlResult{Reason: domain.ErrMatchNotFound}, nil
	}
	if err != nil {
		return ControlResult{}, err
	}
	reason, err := s.checkControl(ctx, caller, current)
	if err != nil {
		return ControlResult{}, err
	}
	if reason != nil {
		s.log.Debug("match control refused", "op", op, "match", matchCod, "user", caller.UserID, "reason", reason)
		return ControlResult{Match: current, Reason: reason}, nil
	}

	seq, err := s.indexer.Sequence(ctx, matchCod)
	if err != nil {
		s.log.Error("match has no answer indexes", "match", matchCod, "error", err)
		return ControlResult{}, err
	}

	now := s.now()
	var outcome error
	ticked := false
	updated, err := s.matches.UpdateMatch(ctx, matchCod, func(m *domain.Match) error {
		// Time spent in the current state is accounted before it changes.
		ticked = m.Tick(now, seq)
		if ticked && (op == "next" || op == "previous") {
			// The countdown already moved the match past the position the
			// teacher was looking at.
			outcome = domain.ErrStaleRequest
			m.EndTime = now
			return nil
		}
		if err := fn(m, seq, now); err != nil {
			outcome = err
			if !ticked {
				return ErrNoChange
			}
		}
		m.EndTime = now
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return ControlResult{Reason: domain.ErrMatchNotFound}, nil
	}
	if err != nil {
		return ControlResult{}, err
	}

	result := ControlResult{Match: updated, Applied: outcome == nil}
	if outcome != nil && !errors.Is(outcome, ErrNoChange) {
		result.Reason = outcome
	}
	if result.Applied || ticked {
		s.publish(EventStatus, updated)
	}
	s.log.Debug("match control", "op", op, "match", matchCod, "applied", result.Applied,
		"qst_ind", updated.Status.QstInd, "showing", updated.Status.Showing)
	return result, nil
}

func (s *MatchService) checkControl(ctx context.Context, caller domain.Caller, match domain.Match) (error, error) {
	if reason := checkOwner(caller, match); reason != nil {
		return reason, nil
	}
	if caller.Role == domain.RoleNonEditingTeacher {
		played, err := s.answers.HasAnswers(ctx, match.Cod)
		if err != nil {
			return nil, err
		}
		if played {
			return domain.ErrMatchPlayed, nil
		}
	}
	return nil, nil
}

func checkOwner(caller domain.Caller, match domain.Match) error {
	if !caller.LoggedIn() {
		return domain.ErrNotTeacher
	}
	switch caller.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleTeacher, domain.RoleNonEditingTeacher:
		if match.UsrCod != caller.UserID {
			return domain.ErrNotOwner
		}
		return nil
	default:
		return domain.ErrNotTeacher
	}
}

func (s *MatchService) publish(kind EventKind, match domain.Match) {
	if s.events == nil {
		return
	}
	s.events.Publish(MatchEvent{MatchCod: match.Cod, Kind: kind, Status: match.Status, At: s.now()})
}

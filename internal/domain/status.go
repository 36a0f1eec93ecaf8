package domain

import (
	"fmt"
	"time"
)

// Sequence is the ordered list of questions a match visits, one entry per
// row of its answer-index table.
type Sequence []AnswerIndex

// Find returns the entry for question index qstInd.
func (s Sequence) Find(qstInd int) (AnswerIndex, bool) {
	for _, ix := range s {
		if ix.QstInd == qstInd {
			return ix, true
		}
	}
	return AnswerIndex{}, false
}

// Clone returns a copy sharing no permutation with s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	for i, ix := range s {
		out[i] = ix
		out[i].Order = append([]int(nil), ix.Order...)
	}
	return out
}

func (s Sequence) after(qstInd int) (AnswerIndex, bool) {
	for _, ix := range s {
		if ix.QstInd > qstInd {
			return ix, true
		}
	}
	return AnswerIndex{}, false
}

func (s Sequence) before(qstInd int) (AnswerIndex, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].QstInd < qstInd {
			return s[i], true
		}
	}
	return AnswerIndex{}, false
}

// NewStatus is the status of a freshly created match.
func NewStatus() Status {
	return Status{
		QstInd:    0,
		QstCod:    NoQuestion,
		Showing:   PhaseStart,
		Countdown: NoCountdown,
		NumCols:   MinNumCols,
	}
}

// NewMatch builds a match in its start phase.
func NewMatch(gamCod, usrCod int64, title string, now time.Time) Match {
	return Match{
		GamCod:    gamCod,
		UsrCod:    usrCod,
		Title:     title,
		StartTime: now,
		EndTime:   now,
		Status:    NewStatus(),
		TickedAt:  now,
		Elapsed:   make(map[int]int),
	}
}

func (s Status) Position() Position {
	return Position{QstInd: s.QstInd, Showing: s.Showing}
}

// running reports whether time counts for the current question.
func (s Status) running() bool {
	if !s.Playing {
		return false
	}
	switch s.Showing {
	case PhaseStem, PhaseAnswers, PhaseResults:
		return true
	default:
		return false
	}
}

func (s *Status) toStart() {
	s.QstInd = 0
	s.QstCod = NoQuestion
	s.Showing = PhaseStart
}

func (s *Status) toEnd() {
	s.QstInd = AfterLastQuestion
	s.QstCod = NoQuestion
	s.Showing = PhaseEnd
	s.Playing = false
	s.Countdown = NoCountdown
}

func (s *Status) toQuestion(ix AnswerIndex, showing Phase) {
	s.QstInd = ix.QstInd
	s.QstCod = ix.QstCod
	s.Showing = showing
}

func (s *Status) toNextQuestion(seq Sequence) {
	if ix, ok := seq.after(s.QstInd); ok {
		s.toQuestion(ix, PhaseStem)
		return
	}
	s.toEnd()
}

// Next advances one step: start → stem → answers → [results] → next stem … → end.
// It reports whether the status changed.
func (s *Status) Next(seq Sequence) bool {
	before := *s
	switch s.Showing {
	case PhaseStart:
		s.toNextQuestion(seq)
	case PhaseStem:
		s.Showing = PhaseAnswers
	case PhaseAnswers:
		if s.ShowQstResults {
			s.Showing = PhaseResults
		} else {
			s.toNextQuestion(seq)
		}
	case PhaseResults:
		s.toNextQuestion(seq)
	case PhaseEnd:
		return false
	}
	s.Countdown = NoCountdown
	return *s != before
}

// Previous steps back, landing only on stem or answers, and hides the
// students' results.
func (s *Status) Previous(seq Sequence) bool {
	if s.Showing == PhaseEnd {
		return false
	}
	before := *s
	switch s.Showing {
	case PhaseStem:
		if ix, ok := seq.before(s.QstInd); ok {
			s.toQuestion(ix, PhaseAnswers)
		} else {
			s.toStart()
		}
	case PhaseAnswers:
		s.Showing = PhaseStem
	case PhaseResults:
		s.Showing = PhaseAnswers
	}
	s.Countdown = NoCountdown
	s.ShowUsrResults = false
	return *s != before
}

// PlayPause toggles Playing. An ended match cannot be resumed.
func (s *Status) PlayPause() bool {
	if s.Showing == PhaseEnd && !s.Playing {
		return false
	}
	s.Playing = !s.Playing
	if !s.Playing {
		s.Countdown = NoCountdown
	}
	return true
}

// Resume sets Playing unless the match has ended.
func (s *Status) Resume() bool {
	if s.Showing == PhaseEnd || s.Playing {
		return false
	}
	s.Playing = true
	return true
}

// SetCountdown starts (seconds ≥ 0) or clears (seconds < 0) the countdown.
// Values above MaxCountdown are clamped.
func (s *Status) SetCountdown(seconds int) bool {
	if !s.running() {
		return false
	}
	switch {
	case seconds < 0:
		seconds = NoCountdown
	case seconds > MaxCountdown:
		seconds = MaxCountdown
	}
	if s.Countdown == seconds {
		return false
	}
	s.Countdown = seconds
	return true
}

// ToggleQstResults flips ShowQstResults; results being shown fall back to answers
// when they become disabled.
func (s *Status) ToggleQstResults() bool {
	s.ShowQstResults = !s.ShowQstResults
	if !s.ShowQstResults && s.Showing == PhaseResults {
		s.Showing = PhaseAnswers
	}
	return true
}

// ToggleUsrResults flips ShowUsrResults. Revealing is only possible while
// results are on screen or after the match has ended; hiding is always possible.
func (s *Status) ToggleUsrResults() bool {
	if !s.ShowUsrResults && s.Showing != PhaseResults && s.Showing != PhaseEnd {
		return false
	}
	s.ShowUsrResults = !s.ShowUsrResults
	return true
}

// SetNumCols clamps n into [MinNumCols, MaxNumCols].
func (s *Status) SetNumCols(n int) bool {
	if s.Showing == PhaseEnd {
		return false
	}
	if n < MinNumCols {
		n = MinNumCols
	} else if n > MaxNumCols {
		n = MaxNumCols
	}
	if s.NumCols == n {
		return false
	}
	s.NumCols = n
	return true
}

// Check verifies the status invariants.
func (s Status) Check() error {
	if !s.Showing.Valid() {
		return fmt.Errorf("unknown phase %q", s.Showing)
	}
	if (s.QstInd == 0) != (s.Showing == PhaseStart) {
		return fmt.Errorf("question index %d while showing %s", s.QstInd, s.Showing)
	}
	if (s.QstInd == AfterLastQuestion) != (s.Showing == PhaseEnd) {
		return fmt.Errorf("question index %d while showing %s", s.QstInd, s.Showing)
	}
	if s.Countdown >= 0 && !s.running() {
		return fmt.Errorf("countdown %d while not running", s.Countdown)
	}
	if s.NumCols < MinNumCols || s.NumCols > MaxNumCols {
		return fmt.Errorf("num cols %d out of range", s.NumCols)
	}
	return nil
}

// Tick accounts the whole seconds elapsed since the last tick: they add to the
// current question's elapsed time and consume the countdown. When the countdown
// runs out the match advances. Tick reports whether it advanced.
func (m *Match) Tick(now time.Time, seq Sequence) bool {
	if m.TickedAt.IsZero() || now.Before(m.TickedAt) || !m.Status.running() {
		m.TickedAt = now
		return false
	}
	secs := int(now.Sub(m.TickedAt) / time.Second)
	if secs <= 0 {
		return false
	}
	m.TickedAt = m.TickedAt.Add(time.Duration(secs) * time.Second)
	if m.Elapsed == nil {
		m.Elapsed = make(map[int]int)
	}
	m.Elapsed[m.Status.QstInd] += secs

	if m.Status.Countdown < 0 {
		return false
	}
	m.Status.Countdown -= secs
	if m.Status.Countdown > 0 {
		return false
	}
	m.Status.Countdown = NoCountdown
	return m.Status.Next(seq)
}

package domain

import (
	"testing"
	"time"
)

func threeQuestions() Sequence {
	return Sequence{
		{QstInd: 1, QstCod: 101, Order: []int{0, 1, 2, 3}},
		{QstInd: 3, QstCod: 103, Order: []int{1, 0}},
		{QstInd: 4, QstCod: 104, Order: []int{2, 0, 1}},
	}
}

func TestNextVisitsPhasesInOrder(t *testing.T) {
	for _, withResults := range []bool{false, true} {
		seq := threeQuestions()
		s := NewStatus()
		s.ShowQstResults = withResults

		var got []Position
		for i := 0; i < 20; i++ {
			got = append(got, s.Position())
			if err := s.Check(); err != nil {
				t.Fatalf("invariant broken at %+v: %v", s.Position(), err)
			}
			if !s.Next(seq) {
				break
			}
		}

		var want []Position
		want = append(want, Position{0, PhaseStart})
		for _, ix := range seq {
			want = append(want, Position{ix.QstInd, PhaseStem}, Position{ix.QstInd, PhaseAnswers})
			if withResults {
				want = append(want, Position{ix.QstInd, PhaseResults})
			}
		}
		want = append(want, Position{AfterLastQuestion, PhaseEnd})

		if len(got) != len(want) {
			t.Fatalf("results=%v: expected %d positions, got %d: %+v", withResults, len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("results=%v: step %d expected %+v, got %+v", withResults, i, want[i], got[i])
			}
		}
	}
}

func TestNextAtEndStaysAtEnd(t *testing.T) {
	seq := Sequence{{QstInd: 1, QstCod: 7, Order: []int{0, 1}}}
	s := NewStatus()
	s.Playing = true
	for s.Showing != PhaseEnd {
		s.Next(seq)
	}
	if s.Playing {
		t.Fatalf("expected playing cleared at end")
	}
	if s.Next(seq) {
		t.Fatalf("expected next at end to be a no-op")
	}
	if s.QstInd != AfterLastQuestion || s.QstCod != NoQuestion {
		t.Fatalf("unexpected end status %+v", s)
	}
}

func TestNextWithEmptySequenceEnds(t *testing.T) {
	s := NewStatus()
	s.Next(nil)
	if s.Showing != PhaseEnd {
		t.Fatalf("expected end, got %s", s.Showing)
	}
}

func TestPreviousNeverReentersResults(t *testing.T) {
	seq := threeQuestions()
	s := NewStatus()
	s.ShowQstResults = true
	s.Playing = true

	// Walk to the stem of the second question.
	for s.Position() != (Position{3, PhaseStem}) {
		s.Next(seq)
	}
	s.Previous(seq)
	if s.Position() != (Position{1, PhaseAnswers}) {
		t.Fatalf("expected previous question answers, got %+v", s.Position())
	}

	s.Next(seq) // results of q1
	if s.Showing != PhaseResults {
		t.Fatalf("expected results, got %s", s.Showing)
	}
	s.ShowUsrResults = true
	s.Previous(seq)
	if s.Showing != PhaseAnswers {
		t.Fatalf("expected answers after going back from results, got %s", s.Showing)
	}
	if s.ShowUsrResults {
		t.Fatalf("expected user results hidden when rewinding")
	}

	s.Previous(seq)
	s.Previous(seq)
	if s.Showing != PhaseStart || s.QstInd != 0 {
		t.Fatalf("expected start, got %+v", s.Position())
	}
	if s.Previous(seq) {
		t.Fatalf("expected previous at start to be a no-op")
	}
}

func TestPreviousAfterNextFromStem(t *testing.T) {
	seq := threeQuestions()
	for _, withResults := range []bool{false, true} {
		s := NewStatus()
		s.ShowQstResults = withResults
		s.Next(seq)
		for s.Showing != PhaseEnd {
			if s.Showing == PhaseStem {
				from := s.QstInd
				back := s
				back.Next(seq)
				back.Previous(seq)
				if back.QstInd > from {
					t.Fatalf("previous after next landed on question %d past %d", back.QstInd, from)
				}
				if back.Showing == PhaseResults {
					t.Fatalf("previous re-entered results")
				}
			}
			s.Next(seq)
		}
	}
}

func TestPreviousAtEndIsNoop(t *testing.T) {
	s := NewStatus()
	s.Next(nil)
	if s.Previous(threeQuestions()) {
		t.Fatalf("expected ended match to be terminal")
	}
}

func TestPlayPauseCannotResumeEnded(t *testing.T) {
	s := NewStatus()
	if !s.PlayPause() || !s.Playing {
		t.Fatalf("expected play")
	}
	s.Next(nil)
	if s.Playing {
		t.Fatalf("expected end to stop playing")
	}
	if s.PlayPause() {
		t.Fatalf("expected play at end to be refused")
	}
	if s.Resume() {
		t.Fatalf("expected resume at end to be refused")
	}
}

func TestCountdownRequiresRunningMatch(t *testing.T) {
	seq := threeQuestions()
	s := NewStatus()
	if s.SetCountdown(10) {
		t.Fatalf("countdown at start must be refused")
	}
	s.Playing = true
	s.Next(seq)
	if !s.SetCountdown(10) || s.Countdown != 10 {
		t.Fatalf("expected countdown 10, got %d", s.Countdown)
	}
	if !s.SetCountdown(99999) || s.Countdown != MaxCountdown {
		t.Fatalf("expected countdown clamped, got %d", s.Countdown)
	}
	s.PlayPause()
	if s.Countdown != NoCountdown {
		t.Fatalf("expected pause to clear countdown")
	}
	if s.SetCountdown(5) {
		t.Fatalf("countdown while paused must be refused")
	}
}

func TestToggleQstResultsLeavesResultsPhase(t *testing.T) {
	seq := threeQuestions()
	s := NewStatus()
	s.ShowQstResults = true
	s.Next(seq)
	s.Next(seq)
	s.Next(seq)
	if s.Showing != PhaseResults {
		t.Fatalf("expected results, got %s", s.Showing)
	}
	s.ToggleQstResults()
	if s.Showing != PhaseAnswers {
		t.Fatalf("expected answers once results disabled, got %s", s.Showing)
	}
}

func TestToggleUsrResultsOnlyWhenVisible(t *testing.T) {
	seq := threeQuestions()
	s := NewStatus()
	s.Next(seq)
	if s.ToggleUsrResults() {
		t.Fatalf("expected reveal mid-question to be refused")
	}
	for s.Showing != PhaseEnd {
		s.Next(seq)
	}
	if !s.ToggleUsrResults() || !s.ShowUsrResults {
		t.Fatalf("expected reveal after end")
	}
	if !s.ToggleUsrResults() || s.ShowUsrResults {
		t.Fatalf("expected hide after end")
	}
}

func TestSetNumColsClamps(t *testing.T) {
	s := NewStatus()
	s.SetNumCols(9)
	if s.NumCols != MaxNumCols {
		t.Fatalf("expected %d cols, got %d", MaxNumCols, s.NumCols)
	}
	s.SetNumCols(-3)
	if s.NumCols != MinNumCols {
		t.Fatalf("expected %d cols, got %d", MinNumCols, s.NumCols)
	}
}

func TestTickConsumesCountdownAndAdvances(t *testing.T) {
	seq := threeQuestions()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewMatch(1, 1, "demo", start)
	m.Status.Playing = true
	m.Status.Next(seq)
	m.Status.Next(seq) // answers of q1
	m.Status.SetCountdown(5)

	if m.Tick(start.Add(2500*time.Millisecond), seq) {
		t.Fatalf("did not expect advance after 2s")
	}
	if m.Status.Countdown != 3 {
		t.Fatalf("expected 3s left, got %d", m.Status.Countdown)
	}
	if !m.Tick(start.Add(5*time.Second), seq) {
		t.Fatalf("expected advance when countdown ran out")
	}
	if m.Status.Position() != (Position{3, PhaseStem}) {
		t.Fatalf("expected next question stem, got %+v", m.Status.Position())
	}
	if m.Status.Countdown != NoCountdown {
		t.Fatalf("expected countdown cleared, got %d", m.Status.Countdown)
	}
	if m.Elapsed[1] != 5 {
		t.Fatalf("expected 5s on q1, got %d", m.Elapsed[1])
	}
	if err := m.Status.Check(); err != nil {
		t.Fatalf("invariant: %v", err)
	}
}

func TestTickDoesNotCountWhilePaused(t *testing.T) {
	seq := threeQuestions()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewMatch(1, 1, "demo", start)
	m.Status.Next(seq)

	m.Tick(start.Add(30*time.Second), seq)
	if got := m.ElapsedInMatch(); got != 0 {
		t.Fatalf("expected no elapsed time while paused, got %s", got)
	}
	m.Status.Playing = true
	m.Tick(start.Add(40*time.Second), seq)
	if got := m.ElapsedInQuestion(); got != 10*time.Second {
		t.Fatalf("expected 10s, got %s", got)
	}
}

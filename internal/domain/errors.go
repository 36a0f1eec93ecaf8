package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a match, game, question, option or student is missing.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a capability or ownership check fails.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState is returned when an operation is not legal in the current phase.
	ErrInvalidState = errors.New("invalid match state")
	// ErrInvalidQuestion indicates a degenerate question (fewer than two options).
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrIndexesMissing means answer indexes were read before they were created.
	ErrIndexesMissing = errors.New("answer indexes missing")
)

var (
	ErrMatchNotFound    = fmt.Errorf("match %w", ErrNotFound)
	ErrGameNotFound     = fmt.Errorf("game %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrOptionNotFound   = fmt.Errorf("option %w", ErrNotFound)

	ErrNotTeacher  = fmt.Errorf("%w: caller is not a teacher", ErrForbidden)
	ErrNotStudent  = fmt.Errorf("%w: caller is not a student", ErrForbidden)
	ErrNotOwner    = fmt.Errorf("%w: match belongs to another teacher", ErrForbidden)
	ErrNotEntitled = fmt.Errorf("%w: student is not entitled to play this match", ErrForbidden)
	ErrNotPlayer   = fmt.Errorf("%w: student has not joined this match", ErrForbidden)
	ErrMatchPlayed = fmt.Errorf("%w: match already has answers", ErrForbidden)

	ErrNotPlaying    = fmt.Errorf("%w: match is paused", ErrInvalidState)
	ErrNotAnswering  = fmt.Errorf("%w: answers are not open", ErrInvalidState)
	ErrWrongQuestion = fmt.Errorf("%w: question is not the current one", ErrInvalidState)
	ErrMatchEnded    = fmt.Errorf("%w: match has ended", ErrInvalidState)
	ErrStaleRequest  = fmt.Errorf("%w: match moved on", ErrInvalidState)
)

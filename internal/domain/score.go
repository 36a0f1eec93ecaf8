package domain

import "fmt"

// ScoreQuestion scores a unique choice question: +1 when the selected option is
// correct, -1/(numOptions-1) when it is wrong and 0 when left blank.
func ScoreQuestion(numOptions int, answered, correct bool) (float64, error) {
	if numOptions < 2 {
		return 0, fmt.Errorf("%w: %d options", ErrInvalidQuestion, numOptions)
	}
	switch {
	case !answered:
		return 0, nil
	case correct:
		return 1, nil
	default:
		return -1 / float64(numOptions-1), nil
	}
}

// QuestionBounds returns the lowest and highest score a question can give.
func QuestionBounds(numOptions int) (lo, hi float64, err error) {
	if numOptions < 2 {
		return 0, 0, fmt.Errorf("%w: %d options", ErrInvalidQuestion, numOptions)
	}
	return -1 / float64(numOptions-1), 1, nil
}

// ScoreBounds sums the bounds of every question of a match.
func ScoreBounds(game Game, seq Sequence) (lo, hi float64, err error) {
	for _, ix := range seq {
		q, ok := game.Question(ix.QstInd)
		if !ok {
			return 0, 0, fmt.Errorf("question %d: %w", ix.QstInd, ErrQuestionNotFound)
		}
		qmin, qmax, err := QuestionBounds(len(q.Options))
		if err != nil {
			return 0, 0, fmt.Errorf("question %d: %w", ix.QstInd, err)
		}
		lo += qmin
		hi += qmax
	}
	return lo, hi, nil
}

// ClampMaxGrade keeps a configured maximum grade non negative.
func ClampMaxGrade(maxGrade float64) float64 {
	if maxGrade < 0 {
		return 0
	}
	return maxGrade
}

// Grade rescales score linearly from [minScore, maxScore] to [0, maxGrade].
// A degenerate range gives 0.
func Grade(score, minScore, maxScore, maxGrade float64) float64 {
	maxGrade = ClampMaxGrade(maxGrade)
	if maxScore <= minScore {
		return 0
	}
	grade := (score - minScore) / (maxScore - minScore) * maxGrade
	switch {
	case grade < 0:
		return 0
	case grade > maxGrade:
		return maxGrade
	default:
		return grade
	}
}

package services

import (
	"github.com/gtf-training/survey-service/internal/models"
)

// ScoreResult is the outcome of scoring one answer. IsCorrect stays nil for
// open answers, which are never auto-scored.
type ScoreResult struct {
	PointsEarned int
	IsCorrect    *bool
}

// ScoreAnswer scores a submitted answer against its question. Pure function:
// the caller has already verified the selected choices belong to the question.
//
// Single choice: correct iff exactly one choice was submitted and it is the
// unique correct choice. Multiple choice: correct iff the submitted set
// equals the correct set exactly, no partial credit.
func ScoreAnswer(question *models.Question, selectedChoiceIDs []uint) ScoreResult {
	switch question.Type {
	case models.OpenAnswer:
		return ScoreResult{PointsEarned: 0, IsCorrect: nil}

	case models.SingleChoice:
		correct := question.CorrectChoiceIDs()
		ok := len(selectedChoiceIDs) == 1 && len(correct) == 1 && selectedChoiceIDs[0] == correct[0]
		return scoreForCorrectness(question, ok)

	case models.MultipleChoice:
		ok := sameIDSet(selectedChoiceIDs, question.CorrectChoiceIDs())
		return scoreForCorrectness(question, ok)
	}

	incorrect := false
	return ScoreResult{PointsEarned: 0, IsCorrect: &incorrect}
}

func scoreForCorrectness(question *models.Question, correct bool) ScoreResult {
	result := ScoreResult{IsCorrect: &correct}
	if correct {
		result.PointsEarned = question.Points
	}
	return result
}

func sameIDSet(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uint]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	if len(set) != len(b) {
		return false
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

package services

import (
	"math/rand"

	"github.com/gtf-training/survey-service/internal/models"
)

// QuestionSelector assembles the fixed question list for a new session:
// domain filtering with unfiltered fallback, weighted category split,
// uniform sampling without replacement.
//
// The random source is injected so selection is deterministic under test.
type QuestionSelector struct {
	rng *rand.Rand
}

func NewQuestionSelector(rng *rand.Rand) *QuestionSelector {
	return &QuestionSelector{rng: rng}
}

// Select picks min(requested, available) questions from the active pool.
// Questions tagged for another work domain are excluded; if the domain filter
// leaves nothing, the unfiltered pool is used instead.
//
// The result is ordered professional block first, then safety block. Order
// within the session is frozen by the caller.
func (s *QuestionSelector) Select(pool []models.Question, survey *models.Survey, domain models.WorkDomain, requested int) ([]models.Question, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyQuestionPool
	}

	candidates := make([]models.Question, 0, len(pool))
	for _, q := range pool {
		if q.AppliesTo(domain) {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		// Domain filter emptied the pool: availability wins over strictness.
		candidates = pool
	}

	if requested > len(candidates) {
		requested = len(candidates)
	}
	if requested <= 0 {
		return nil, ErrEmptyQuestionPool
	}

	var professional, safety []models.Question
	for _, q := range candidates {
		if q.Category == models.CategoryProfessional {
			professional = append(professional, q)
		} else {
			safety = append(safety, q)
		}
	}

	professionalTarget := requested * survey.ProfessionalWeight / 100
	safetyTarget := requested - professionalTarget

	selectedProfessional := s.sample(professional, professionalTarget)
	selectedSafety := s.sample(safety, safetyTarget)

	// Top up from whatever was not selected when a partition ran short.
	short := requested - len(selectedProfessional) - len(selectedSafety)
	if short > 0 {
		picked := make(map[uint]bool, len(selectedProfessional)+len(selectedSafety))
		for _, q := range selectedProfessional {
			picked[q.ID] = true
		}
		for _, q := range selectedSafety {
			picked[q.ID] = true
		}

		var remaining []models.Question
		for _, q := range candidates {
			if !picked[q.ID] {
				remaining = append(remaining, q)
			}
		}

		for _, q := range s.sample(remaining, short) {
			if q.Category == models.CategoryProfessional {
				selectedProfessional = append(selectedProfessional, q)
			} else {
				selectedSafety = append(selectedSafety, q)
			}
		}
	}

	result := make([]models.Question, 0, len(selectedProfessional)+len(selectedSafety))
	result = append(result, selectedProfessional...)
	result = append(result, selectedSafety...)
	return result, nil
}

// sample draws up to n elements uniformly without replacement.
func (s *QuestionSelector) sample(pool []models.Question, n int) []models.Question {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	if n > len(pool) {
		n = len(pool)
	}

	perm := s.rng.Perm(len(pool))
	out := make([]models.Question, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, pool[idx])
	}
	return out
}

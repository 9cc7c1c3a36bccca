package services

import (
	"context"
	"fmt"

	"github.com/gtf-training/survey-service/internal/events"
	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
)

// ===== EXPIRY =====

// expireSession persists the expired transition and rolls the history status.
func (s *sessionService) expireSession(ctx context.Context, txRepo repositories.Repository, session *models.SurveySession) error {
	session.Status = models.SessionExpired
	if err := txRepo.Session().Update(ctx, nil, session); err != nil {
		return fmt.Errorf("failed to persist expiry: %w", err)
	}
	if err := s.setHistoryStatus(ctx, txRepo, session.UserID, session.SurveyID, models.HistoryExpired); err != nil {
		return err
	}

	s.logger.Info("Session expired",
		"session_id", session.ID,
		"user_id", session.UserID,
		"survey_id", session.SurveyID)
	return nil
}

// expireAndPersist runs the expiry transition in its own transaction, for
// read paths that observe an overdue session.
func (s *sessionService) expireAndPersist(ctx context.Context, session *models.SurveySession) error {
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return s.expireSession(ctx, txRepo, session)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.NewEvent(events.EventSessionExpired, events.SessionLifecycleEvent{
		SessionID:     session.ID.String(),
		UserID:        session.UserID,
		SurveyID:      session.SurveyID,
		AttemptNumber: session.AttemptNumber,
		Status:        string(session.Status),
	}))
	return nil
}

// ===== ANSWERS =====

// resolveChoices maps submitted choice ids onto the question's own choices,
// rejecting any id that belongs elsewhere.
func resolveChoices(question *models.Question, selectedIDs []uint) ([]models.Choice, error) {
	if len(selectedIDs) == 0 {
		return nil, nil
	}

	byID := make(map[uint]models.Choice, len(question.Choices))
	for _, c := range question.Choices {
		byID[c.ID] = c
	}

	choices := make([]models.Choice, 0, len(selectedIDs))
	for _, id := range selectedIDs {
		choice, ok := byID[id]
		if !ok {
			return nil, ErrInvalidChoice
		}
		choices = append(choices, choice)
	}
	return choices, nil
}

// upsertAnswer writes or replaces the answer for one session question.
// Resubmission is last-writer-wins with the score recomputed fresh.
func (s *sessionService) upsertAnswer(ctx context.Context, txRepo repositories.Repository, session *models.SurveySession, question *models.Question, req *SubmitAnswerRequest, choices []models.Choice, result ScoreResult) error {
	textAnswer := ""
	if req.TextAnswer != nil {
		textAnswer = *req.TextAnswer
	}

	existing, err := txRepo.Answer().GetBySessionAndQuestion(ctx, nil, session.ID, question.ID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return fmt.Errorf("failed to look up answer: %w", err)
	}

	if existing == nil {
		answer := &models.Answer{
			SessionID:    session.ID,
			QuestionID:   question.ID,
			TextAnswer:   textAnswer,
			IsCorrect:    result.IsCorrect,
			PointsEarned: result.PointsEarned,
			AnsweredAt:   s.now(),
		}
		if err := txRepo.Answer().Create(ctx, nil, answer); err != nil {
			return err
		}
		if len(choices) > 0 {
			if err := txRepo.Answer().ReplaceChoices(ctx, nil, answer, choices); err != nil {
				return err
			}
		}
		return nil
	}

	existing.TextAnswer = textAnswer
	existing.IsCorrect = result.IsCorrect
	existing.PointsEarned = result.PointsEarned
	existing.AnsweredAt = s.now()
	if err := txRepo.Answer().Update(ctx, nil, existing); err != nil {
		return err
	}
	return txRepo.Answer().ReplaceChoices(ctx, nil, existing, choices)
}

// ===== COMPLETION =====

// completeSession aggregates the score and updates the rollup, all inside
// the caller's transaction. Unanswered questions contribute zero earned
// points but their full weight to the total.
func (s *sessionService) completeSession(ctx context.Context, txRepo repositories.Repository, session *models.SurveySession, questions []models.SessionQuestion) error {
	totalPoints := 0
	earned := 0
	for _, sq := range questions {
		totalPoints += sq.Question.Points
		if sq.IsAnswered {
			earned += sq.PointsEarned
		}
	}

	survey, err := txRepo.Survey().GetByID(ctx, nil, session.SurveyID)
	if err != nil {
		return fmt.Errorf("failed to get survey for scoring: %w", err)
	}

	session.Status = models.SessionCompleted
	session.CompletedAt = timePtr(s.now())
	session.Score = intPtr(earned)
	session.TotalPoints = intPtr(totalPoints)

	if totalPoints > 0 {
		percentage := float64(earned) / float64(totalPoints) * 100
		session.Percentage = float64Ptr(percentage)
		session.IsPassed = boolPtr(percentage >= float64(survey.PassingScore))
	}

	if err := txRepo.Session().Update(ctx, nil, session); err != nil {
		return fmt.Errorf("failed to persist completion: %w", err)
	}

	return s.updateHistoryOnCompletion(ctx, txRepo, session)
}

// ===== HISTORY ROLLUP =====

// touchHistoryOnStart upserts the per-user rollup when an attempt begins.
func (s *sessionService) touchHistoryOnStart(ctx context.Context, txRepo repositories.Repository, userID string, surveyID uint) error {
	history, err := txRepo.History().GetByUserAndSurvey(ctx, nil, userID, surveyID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return fmt.Errorf("failed to get history: %w", err)
	}

	now := s.now()
	if history == nil {
		history = &models.UserSurveyHistory{
			UserID:        userID,
			SurveyID:      surveyID,
			TotalAttempts: 1,
			LastAttemptAt: &now,
			CurrentStatus: models.HistoryInProgress,
			CanContinue:   true,
		}
		return txRepo.History().Create(ctx, nil, history)
	}

	history.TotalAttempts++
	history.LastAttemptAt = &now
	history.CurrentStatus = models.HistoryInProgress
	return txRepo.History().Update(ctx, nil, history)
}

// updateHistoryOnCompletion applies best-score and sticky-pass semantics.
func (s *sessionService) updateHistoryOnCompletion(ctx context.Context, txRepo repositories.Repository, session *models.SurveySession) error {
	history, err := txRepo.History().GetByUserAndSurvey(ctx, nil, session.UserID, session.SurveyID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// Session without a start rollup should not happen, but the
			// rollup is recomputable so create it rather than fail.
			history = &models.UserSurveyHistory{
				UserID:        session.UserID,
				SurveyID:      session.SurveyID,
				TotalAttempts: 1,
				CanContinue:   true,
			}
			if err := txRepo.History().Create(ctx, nil, history); err != nil {
				return err
			}
		} else {
			return fmt.Errorf("failed to get history: %w", err)
		}
	}

	history.CurrentStatus = models.HistoryCompleted

	// Best score only moves on strict improvement; first completion always sets it.
	if session.Score != nil {
		if history.BestScore == nil || *session.Score > *history.BestScore {
			history.BestScore = session.Score
			history.BestPercentage = session.Percentage
		}
	}

	// Passing is sticky: a later failing attempt never clears it.
	if session.IsPassed != nil && *session.IsPassed {
		history.IsPassed = true
	}

	return txRepo.History().Update(ctx, nil, history)
}

// setHistoryStatus updates only the rollup's current status.
func (s *sessionService) setHistoryStatus(ctx context.Context, txRepo repositories.Repository, userID string, surveyID uint, status models.HistoryStatus) error {
	history, err := txRepo.History().GetByUserAndSurvey(ctx, nil, userID, surveyID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to get history: %w", err)
	}
	history.CurrentStatus = status
	return txRepo.History().Update(ctx, nil, history)
}

// ===== RESPONSES =====

func (s *sessionService) toSessionResponse(session *models.SurveySession) *SessionResponse {
	resp := &SessionResponse{
		SurveySession:  session,
		TotalQuestions: len(session.SessionQuestions),
	}

	if session.Status.IsActive() {
		remaining := int(session.ExpiresAt.Sub(s.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		resp.TimeRemainingSeconds = remaining
	}

	lang := session.Language
	for _, sq := range session.SessionQuestions {
		q := QuestionForSession{
			QuestionID: sq.QuestionID,
			Order:      sq.Order,
			Type:       sq.Question.Type,
			Category:   sq.Question.Category,
			Text:       sq.Question.Text(lang),
			Points:     sq.Question.Points,
			IsAnswered: sq.IsAnswered,
		}
		for _, c := range sq.Question.Choices {
			q.Choices = append(q.Choices, ChoiceForSession{
				ID:    c.ID,
				Text:  c.Text(lang),
				Order: c.Order,
			})
		}
		if sq.IsAnswered {
			resp.AnsweredCount++
		}
		resp.Questions = append(resp.Questions, q)
	}

	return resp
}

func (s *sessionService) toResultResponse(session *models.SurveySession) *SessionResultResponse {
	result := &SessionResultResponse{
		SessionID:        session.ID,
		SurveyID:         session.SurveyID,
		Status:           session.Status,
		FlaggedForReview: session.FlaggedForReview,
		CompletedAt:      session.CompletedAt,
	}
	if session.Score != nil {
		result.Score = *session.Score
	}
	if session.TotalPoints != nil {
		result.TotalPoints = *session.TotalPoints
	}
	if session.Percentage != nil {
		result.Percentage = *session.Percentage
	}
	if session.IsPassed != nil {
		result.IsPassed = *session.IsPassed
	}
	return result
}

// ===== EVENTS =====

// publish sends a domain event after commit; failures are logged, never fatal.
func (s *sessionService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", event.Type,
			"error", err)
	}
}

func (s *sessionService) publishCompletion(ctx context.Context, session *models.SurveySession) {
	s.publish(ctx, events.NewEvent(events.EventSessionCompleted, events.SessionLifecycleEvent{
		SessionID:     session.ID.String(),
		UserID:        session.UserID,
		SurveyID:      session.SurveyID,
		AttemptNumber: session.AttemptNumber,
		Status:        string(session.Status),
		Score:         session.Score,
		Percentage:    session.Percentage,
		IsPassed:      session.IsPassed,
	}))
}

package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
)

type historyService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewHistoryService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) HistoryService {
	return &historyService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

func (s *historyService) GetMyHistory(ctx context.Context, userID string) ([]*HistoryResponse, error) {
	histories, err := s.repo.History().ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}

	out := make([]*HistoryResponse, len(histories))
	for i := range histories {
		out[i] = &HistoryResponse{UserSurveyHistory: &histories[i]}
	}
	return out, nil
}

func (s *historyService) GetUserSurveyHistory(ctx context.Context, userID string, surveyID uint) (*HistoryResponse, error) {
	history, err := s.repo.History().GetByUserAndSurvey(ctx, nil, userID, surveyID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return &HistoryResponse{UserSurveyHistory: history}, nil
}

// Recompute rebuilds the rollup for one (user, survey) pair from its sessions.
// The rollup is derived data, so a drifted row can always be restored.
func (s *historyService) Recompute(ctx context.Context, userID string, surveyID uint, moderatorID string) (*HistoryResponse, error) {
	isModerator, err := s.repo.User().HasRole(ctx, moderatorID, models.RoleModerator)
	if err != nil {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}
	if !isModerator {
		return nil, NewPermissionError(moderatorID, "history", "recompute", "moderator role required")
	}

	s.logger.Info("Recomputing history rollup",
		"user_id", userID,
		"survey_id", surveyID,
		"moderator_id", moderatorID)

	var history *models.UserSurveyHistory
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		sessions, _, err := txRepo.Session().List(ctx, nil, repositories.SessionFilters{
			UserID:   userID,
			SurveyID: &surveyID,
		})
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		rebuilt := models.UserSurveyHistory{
			UserID:        userID,
			SurveyID:      surveyID,
			CurrentStatus: models.HistoryNotStarted,
			CanContinue:   true,
		}

		var latest *models.SurveySession
		for i := range sessions {
			sess := &sessions[i]
			rebuilt.TotalAttempts++
			if latest == nil || sess.AttemptNumber > latest.AttemptNumber {
				latest = sess
			}
			if rebuilt.LastAttemptAt == nil || sess.StartedAt.After(*rebuilt.LastAttemptAt) {
				startedAt := sess.StartedAt
				rebuilt.LastAttemptAt = &startedAt
			}
			if sess.Status == models.SessionCompleted && sess.Score != nil {
				if rebuilt.BestScore == nil || *sess.Score > *rebuilt.BestScore {
					rebuilt.BestScore = sess.Score
					rebuilt.BestPercentage = sess.Percentage
				}
			}
			if sess.IsPassed != nil && *sess.IsPassed {
				rebuilt.IsPassed = true
			}
		}
		if latest != nil {
			switch latest.Status {
			case models.SessionStarted, models.SessionInProgress:
				rebuilt.CurrentStatus = models.HistoryInProgress
			case models.SessionCompleted:
				rebuilt.CurrentStatus = models.HistoryCompleted
			case models.SessionCancelled:
				rebuilt.CurrentStatus = models.HistoryCancelled
			case models.SessionExpired:
				rebuilt.CurrentStatus = models.HistoryExpired
			}
		}

		existing, err := txRepo.History().GetByUserAndSurvey(ctx, nil, userID, surveyID)
		if err != nil {
			if !repositories.IsNotFoundError(err) {
				return fmt.Errorf("failed to get history: %w", err)
			}
			history = &rebuilt
			return txRepo.History().Create(ctx, nil, history)
		}

		existing.TotalAttempts = rebuilt.TotalAttempts
		existing.BestScore = rebuilt.BestScore
		existing.BestPercentage = rebuilt.BestPercentage
		existing.LastAttemptAt = rebuilt.LastAttemptAt
		existing.IsPassed = rebuilt.IsPassed
		existing.CurrentStatus = rebuilt.CurrentStatus
		history = existing
		return txRepo.History().Update(ctx, nil, existing)
	})
	if err != nil {
		return nil, err
	}

	return &HistoryResponse{UserSurveyHistory: history}, nil
}

// GetProgressReport aggregates the user's standing across all active surveys.
func (s *historyService) GetProgressReport(ctx context.Context, userID string) (*ProgressReport, error) {
	active := true
	_, total, err := s.repo.Survey().List(ctx, nil, repositories.SurveyFilters{IsActive: &active})
	if err != nil {
		return nil, fmt.Errorf("failed to count surveys: %w", err)
	}

	histories, err := s.repo.History().ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}

	report := &ProgressReport{
		UserID:       userID,
		TotalSurveys: int(total),
	}
	for i := range histories {
		h := &histories[i]
		report.Histories = append(report.Histories, &HistoryResponse{UserSurveyHistory: h})
		switch h.CurrentStatus {
		case models.HistoryCompleted:
			report.CompletedCount++
		case models.HistoryInProgress:
			report.InProgress++
		}
		if h.IsPassed {
			report.PassedCount++
		}
	}

	return report, nil
}

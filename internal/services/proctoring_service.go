package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/events"
	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/validator"
)

// DefaultViolationThreshold is the violation count at which a session is
// flagged for moderator review.
const DefaultViolationThreshold = 3

type proctoringService struct {
	repo               repositories.Repository
	db                 *gorm.DB
	logger             *slog.Logger
	validator          *validator.Validator
	publisher          events.EventPublisher
	violationThreshold int
	now                func() time.Time
}

func NewProctoringService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, violationThreshold int) ProctoringService {
	if violationThreshold <= 0 {
		violationThreshold = DefaultViolationThreshold
	}
	return &proctoringService{
		repo:               repo,
		db:                 db,
		logger:             logger,
		validator:          validator,
		publisher:          publisher,
		violationThreshold: violationThreshold,
		now:                time.Now,
	}
}

// ===== HEARTBEATS AND VIOLATIONS =====

func (s *proctoringService) Heartbeat(ctx context.Context, sessionID uuid.UUID, req *HeartbeatRequest, userID string) (*HeartbeatResponse, error) {
	if errs := s.validator.Validate(req); errs.HasErrors() {
		return nil, NewValidationError("validation failed", errs)
	}

	var (
		response *HeartbeatResponse
		flagged  *models.SurveySession
	)

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		session, err := txRepo.Session().GetByID(ctx, nil, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to get session: %w", err)
		}

		if session.UserID != userID {
			return NewPermissionError(userID, "session", "heartbeat", "not session owner")
		}
		if !session.ProctoringEnabled {
			return ErrProctoringDisabled
		}
		if !session.Status.IsActive() {
			return ErrSessionNotActive
		}

		verification := &models.FaceVerification{
			SessionID:   sessionID,
			CapturedAt:  s.now(),
			IsViolation: req.IsViolation,
		}
		if req.IsViolation {
			verification.ViolationType = req.ViolationType
			verification.Evidence = req.Evidence
		}
		if len(req.DetectionMetrics) > 0 {
			metrics, err := json.Marshal(req.DetectionMetrics)
			if err != nil {
				return fmt.Errorf("failed to encode detection metrics: %w", err)
			}
			verification.DetectionMetrics = datatypes.JSON(metrics)
		}

		if err := txRepo.Proctoring().CreateVerification(ctx, nil, verification); err != nil {
			return err
		}

		if req.IsViolation {
			session.ViolationsCount++
			// Flagging is monotonic: the flag never drops while violations accrue.
			if session.ViolationsCount >= s.violationThreshold && !session.FlaggedForReview {
				session.FlaggedForReview = true
				flagged = session
			}
			if err := txRepo.Session().Update(ctx, nil, session); err != nil {
				return fmt.Errorf("failed to update violation state: %w", err)
			}

			s.logger.Warn("Proctoring violation recorded",
				"session_id", sessionID,
				"user_id", userID,
				"violation_type", req.ViolationType,
				"violations_count", session.ViolationsCount)
		}

		response = &HeartbeatResponse{
			SessionID:        sessionID,
			ViolationsCount:  session.ViolationsCount,
			FlaggedForReview: session.FlaggedForReview,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if flagged != nil {
		lastViolation := ""
		if req.ViolationType != nil {
			lastViolation = string(*req.ViolationType)
		}
		s.publish(ctx, events.NewEvent(events.EventSessionFlagged, events.SessionFlaggedEvent{
			SessionID:       flagged.ID.String(),
			UserID:          flagged.UserID,
			SurveyID:        flagged.SurveyID,
			ViolationsCount: flagged.ViolationsCount,
			LastViolation:   lastViolation,
		}))
	}

	return response, nil
}

func (s *proctoringService) ListVerifications(ctx context.Context, sessionID uuid.UUID, userID string) ([]*models.FaceVerification, error) {
	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.UserID != userID {
		isModerator, err := s.repo.User().HasRole(ctx, userID, models.RoleModerator)
		if err != nil || !isModerator {
			return nil, NewPermissionError(userID, "session", "list_verifications", "moderator role required")
		}
	}

	verifications, err := s.repo.Proctoring().ListVerifications(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}

	out := make([]*models.FaceVerification, len(verifications))
	for i := range verifications {
		out[i] = &verifications[i]
	}
	return out, nil
}

// ===== MODERATION =====

func (s *proctoringService) Review(ctx context.Context, sessionID uuid.UUID, req *ReviewRequest, reviewerID string) (*ReviewResponse, error) {
	s.logger.Info("Reviewing session",
		"session_id", sessionID,
		"reviewer_id", reviewerID,
		"decision", req.Decision)

	isModerator, err := s.repo.User().HasRole(ctx, reviewerID, models.RoleModerator)
	if err != nil {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}
	if !isModerator {
		return nil, NewPermissionError(reviewerID, "session", "review", "moderator role required")
	}

	var (
		review   *models.ProctorReview
		reviewed *models.SurveySession
	)

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		session, err := txRepo.Session().GetByID(ctx, nil, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to get session: %w", err)
		}

		if errs := s.validator.ValidateReview(req, session); errs.HasErrors() {
			return NewValidationError("invalid review", errs)
		}

		notes := ""
		if req.Notes != nil {
			notes = *req.Notes
		}

		// One review per session; a later decision replaces the earlier one.
		existing, err := txRepo.Proctoring().GetReviewBySession(ctx, nil, sessionID)
		if err != nil && !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to get review: %w", err)
		}
		decidedAt := s.now()
		if existing == nil {
			review = &models.ProctorReview{
				SessionID:  sessionID,
				Decision:   req.Decision,
				Notes:      notes,
				ReviewerID: reviewerID,
				DecidedAt:  decidedAt,
			}
			if err := txRepo.Proctoring().CreateReview(ctx, nil, review); err != nil {
				return err
			}
		} else {
			existing.Decision = req.Decision
			existing.Notes = notes
			existing.ReviewerID = reviewerID
			existing.DecidedAt = decidedAt
			if err := txRepo.Proctoring().UpdateReview(ctx, nil, existing); err != nil {
				return err
			}
			review = existing
		}

		switch req.Decision {
		case models.ReviewApproved:
			// Approval clears the flag; the violation count stays on record.
			session.FlaggedForReview = false
		case models.ReviewRejected:
			// Rejection overrides the computed result.
			session.FlaggedForReview = false
			session.IsPassed = boolPtr(false)
		case models.ReviewFlagged:
			session.FlaggedForReview = true
		}
		if err := txRepo.Session().Update(ctx, nil, session); err != nil {
			return fmt.Errorf("failed to apply review to session: %w", err)
		}
		reviewed = session

		if req.Decision == models.ReviewRejected {
			// A rejected result must not keep the rollup passed unless an
			// earlier attempt passed on its own.
			return s.reconcileHistoryPass(ctx, txRepo, session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventSessionReviewed, events.SessionReviewedEvent{
		SessionID:  sessionID.String(),
		UserID:     reviewed.UserID,
		SurveyID:   reviewed.SurveyID,
		Decision:   string(req.Decision),
		ReviewerID: reviewerID,
	}))

	return &ReviewResponse{
		ProctorReview: review,
		SessionResult: s.resultOf(reviewed),
	}, nil
}

func (s *proctoringService) GetReview(ctx context.Context, sessionID uuid.UUID, userID string) (*models.ProctorReview, error) {
	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.UserID != userID {
		isModerator, err := s.repo.User().HasRole(ctx, userID, models.RoleModerator)
		if err != nil || !isModerator {
			return nil, NewPermissionError(userID, "review", "read", "moderator role required")
		}
	}

	review, err := s.repo.Proctoring().GetReviewBySession(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return review, nil
}

func (s *proctoringService) GrantRetake(ctx context.Context, sessionID uuid.UUID, req *GrantRetakeRequest, moderatorID string) error {
	s.logger.Info("Granting retake",
		"session_id", sessionID,
		"moderator_id", moderatorID)

	if errs := s.validator.Validate(req); errs.HasErrors() {
		return NewValidationError("validation failed", errs)
	}

	isModerator, err := s.repo.User().HasRole(ctx, moderatorID, models.RoleModerator)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !isModerator {
		return NewPermissionError(moderatorID, "session", "grant_retake", "moderator role required")
	}

	var granted *models.SurveySession
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		session, err := txRepo.Session().GetByID(ctx, nil, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to get session: %w", err)
		}

		// The grant always lands on the user's latest attempt so the start
		// check sees it.
		latest, err := txRepo.Session().GetLatest(ctx, nil, session.UserID, session.SurveyID)
		if err != nil {
			return fmt.Errorf("failed to get latest session: %w", err)
		}

		latest.CanRetake = true
		latest.RetakeReason = req.Reason
		latest.RetakeGrantedBy = &moderatorID
		if err := txRepo.Session().Update(ctx, nil, latest); err != nil {
			return fmt.Errorf("failed to grant retake: %w", err)
		}
		granted = latest
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.NewEvent(events.EventRetakeGranted, events.RetakeGrantedEvent{
		SessionID: granted.ID.String(),
		UserID:    granted.UserID,
		SurveyID:  granted.SurveyID,
		Reason:    req.Reason,
		GrantedBy: moderatorID,
	}))

	return nil
}

func (s *proctoringService) ListFlagged(ctx context.Context, filters repositories.SessionFilters, userID string) (*SessionListResponse, error) {
	isModerator, err := s.repo.User().HasRole(ctx, userID, models.RoleModerator)
	if err != nil {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}
	if !isModerator {
		return nil, NewPermissionError(userID, "sessions", "list_flagged", "moderator role required")
	}

	filters.FlaggedForReview = boolPtr(true)
	sessions, total, err := s.repo.Session().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged sessions: %w", err)
	}

	out := make([]*models.SurveySession, len(sessions))
	for i := range sessions {
		out[i] = &sessions[i]
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}

	return &SessionListResponse{
		Sessions: out,
		Total:    total,
		Page:     page,
		Size:     len(out),
	}, nil
}

// ===== HELPERS =====

// reconcileHistoryPass recomputes the sticky pass flag from the other
// completed attempts after a rejection override.
func (s *proctoringService) reconcileHistoryPass(ctx context.Context, txRepo repositories.Repository, rejected *models.SurveySession) error {
	history, err := txRepo.History().GetByUserAndSurvey(ctx, nil, rejected.UserID, rejected.SurveyID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to get history: %w", err)
	}

	surveyID := rejected.SurveyID
	sessions, _, err := txRepo.Session().List(ctx, nil, repositories.SessionFilters{
		UserID:   rejected.UserID,
		SurveyID: &surveyID,
	})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	passed := false
	for i := range sessions {
		sess := &sessions[i]
		if sess.ID == rejected.ID {
			continue
		}
		if sess.IsPassed != nil && *sess.IsPassed {
			passed = true
			break
		}
	}

	history.IsPassed = passed
	return txRepo.History().Update(ctx, nil, history)
}

func (s *proctoringService) resultOf(session *models.SurveySession) *SessionResultResponse {
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

func (s *proctoringService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", event.Type,
			"error", err)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/events"
	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/validator"
)

type sessionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	selector  *QuestionSelector
	now       func() time.Time
}

func NewSessionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, rng *rand.Rand) SessionService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &sessionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		selector:  NewQuestionSelector(rng),
		now:       time.Now,
	}
}

// ===== CORE SESSION OPERATIONS =====

func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest, userID string) (*SessionResponse, error) {
	s.logger.Info("Starting survey session",
		"survey_id", req.SurveyID,
		"user_id", userID)

	if errs := s.validator.Validate(req); errs.HasErrors() {
		return nil, NewValidationError("validation failed", errs)
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve user profile: %w", err)
	}

	var session *models.SurveySession
	start := func() error {
		return s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
			session = nil

			survey, err := txRepo.Survey().GetByID(ctx, nil, req.SurveyID)
			if err != nil {
				if repositories.IsNotFoundError(err) {
					return ErrSurveyNotFound
				}
				return fmt.Errorf("failed to get survey: %w", err)
			}
			if !survey.IsActive {
				return ErrSurveyInactive
			}

			// Serialize concurrent starts on the active-session row.
			active, err := txRepo.Session().GetActiveForUpdate(ctx, nil, userID, survey.ID)
			if err != nil && !repositories.IsNotFoundError(err) {
				return fmt.Errorf("failed to check active session: %w", err)
			}
			if active != nil {
				if !active.IsExpired(s.now()) {
					return ErrActiveSessionExists
				}
				// Stale active session: persist the expiry before moving on.
				if err := s.expireSession(ctx, txRepo, active); err != nil {
					return err
				}
			}

			latest, err := txRepo.Session().GetLatest(ctx, nil, userID, survey.ID)
			if err != nil && !repositories.IsNotFoundError(err) {
				return fmt.Errorf("failed to get latest session: %w", err)
			}

			attemptCount, err := txRepo.Session().CountByUserAndSurvey(ctx, nil, userID, survey.ID)
			if err != nil {
				return fmt.Errorf("failed to count attempts: %w", err)
			}

			retakeGranted := latest != nil && latest.CanRetake
			if int(attemptCount) >= survey.MaxAttempts && !retakeGranted {
				return ErrMaxAttemptsExceeded
			}

			maxAttempt, err := txRepo.Session().MaxAttemptNumber(ctx, nil, userID, survey.ID)
			if err != nil {
				return fmt.Errorf("failed to get max attempt number: %w", err)
			}

			pool, err := txRepo.Question().ListActive(ctx, nil, repositories.QuestionFilters{SurveyID: survey.ID})
			if err != nil {
				return fmt.Errorf("failed to load question pool: %w", err)
			}

			requested := survey.QuestionCountFor(user.EmployeeLevel)
			if req.RequestedCount != nil {
				requested = *req.RequestedCount
			}
			selected, err := s.selector.Select(pool, survey, user.WorkDomain, requested)
			if err != nil {
				return err
			}

			language := user.Language
			if req.Language != nil {
				language = *req.Language
			}

			startedAt := s.now()
			session = &models.SurveySession{
				ID:                uuid.New(),
				UserID:            userID,
				SurveyID:          survey.ID,
				Status:            models.SessionInProgress,
				AttemptNumber:     maxAttempt + 1,
				StartedAt:         startedAt,
				ExpiresAt:         startedAt.Add(time.Duration(survey.TimeLimitMinutes) * time.Minute),
				Language:          language,
				ProctoringEnabled: survey.ProctoringRequired,
				ReferenceImage:    req.ReferenceImage,
			}
			if err := txRepo.Session().Create(ctx, nil, session); err != nil {
				return err
			}

			sessionQuestions := make([]models.SessionQuestion, len(selected))
			for i, q := range selected {
				sessionQuestions[i] = models.SessionQuestion{
					SessionID:  session.ID,
					QuestionID: q.ID,
					Order:      i + 1,
				}
			}
			if err := txRepo.Session().CreateSessionQuestions(ctx, nil, sessionQuestions); err != nil {
				return fmt.Errorf("failed to materialize session questions: %w", err)
			}

			// Consume the retake grant so it covers exactly one extra attempt.
			if retakeGranted && int(attemptCount) >= survey.MaxAttempts {
				latest.CanRetake = false
				if err := txRepo.Session().Update(ctx, nil, latest); err != nil {
					return fmt.Errorf("failed to consume retake grant: %w", err)
				}
			}

			return s.touchHistoryOnStart(ctx, txRepo, userID, survey.ID)
		})
	}

	err = start()
	if errors.Is(err, repositories.ErrDuplicateEntry) {
		// Attempt-number race with a concurrent start: retry once.
		s.logger.Warn("Attempt number conflict, retrying session start",
			"survey_id", req.SurveyID,
			"user_id", userID)
		err = start()
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Survey session started",
		"session_id", session.ID,
		"survey_id", req.SurveyID,
		"user_id", userID,
		"attempt_number", session.AttemptNumber)

	s.publish(ctx, events.NewEvent(events.EventSessionStarted, events.SessionLifecycleEvent{
		SessionID:     session.ID.String(),
		UserID:        userID,
		SurveyID:      session.SurveyID,
		AttemptNumber: session.AttemptNumber,
		Status:        string(session.Status),
	}))

	return s.GetByID(ctx, session.ID, userID)
}

func (s *sessionService) GetByID(ctx context.Context, sessionID uuid.UUID, userID string) (*SessionResponse, error) {
	session, err := s.repo.Session().GetByIDWithDetails(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.UserID != userID {
		isModerator, err := s.repo.User().HasRole(ctx, userID, models.RoleModerator)
		if err != nil || !isModerator {
			return nil, NewPermissionError(userID, "session", "read", "not session owner")
		}
	}

	// Lazy expiry: persist the transition before reporting state.
	if session.IsExpired(s.now()) && session.Status != models.SessionExpired {
		if err := s.expireAndPersist(ctx, session); err != nil {
			return nil, err
		}
	}

	return s.toSessionResponse(session), nil
}

func (s *sessionService) GetCurrent(ctx context.Context, surveyID uint, userID string) (*SessionResponse, error) {
	session, err := s.repo.Session().GetActiveForUpdate(ctx, nil, userID, surveyID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get current session: %w", err)
	}

	return s.GetByID(ctx, session.ID, userID)
}

func (s *sessionService) GetProgress(ctx context.Context, sessionID uuid.UUID, userID string) (*SessionProgressResponse, error) {
	resp, err := s.GetByID(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	progress := &SessionProgressResponse{
		SessionID:            resp.ID,
		Status:               resp.Status,
		AnsweredCount:        resp.AnsweredCount,
		TotalQuestions:       resp.TotalQuestions,
		TimeRemainingSeconds: resp.TimeRemainingSeconds,
	}
	for _, q := range resp.Questions {
		if !q.IsAnswered {
			progress.NextQuestionOrder = intPtr(q.Order)
			break
		}
	}
	return progress, nil
}

func (s *sessionService) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, req *SubmitAnswerRequest, userID string) (*AnswerResponse, error) {
	s.logger.Info("Submitting answer",
		"session_id", sessionID,
		"question_id", req.QuestionID,
		"user_id", userID)

	if errs := s.validator.Validate(req); errs.HasErrors() {
		return nil, NewValidationError("validation failed", errs)
	}

	var (
		response  *AnswerResponse
		completed *models.SurveySession
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
			return NewPermissionError(userID, "session", "submit_answer", "not session owner")
		}
		if !session.Status.IsActive() {
			return ErrSessionNotActive
		}
		if session.IsExpired(s.now()) {
			// Mandatory transition before the failure report, no answer recorded.
			if err := s.expireSession(ctx, txRepo, session); err != nil {
				return err
			}
			return ErrSessionExpired
		}

		sq, err := txRepo.Session().GetSessionQuestion(ctx, nil, sessionID, req.QuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuestionNotInSession
			}
			return fmt.Errorf("failed to get session question: %w", err)
		}

		question, err := txRepo.Question().GetByID(ctx, nil, req.QuestionID)
		if err != nil {
			return fmt.Errorf("failed to get question: %w", err)
		}

		if errs := s.validator.ValidateAnswerSubmit(req, question); errs.HasErrors() {
			return NewValidationError("invalid answer payload", errs)
		}

		choices, err := resolveChoices(question, req.SelectedChoiceIDs)
		if err != nil {
			return err
		}

		result := ScoreAnswer(question, req.SelectedChoiceIDs)

		if err := s.upsertAnswer(ctx, txRepo, session, question, req, choices, result); err != nil {
			return err
		}

		sq.IsAnswered = true
		sq.PointsEarned = result.PointsEarned
		if err := txRepo.Session().UpdateSessionQuestion(ctx, nil, sq); err != nil {
			return err
		}

		questions, err := txRepo.Session().GetSessionQuestions(ctx, nil, sessionID)
		if err != nil {
			return err
		}
		answeredCount := 0
		for _, q := range questions {
			if q.IsAnswered {
				answeredCount++
			}
		}

		response = &AnswerResponse{
			QuestionID:     req.QuestionID,
			AnsweredCount:  answeredCount,
			TotalQuestions: len(questions),
		}

		if req.ForceFinish || answeredCount == len(questions) {
			if err := s.completeSession(ctx, txRepo, session, questions); err != nil {
				return err
			}
			completed = session
			response.Completed = true
			response.Result = s.toResultResponse(session)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed != nil {
		s.publishCompletion(ctx, completed)
	}

	return response, nil
}

func (s *sessionService) Finish(ctx context.Context, sessionID uuid.UUID, userID string) (*SessionResultResponse, error) {
	s.logger.Info("Finishing session", "session_id", sessionID, "user_id", userID)

	var finished *models.SurveySession
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		session, err := txRepo.Session().GetByID(ctx, nil, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to get session: %w", err)
		}

		if session.UserID != userID {
			return NewPermissionError(userID, "session", "finish", "not session owner")
		}
		if !session.Status.IsActive() {
			return ErrSessionNotActive
		}
		if session.IsExpired(s.now()) {
			if err := s.expireSession(ctx, txRepo, session); err != nil {
				return err
			}
			return ErrSessionExpired
		}

		questions, err := txRepo.Session().GetSessionQuestions(ctx, nil, sessionID)
		if err != nil {
			return err
		}

		if err := s.completeSession(ctx, txRepo, session, questions); err != nil {
			return err
		}
		finished = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishCompletion(ctx, finished)

	return s.toResultResponse(finished), nil
}

func (s *sessionService) Cancel(ctx context.Context, sessionID uuid.UUID, userID string) error {
	s.logger.Info("Cancelling session", "session_id", sessionID, "user_id", userID)

	var cancelled *models.SurveySession
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		session, err := txRepo.Session().GetByID(ctx, nil, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to get session: %w", err)
		}

		if session.UserID != userID {
			return NewPermissionError(userID, "session", "cancel", "not session owner")
		}
		if !session.Status.IsActive() {
			return ErrSessionNotActive
		}
		if session.IsExpired(s.now()) {
			if err := s.expireSession(ctx, txRepo, session); err != nil {
				return err
			}
			return ErrSessionExpired
		}

		session.Status = models.SessionCancelled
		if err := txRepo.Session().Update(ctx, nil, session); err != nil {
			return err
		}
		cancelled = session

		return s.setHistoryStatus(ctx, txRepo, session.UserID, session.SurveyID, models.HistoryCancelled)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.NewEvent(events.EventSessionCancelled, events.SessionLifecycleEvent{
		SessionID:     cancelled.ID.String(),
		UserID:        cancelled.UserID,
		SurveyID:      cancelled.SurveyID,
		AttemptNumber: cancelled.AttemptNumber,
		Status:        string(cancelled.Status),
	}))

	return nil
}

func (s *sessionService) List(ctx context.Context, filters repositories.SessionFilters, userID string) (*SessionListResponse, error) {
	isModerator, err := s.repo.User().HasRole(ctx, userID, models.RoleModerator)
	if err != nil {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}
	if !isModerator {
		// Employees only see their own sessions.
		filters.UserID = userID
	}

	sessions, total, err := s.repo.Session().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
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

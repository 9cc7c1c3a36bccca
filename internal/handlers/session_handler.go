package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/services"
	"github.com/gtf-training/survey-service/internal/validator"
)

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	validator      *validator.Validator
}

func NewSessionHandler(sessionService services.SessionService, validator *validator.Validator, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		validator:      validator,
	}
}

// StartSession starts a new survey session
// @Summary Start survey session
// @Description Starts a new timed attempt with a frozen question set
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body services.StartSessionRequest true "Start session data"
// @Success 201 {object} services.SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/start [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.LogRequest(c, "Starting survey session")

	var req services.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession retrieves a session by ID
// @Summary Get session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	session, err := h.sessionService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetCurrentSession retrieves the active session for a survey
// @Summary Get current session
// @Tags sessions
// @Produce json
// @Param survey_id path uint true "Survey ID"
// @Success 200 {object} services.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/current/{survey_id} [get]
func (h *SessionHandler) GetCurrentSession(c *gin.Context) {
	surveyID := h.parseIDParam(c, "survey_id")
	if surveyID == 0 {
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	session, err := h.sessionService.GetCurrent(c.Request.Context(), surveyID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetSessionProgress retrieves answering progress for a session
// @Summary Get session progress
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionProgressResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/progress [get]
func (h *SessionHandler) GetSessionProgress(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	progress, err := h.sessionService.GetProgress(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// SubmitAnswer submits an answer for a question in the session
// @Summary Submit answer
// @Description Scores and stores one answer; completes the session when the last question is answered
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param answer body services.SubmitAnswerRequest true "Answer data"
// @Success 200 {object} services.AnswerResponse
// @Failure 400 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /sessions/{id}/answers [post]
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting answer", "session_id", id)

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	answer, err := h.sessionService.SubmitAnswer(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// FinishSession completes the session early
// @Summary Finish session
// @Description Completes the session, scoring only what was answered
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionResultResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/finish [post]
func (h *SessionHandler) FinishSession(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	h.LogRequest(c, "Finishing session", "session_id", id)

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	result, err := h.sessionService.Finish(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelSession cancels an active session
// @Summary Cancel session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) CancelSession(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	h.LogRequest(c, "Cancelling session", "session_id", id)

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	if err := h.sessionService.Cancel(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Session cancelled successfully",
	})
}

// ListSessions lists sessions with filters (moderator view)
// @Summary List sessions
// @Tags sessions
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Param user_id query string false "User filter"
// @Param survey_id query uint false "Survey filter"
// @Param status query string false "Status filter"
// @Success 200 {object} services.SessionListResponse
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	h.LogRequest(c, "Listing sessions")

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseSessionFilters(c)
	sessions, err := h.sessionService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) parseSessionFilters(c *gin.Context) repositories.SessionFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.SessionFilters{
		UserID: c.Query("user_id"),
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if surveyIDStr := c.Query("survey_id"); surveyIDStr != "" {
		if surveyID, err := strconv.ParseUint(surveyIDStr, 10, 32); err == nil {
			id := uint(surveyID)
			filters.SurveyID = &id
		}
	}

	if status := c.Query("status"); status != "" {
		filters.Statuses = []models.SessionStatus{models.SessionStatus(status)}
	}

	if flaggedStr := c.Query("flagged"); flaggedStr != "" {
		if flagged, err := strconv.ParseBool(flaggedStr); err == nil {
			filters.FlaggedForReview = &flagged
		}
	}

	return filters
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/services"
	"github.com/gtf-training/survey-service/internal/validator"
)

type ProctoringHandler struct {
	BaseHandler
	proctoringService services.ProctoringService
	validator         *validator.Validator
}

func NewProctoringHandler(proctoringService services.ProctoringService, validator *validator.Validator, logger *slog.Logger) *ProctoringHandler {
	return &ProctoringHandler{
		BaseHandler:       NewBaseHandler(logger),
		proctoringService: proctoringService,
		validator:         validator,
	}
}

// Heartbeat records a face-verification capture
// @Summary Record proctoring heartbeat
// @Description Records one capture and escalates when violations cross the threshold
// @Tags proctoring
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param heartbeat body services.HeartbeatRequest true "Capture data"
// @Success 200 {object} services.HeartbeatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/heartbeat [post]
func (h *ProctoringHandler) Heartbeat(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	var req services.HeartbeatRequest
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

	result, err := h.proctoringService.Heartbeat(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListVerifications lists face-verification captures for a session
// @Summary List verifications
// @Tags proctoring
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} models.FaceVerification
// @Router /sessions/{id}/verifications [get]
func (h *ProctoringHandler) ListVerifications(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	verifications, err := h.proctoringService.ListVerifications(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifications)
}

// ReviewSession records a moderator decision on a completed session
// @Summary Review session
// @Description Approves, rejects or flags a completed session. Rejection forces the result to failed.
// @Tags proctoring
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param review body services.ReviewRequest true "Review decision"
// @Success 200 {object} services.ReviewResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /sessions/{id}/review [post]
func (h *ProctoringHandler) ReviewSession(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	h.LogRequest(c, "Reviewing session", "session_id", id)

	var req services.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	reviewerID := h.getUserID(c)
	if reviewerID == "" {
		return
	}

	review, err := h.proctoringService.Review(c.Request.Context(), id, &req, reviewerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

// GetReview retrieves the review decision for a session
// @Summary Get review
// @Tags proctoring
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.ProctorReview
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/review [get]
func (h *ProctoringHandler) GetReview(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	review, err := h.proctoringService.GetReview(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

// GrantRetake allows one extra attempt past the survey limit
// @Summary Grant retake
// @Tags proctoring
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param grant body services.GrantRetakeRequest true "Grant data"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Router /sessions/{id}/grant-retake [post]
func (h *ProctoringHandler) GrantRetake(c *gin.Context) {
	id, ok := h.parseSessionIDParam(c, "id")
	if !ok {
		return
	}

	h.LogRequest(c, "Granting retake", "session_id", id)

	var req services.GrantRetakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	moderatorID := h.getUserID(c)
	if moderatorID == "" {
		return
	}

	if err := h.proctoringService.GrantRetake(c.Request.Context(), id, &req, moderatorID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Retake granted successfully",
	})
}

// ListFlaggedSessions lists sessions flagged for review
// @Summary List flagged sessions
// @Tags proctoring
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Success 200 {object} services.SessionListResponse
// @Router /sessions/flagged [get]
func (h *ProctoringHandler) ListFlaggedSessions(c *gin.Context) {
	h.LogRequest(c, "Listing flagged sessions")

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	sessions, err := h.proctoringService.ListFlagged(c.Request.Context(), repositories.SessionFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gtf-training/survey-service/internal/services"
)

type HistoryHandler struct {
	BaseHandler
	historyService services.HistoryService
}

func NewHistoryHandler(historyService services.HistoryService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		BaseHandler:    NewBaseHandler(logger),
		historyService: historyService,
	}
}

// GetMyHistory lists the caller's per-survey rollups
// @Summary Get my history
// @Tags history
// @Produce json
// @Success 200 {array} services.HistoryResponse
// @Router /history/me [get]
func (h *HistoryHandler) GetMyHistory(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	histories, err := h.historyService.GetMyHistory(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, histories)
}

// GetMySurveyHistory retrieves the caller's rollup for one survey
// @Summary Get my history for a survey
// @Tags history
// @Produce json
// @Param survey_id path uint true "Survey ID"
// @Success 200 {object} services.HistoryResponse
// @Failure 404 {object} ErrorResponse
// @Router /history/me/{survey_id} [get]
func (h *HistoryHandler) GetMySurveyHistory(c *gin.Context) {
	surveyID := h.parseIDParam(c, "survey_id")
	if surveyID == 0 {
		return
	}

	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	history, err := h.historyService.GetUserSurveyHistory(c.Request.Context(), userID, surveyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// GetMyProgress reports completion across all active surveys
// @Summary Get my progress report
// @Tags history
// @Produce json
// @Success 200 {object} services.ProgressReport
// @Router /history/me/progress [get]
func (h *HistoryHandler) GetMyProgress(c *gin.Context) {
	userID := h.getUserID(c)
	if userID == "" {
		return
	}

	report, err := h.historyService.GetProgressReport(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetUserSurveyHistory retrieves a user's rollup for one survey (moderator view)
// @Summary Get user history for a survey
// @Tags history
// @Produce json
// @Param user_id path string true "User ID"
// @Param survey_id path uint true "Survey ID"
// @Success 200 {object} services.HistoryResponse
// @Failure 404 {object} ErrorResponse
// @Router /history/users/{user_id}/{survey_id} [get]
func (h *HistoryHandler) GetUserSurveyHistory(c *gin.Context) {
	targetUserID := c.Param("user_id")
	if targetUserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid user_id",
		})
		return
	}

	surveyID := h.parseIDParam(c, "survey_id")
	if surveyID == 0 {
		return
	}

	h.LogRequest(c, "Getting user survey history", "target_user_id", targetUserID, "survey_id", surveyID)

	history, err := h.historyService.GetUserSurveyHistory(c.Request.Context(), targetUserID, surveyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// RecomputeHistory rebuilds the rollup from the underlying sessions
// @Summary Recompute history
// @Tags history
// @Produce json
// @Param user_id path string true "User ID"
// @Param survey_id path uint true "Survey ID"
// @Success 200 {object} services.HistoryResponse
// @Failure 403 {object} ErrorResponse
// @Router /history/users/{user_id}/{survey_id}/recompute [post]
func (h *HistoryHandler) RecomputeHistory(c *gin.Context) {
	targetUserID := c.Param("user_id")
	if targetUserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid user_id",
		})
		return
	}

	surveyID := h.parseIDParam(c, "survey_id")
	if surveyID == 0 {
		return
	}

	h.LogRequest(c, "Recomputing history", "target_user_id", targetUserID, "survey_id", surveyID)

	moderatorID := h.getUserID(c)
	if moderatorID == "" {
		return
	}

	history, err := h.historyService.Recompute(c.Request.Context(), targetUserID, surveyID, moderatorID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

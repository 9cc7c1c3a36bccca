package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gtf-training/survey-service/internal/services"
)

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries the shared handler dependencies and helpers.
type BaseHandler struct {
	logger *slog.Logger
}

func NewBaseHandler(logger *slog.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...interface{}) {
	requestArgs := append([]interface{}{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
	}, args...)
	h.logger.Info(msg, requestArgs...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string) {
	h.logger.Error(msg,
		"error", err,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
	)
}

// getUserID returns the authenticated user ID or writes a 401 and returns "".
func (h *BaseHandler) getUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	id, ok := userID.(string)
	if !ok || id == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return id
}

// parseIDParam parses a numeric path parameter, writing a 400 on failure.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
		})
		return 0
	}
	return uint(id)
}

// parseSessionIDParam parses a session UUID path parameter, writing a 400 on
// failure.
func (h *BaseHandler) parseSessionIDParam(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: err.Error(),
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// handleServiceError maps service errors to HTTP status codes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErr *services.ValidationServiceError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: validationErr.Message,
			Details: validationErr.Errors,
		})
		return
	}

	var permissionErr *services.PermissionError
	if errors.As(err, &permissionErr) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionErr.Resource,
				"action":   permissionErr.Action,
				"reason":   permissionErr.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrSurveyNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Survey not found"})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Question not found"})
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Session not found"})
	case errors.Is(err, services.ErrHistoryNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "History not found"})
	case errors.Is(err, services.ErrReviewNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Review not found"})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "User not found"})
	case errors.Is(err, services.ErrSurveyInactive):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "Survey is not active"})
	case errors.Is(err, services.ErrSessionNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Session is not active"})
	case errors.Is(err, services.ErrSessionNotCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Session is not completed"})
	case errors.Is(err, services.ErrSessionExpired):
		c.JSON(http.StatusGone, ErrorResponse{Message: "Session time limit exceeded"})
	case errors.Is(err, services.ErrActiveSessionExists):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "An active session already exists for this survey"})
	case errors.Is(err, services.ErrMaxAttemptsExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Maximum attempts exceeded"})
	case errors.Is(err, services.ErrQuestionNotInSession):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Question is not part of this session"})
	case errors.Is(err, services.ErrEmptyQuestionPool):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "No questions available for this survey"})
	case errors.Is(err, services.ErrInvalidChoice):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Selected choice does not belong to the question"})
	case errors.Is(err, services.ErrReviewExists):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Session has already been reviewed"})
	case errors.Is(err, services.ErrProctoringDisabled):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Proctoring is not enabled for this session"})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}

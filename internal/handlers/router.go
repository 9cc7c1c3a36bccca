package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/gtf-training/survey-service/internal/config"
	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/services"
	"github.com/gtf-training/survey-service/internal/validator"
)

type HandlerManager struct {
	surveyHandler     *SurveyHandler
	questionHandler   *QuestionHandler
	sessionHandler    *SessionHandler
	historyHandler    *HistoryHandler
	proctoringHandler *ProctoringHandler
	authMiddleware    *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger *slog.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		surveyHandler:     NewSurveyHandler(serviceManager.Survey(), validator, logger),
		questionHandler:   NewQuestionHandler(serviceManager.Question(), validator, logger),
		sessionHandler:    NewSessionHandler(serviceManager.Session(), validator, logger),
		historyHandler:    NewHistoryHandler(serviceManager.History(), logger),
		proctoringHandler: NewProctoringHandler(serviceManager.Proctoring(), validator, logger),
		authMiddleware:    authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Survey routes
		surveys := v1.Group("/surveys")
		{
			// Create/modify surveys - Admins only
			surveys.POST("", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.surveyHandler.CreateSurvey)
			surveys.PUT("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.surveyHandler.UpdateSurvey)
			surveys.DELETE("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.surveyHandler.DeleteSurvey)

			// View surveys - all authenticated users
			surveys.GET("", hm.surveyHandler.ListSurveys)
			surveys.GET("/:id", hm.surveyHandler.GetSurvey)
			surveys.GET("/:id/can-start", hm.surveyHandler.CanStartSurvey)

			// Question management under a survey
			surveys.GET("/:id/questions", hm.authMiddleware.RequireRoleMiddleware(models.RoleModerator, models.RoleAdmin), hm.questionHandler.ListQuestionsBySurvey)
		}

		// Question routes - Admins only
		questions := v1.Group("/questions")
		questions.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin))
		{
			questions.POST("", hm.questionHandler.CreateQuestion)
			questions.GET("/:id", hm.questionHandler.GetQuestion)
			questions.DELETE("/:id", hm.questionHandler.DeleteQuestion)
		}

		// Session routes
		sessions := v1.Group("/sessions")
		{
			sessions.POST("/start", hm.sessionHandler.StartSession)
			sessions.GET("/current/:survey_id", hm.sessionHandler.GetCurrentSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.GET("/:id/progress", hm.sessionHandler.GetSessionProgress)
			sessions.POST("/:id/answers", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/finish", hm.sessionHandler.FinishSession)
			sessions.POST("/:id/cancel", hm.sessionHandler.CancelSession)

			// Proctoring within a session
			sessions.POST("/:id/heartbeat", hm.proctoringHandler.Heartbeat)
			sessions.GET("/:id/verifications", hm.proctoringHandler.ListVerifications)
			sessions.GET("/:id/review", hm.proctoringHandler.GetReview)

			// Moderator operations
			sessions.GET("", hm.authMiddleware.RequireRoleMiddleware(models.RoleModerator, models.RoleAdmin), hm.sessionHandler.ListSessions)
			sessions.GET("/flagged", hm.authMiddleware.RequireRoleMiddleware(models.RoleModerator, models.RoleAdmin), hm.proctoringHandler.ListFlaggedSessions)
			sessions.POST("/:id/review", hm.authMiddleware.RequireRoleMiddleware(models.RoleModerator, models.RoleAdmin), hm.proctoringHandler.ReviewSession)
			sessions.POST("/:id/grant-retake", hm.authMiddleware.RequireRoleMiddleware(models.RoleModerator, models.RoleAdmin), hm.proctoringHandler.GrantRetake)
		}

		// History routes
		history := v1.Group("/history")
		{
			history.GET("/me", hm.historyHandler.GetMyHistory)
			history.GET("/me/progress", hm.historyHandler.GetMyProgress)
			history.GET("/me/:survey_id", hm.historyHandler.GetMySurveyHistory)

			// Moderator view
			history.GET("/users/:user_id/:survey_id", hm.authMiddleware.RequireRoleMiddleware(models.RoleModerator, models.RoleAdmin), hm.historyHandler.GetUserSurveyHistory)
			history.POST("/users/:user_id/:survey_id/recompute", hm.authMiddleware.RequireRoleMiddleware(models.RoleModerator, models.RoleAdmin), hm.historyHandler.RecomputeHistory)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "survey-service",
		})
	})
}

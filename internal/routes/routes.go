package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/roshni/backend/internal/config"
	"github.com/roshni/backend/internal/controllers"
	"github.com/roshni/backend/internal/db"
	"github.com/roshni/backend/internal/llm"
	"github.com/roshni/backend/internal/middleware"
	"github.com/roshni/backend/internal/models"
	"github.com/roshni/backend/internal/services"
	"gorm.io/gorm"
)

// Dependencies are the long-lived components the handlers share.
type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Logs      *db.LogRepository
	Reports   *db.ReportRepository
	PDFs      controllers.PDFLocator
	Generator services.Generator
	Jobs      controllers.JobQueue
	Provider  llm.Provider
	Tracker   *llm.Tracker
}

// NewRouter builds the engine with the standard middleware chain and all routes.
func NewRouter(deps Dependencies) *gin.Engine {
	// Create router without default middleware
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.Use(middleware.CustomLoggerMiddleware())
	r.Use(middleware.CORSMiddleware(deps.Config.CORS.AllowedOrigins))
	r.Use(gin.Recovery())

	SetupRoutes(r, deps)
	return r
}

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, deps Dependencies) {
	cfg := deps.Config

	// Initialize controllers
	healthController := controllers.NewHealthController(deps.DB)
	authController := controllers.NewAuthController(deps.DB, cfg.Auth)
	userController := controllers.NewUserController(deps.DB)
	incidentController := controllers.NewIncidentController(deps.DB)
	responderController := controllers.NewResponderController(deps.DB)
	logController := controllers.NewLogController(deps.DB, deps.Logs)
	reportController := controllers.NewReportController(deps.Reports, deps.PDFs)
	aiReportController := controllers.NewAIReportController(deps.Generator, deps.Jobs)
	llmController := controllers.NewLLMController(deps.Provider, deps.Tracker, cfg.LLM)

	auth := middleware.AuthMiddleware(cfg.Auth.JWTSecret)
	commander := middleware.RequireRole(models.RoleCommander)
	staff := middleware.RequireRole(models.RoleResponder, models.RoleCommander)

	r.GET("/", healthController.Root)
	r.GET("/health", healthController.Health)

	// Auth routes
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authController.Register)
		authGroup.POST("/login", authController.Login)
		authGroup.GET("/me", auth, authController.Me)
		authGroup.POST("/logout", auth, authController.Logout)
		authGroup.POST("/refresh", auth, authController.RefreshToken)
	}

	// Protected routes
	protected := r.Group("/")
	protected.Use(auth)
	{
		// Users
		users := protected.Group("/users")
		{
			users.PUT("/me/profile", userController.UpdateProfile)
			users.POST("/me/onboarding", userController.CompleteOnboarding)
			users.GET("", commander, userController.GetUsers)
			users.PUT("/:id/role", commander, userController.UpdateUserRole)
		}

		// Incidents
		incidents := protected.Group("/incidents")
		{
			incidents.GET("", incidentController.ListIncidents)
			incidents.POST("", incidentController.CreateIncident)
			incidents.GET("/:id", incidentController.GetIncident)
			incidents.PUT("/:id", incidentController.UpdateIncident)
			incidents.DELETE("/:id", commander, incidentController.DeleteIncident)
		}

		// Responders
		responders := protected.Group("/api/responders")
		{
			responders.GET("", responderController.ListResponders)
			responders.POST("", commander, responderController.CreateResponder)
			responders.GET("/:id", responderController.GetResponder)
			responders.PATCH("/:id/status", staff, responderController.UpdateStatus)
			responders.POST("/:id/assign", commander, responderController.Assign)
		}

		// Logs
		logs := protected.Group("/logs")
		{
			logs.GET("", logController.GetLogs)
			logs.POST("", logController.CreateLog)
		}

		// Reports
		reports := protected.Group("/reports")
		{
			reports.GET("", reportController.ListReports)
			reports.GET("/:id", reportController.GetReport)
			reports.PUT("/:id", staff, reportController.UpdateReport)
			reports.GET("/:id/pdf", reportController.DownloadPDF)
		}

		// AI report generation
		aiReports := protected.Group("/ai-reports")
		{
			aiReports.POST("/generate/:incident_id", staff, aiReportController.GenerateReport)
			aiReports.GET("/jobs/:job_id", aiReportController.GetJob)
		}

		// LLM status and call history
		llmGroup := protected.Group("/llm", commander)
		{
			llmGroup.GET("/status", llmController.GetStatus)
			llmGroup.GET("/api-calls", llmController.GetAPICalls)
			llmGroup.DELETE("/api-calls", llmController.ClearAPICalls)
		}
	}
}

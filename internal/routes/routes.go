package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pathology-records-server/internal/config"
	"pathology-records-server/internal/handlers"
	"pathology-records-server/internal/metrics"
	"pathology-records-server/internal/middleware"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/utils"
)

// Deps are the shared services the routes are built from.
type Deps struct {
	Cfg     *config.Config
	Repos   *repository.Repositories
	Metrics *metrics.Collector
	Tracer  trace.Tracer
	Limiter *middleware.ClientLimiter
	Log     *zap.Logger
}

// NewRouter builds the engine with the global middleware chain and all routes.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.Tracing(d.Tracer),
		middleware.Metrics(d.Metrics),
		middleware.RequestLogger(d.Log),
	)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{d.Cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	SetupRoutes(router, d)
	return router
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, d Deps) {
	authHandler := handlers.NewAuthHandler(d.Repos, d.Cfg, d.Log)
	userHandler := handlers.NewUserHandler(d.Repos, d.Log)
	patientHandler := handlers.NewPatientHandler(d.Repos, d.Log)
	recordHandler := handlers.NewRecordHandler(d.Repos, d.Metrics, d.Log)
	attachmentHandler := handlers.NewAttachmentHandler(d.Repos, d.Cfg.Attachments, d.Metrics, d.Log)
	formHandler := handlers.NewFormHandler()

	staff := middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin)
	doctor := middleware.RoleAuthMiddleware(models.RoleDoctor)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	public.Use(middleware.RateLimit(d.Limiter))
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.RateLimit(d.Limiter), middleware.AuthMiddleware(d.Cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		{
			userRoutes.GET("/doctors", userHandler.GetDoctors)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
			{
				adminRoutes.POST("", userHandler.CreateUser)
				adminRoutes.GET("", userHandler.GetUsers)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PUT("/:id", userHandler.UpdateUser)
				adminRoutes.DELETE("/:id", userHandler.DeleteUser)
			}
		}

		formRoutes := private.Group("/forms")
		{
			formRoutes.GET("", formHandler.ListForms)
			formRoutes.GET("/:pathology", formHandler.GetForm)
		}

		patientRoutes := private.Group("/patients")
		{
			patientRoutes.POST("", staff, patientHandler.CreatePatient)
			patientRoutes.GET("", staff, patientHandler.ListPatients)
			patientRoutes.GET("/me", middleware.RoleAuthMiddleware(models.RolePatient), patientHandler.GetMyPatient)
			patientRoutes.GET("/:id", patientHandler.GetPatient) // Auth in handler
			patientRoutes.PUT("/:id", staff, patientHandler.UpdatePatient)
			patientRoutes.DELETE("/:id", staff, patientHandler.DeletePatient)

			patientRoutes.POST("/:id/records", doctor, recordHandler.CreateRecord)
			patientRoutes.GET("/:id/records", recordHandler.ListRecords) // Auth in handler
		}

		recordRoutes := private.Group("/records")
		{
			recordRoutes.GET("/:id", recordHandler.GetRecord) // Auth in handler
			recordRoutes.PUT("/:id", staff, recordHandler.UpdateRecord)
			recordRoutes.PATCH("/:id/fields", staff, recordHandler.PatchRecordFields)
			recordRoutes.DELETE("/:id", staff, recordHandler.DeleteRecord)

			recordRoutes.POST("/:id/attachments", doctor, attachmentHandler.UploadAttachment)
			recordRoutes.GET("/:id/attachments", attachmentHandler.ListAttachments)
		}

		// Attachment ids are globally unique, so they are addressed directly.
		attachmentRoutes := private.Group("/attachments")
		{
			attachmentRoutes.GET("/:attachmentId", attachmentHandler.DownloadAttachment)
			attachmentRoutes.DELETE("/:attachmentId", staff, attachmentHandler.DeleteAttachment)
		}
	}

	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.Success(c, "Service is healthy", gin.H{"status": "UP"})
	})
}

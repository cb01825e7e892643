package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"residency-training-server/internal/config"
	"residency-training-server/internal/handlers"
	"residency-training-server/internal/middleware"
	"residency-training-server/internal/models"
	"residency-training-server/internal/store"
	"residency-training-server/internal/workflow"
)

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, coordinator *workflow.Coordinator, attachments store.AttachmentStore) {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, cfg)
	userHandler := handlers.NewUserHandler(db, coordinator)
	catalogHandler := handlers.NewCatalogHandler(db)
	progressHandler := handlers.NewProgressHandler(coordinator, attachments)
	adminHandler := handlers.NewAdminHandler(coordinator)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg)) // Apply JWT authentication middleware
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		// User management routes
		userRoutes := private.Group("/users")
		{
			// Supervisors list the trainees inside their window
			userRoutes.GET("/residentes", userHandler.GetResidents)

			// Admin-only routes
			adminUserRoutes := userRoutes.Group("")
			adminUserRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin)) // Only Admins
			{
				adminUserRoutes.POST("", userHandler.CreateUser)
				adminUserRoutes.GET("", userHandler.GetUsers)
				adminUserRoutes.GET("/:id", userHandler.GetUserByID)
				adminUserRoutes.PUT("/:id", userHandler.UpdateUser)
				adminUserRoutes.DELETE("/:id", userHandler.DeleteUser)
			}
		}

		// Progress workflow routes
		progressRoutes := private.Group("/progreso")
		{
			// Residents submit their own activities; everything else is
			// scope-checked in the coordinator
			progressRoutes.POST("/:recordId/actividad/:index", progressHandler.SubmitActivity)
			progressRoutes.POST("/:recordId/actividad/:index/validar", progressHandler.ValidateActivity)
			progressRoutes.POST("/:recordId/actividad/:index/rechazar", progressHandler.RejectActivity)
			progressRoutes.POST("/:recordId/fase/estado", progressHandler.SetPhaseStatus)

			progressRoutes.GET("/residente/:userId", progressHandler.GetRecordsForResident)
			progressRoutes.GET("/tutor/validaciones/pendientes", progressHandler.GetPendingValidations)

			// Attachments for one activity entry
			progressRoutes.POST("/:recordId/actividad/:index/adjuntos", progressHandler.UploadAttachment)
			progressRoutes.GET("/:recordId/actividad/:index/adjuntos", progressHandler.ListAttachments)
			progressRoutes.GET("/adjuntos/:attachmentId", progressHandler.GetAttachment)
		}

		// Admin override routes
		adminRoutes := private.Group("/admin")
		adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			adminRoutes.POST("/cambiar-estado-fase", adminHandler.ChangePhaseStatus)
			adminRoutes.POST("/cambiar-estado-actividad", adminHandler.ChangeActivityStatus)
			adminRoutes.POST("/usuarios/:id/inicializar-progreso", adminHandler.InitializeProgress)
		}

		// Reference-data routes (admin only)
		catalogRoutes := private.Group("")
		catalogRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			catalogRoutes.POST("/hospitales", catalogHandler.CreateHospital)
			catalogRoutes.GET("/hospitales", catalogHandler.GetHospitals)
			catalogRoutes.DELETE("/hospitales/:id", catalogHandler.DeleteHospital)

			catalogRoutes.POST("/fases", catalogHandler.CreatePhase)
			catalogRoutes.GET("/fases", catalogHandler.GetPhases)
			catalogRoutes.DELETE("/fases/:id", catalogHandler.DeletePhase)
			catalogRoutes.POST("/fases/:id/actividades", catalogHandler.CreateActivity)
			catalogRoutes.DELETE("/fases/:id/actividades/:activityId", catalogHandler.DeleteActivity)
		}
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}

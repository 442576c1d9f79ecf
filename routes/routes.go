package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/MOE349/tenmil-backend-sub001/admin"
	"github.com/MOE349/tenmil-backend-sub001/controllers"
	"github.com/MOE349/tenmil-backend-sub001/middleware"
)

// Deps are the handlers and settings the router is built from
type Deps struct {
	DB          *gorm.DB
	JWTSecret   string
	Production  bool
	Logger      *slog.Logger
	Auth        *admin.AuthController
	RateLimiter *middleware.RateLimiter
	SavingPlans *controllers.SavingPlanController
	Scheduler   *controllers.SchedulerController
}

// NewRouter creates the gin engine with middleware and all routes
func NewRouter(d Deps) *gin.Engine {
	if d.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(d.Logger))

	SetupRoutes(router, d)
	return router
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, d Deps) {
	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness probe checks the database
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.JWTAuthMiddleware(d.JWTSecret)

	// Event feed, authenticated with the token query parameter
	router.GET("/ws/events", auth, d.Scheduler.Events)

	// API v1 group
	api := router.Group("/api/v1")
	{
		api.POST("/auth/login", middleware.LoginRateLimitMiddleware(d.RateLimiter), d.Auth.Login)

		protected := api.Group("", auth)

		// Saving plan routes
		plans := protected.Group("/saving-plans")
		{
			plans.GET("", d.SavingPlans.ListPlans)
			plans.POST("", d.SavingPlans.CreatePlan)
			plans.GET("/:id", d.SavingPlans.GetPlan)
			plans.DELETE("/:id", d.SavingPlans.DeletePlan)

			// Schedule lifecycle
			plans.GET("/:id/schedule", d.SavingPlans.GetSchedule)
			plans.POST("/:id/schedule", d.SavingPlans.CreateSchedule)
			plans.PATCH("/:id/schedule", d.SavingPlans.UpdateSchedule)
			plans.DELETE("/:id/schedule", d.SavingPlans.DeleteSchedule)
			plans.POST("/:id/run", d.SavingPlans.RunPlan)
			plans.GET("/:id/runs", d.SavingPlans.ListRuns)
		}

		protected.GET("/scheduler/jobs", d.Scheduler.ListJobs)
	}
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/invigilo/exam-duty-api/internal/middleware"
	"github.com/invigilo/exam-duty-api/internal/service"
	"github.com/invigilo/exam-duty-api/pkg/logger"
	corsmiddleware "github.com/invigilo/exam-duty-api/pkg/middleware/cors"
	reqidmiddleware "github.com/invigilo/exam-duty-api/pkg/middleware/requestid"
)

// RouterDeps bundles everything the HTTP router needs.
type RouterDeps struct {
	Logger         *zap.Logger
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool

	AuthService    *service.AuthService
	MetricsService *service.MetricsService

	Auth        *AuthHandler
	Metrics     *MetricsHandler
	Roster      *RosterHandler
	Calendar    *CalendarHandler
	Config      *ConfigHandler
	Assignments *AssignmentHandler
	Reports     *ReportHandler
}

// NewRouter assembles the gin engine with middleware and all route groups.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.AllowedOrigins))
	r.Use(middleware.Metrics(deps.MetricsService))

	r.GET("/health", deps.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", deps.Metrics.Prometheus)

	if deps.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.APIPrefix)

	api.POST("/auth/login", deps.Auth.Login)
	if deps.Reports != nil {
		api.GET("/reports/download/:token", deps.Reports.Download)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(deps.AuthService))

	protected.GET("/auth/me", deps.Auth.Me)
	protected.GET("/metrics/snapshot", deps.Metrics.Snapshot)

	teachers := protected.Group("/teachers")
	{
		teachers.GET("", deps.Roster.List)
		teachers.POST("", deps.Roster.Create)
		teachers.GET("/grades", deps.Roster.Grades)
		teachers.POST("/import", deps.Roster.ImportRoster)
		teachers.POST("/availability/import", deps.Roster.ImportWishes)
		teachers.GET("/:id", deps.Roster.Get)
		teachers.PUT("/:id", deps.Roster.Update)
		teachers.DELETE("/:id", deps.Roster.Delete)
		teachers.PUT("/:id/availability", deps.Roster.SetAvailability)
	}

	protected.GET("/calendar", deps.Calendar.Current)
	protected.POST("/calendar/import", deps.Calendar.Import)

	cfg := protected.Group("/config")
	{
		cfg.GET("", deps.Config.Current)
		cfg.PUT("/ratios", deps.Config.UpdateRatios)
		cfg.PUT("/quotas", deps.Config.SetQuota)
		cfg.DELETE("/quotas/:grade", deps.Config.RemoveQuota)
		cfg.GET("/diagnostics", deps.Config.Diagnostics)
	}

	assignments := protected.Group("/assignments")
	{
		assignments.POST("", deps.Assignments.Assign)
		assignments.POST("/auto", deps.Assignments.AutoAssign)
		assignments.POST("/reload", deps.Assignments.Reload)
		assignments.GET("/summary", deps.Assignments.Summary)
		assignments.GET("/conflicts", deps.Assignments.Conflicts)
		assignments.DELETE("/:teacherId/days/:day/sessions/:session", deps.Assignments.Remove)
	}
	protected.PUT("/slots/:day/:session", deps.Assignments.ReplaceSlot)

	if deps.Reports != nil {
		reports := protected.Group("/reports")
		{
			reports.POST("", deps.Reports.Create)
			reports.GET("/:id", deps.Reports.Status)
		}
	}

	return r
}

package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/middleware"
	"github.com/noah-isme/docrepo-api/internal/models"
	"github.com/noah-isme/docrepo-api/internal/service"
	"github.com/noah-isme/docrepo-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/docrepo-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/docrepo-api/pkg/middleware/requestid"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	EnableMetrics  bool

	Logger   *zap.Logger
	Metrics  *service.MetricsService
	Sessions middleware.SessionResolver
	Cookie   *middleware.SessionCookie
	AuditLog middleware.AuditWriter

	Auth          *AuthHandler
	Users         *UserHandler
	Resources     *ResourceHandler
	Notifications *NotificationHandler
	Settings      *SettingHandler
	Dashboard     *DashboardHandler
	System        *MetricsHandler
}

// NewRouter assembles the gin engine with global middleware and every route group.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	if deps.Logger != nil {
		r.Use(logger.GinMiddleware(deps.Logger))
	}
	r.Use(corsmiddleware.New(deps.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics, "/health", "/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.System.Health)
	r.GET("/ready", deps.System.Ready)
	if deps.EnableMetrics {
		r.GET("/metrics", deps.System.Prometheus)
	}
	if deps.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := deps.APIPrefix
	if prefix == "" {
		prefix = "/api"
	}
	api := r.Group(prefix)
	authenticated := middleware.Authenticated(deps.Sessions, deps.Cookie)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	reviewers := middleware.RequireRoles(models.RoleSupervisor, models.RoleAdmin)

	auth := api.Group("/auth")
	auth.POST("/register", deps.Auth.Register)
	auth.POST("/login", deps.Auth.Login)
	auth.POST("/logout", deps.Auth.Logout)
	auth.GET("/user-info", authenticated, deps.Auth.UserInfo)
	auth.POST("/change-password", authenticated, deps.Auth.ChangePassword)

	users := auth.Group("/users", authenticated, adminOnly)
	users.GET("", deps.Users.List)
	users.GET("/:id", deps.Users.Get)
	users.PATCH("/:id/role", deps.Users.UpdateRole)

	api.GET("/files/:token", deps.Resources.SignedFile)

	resources := api.Group("/resources", authenticated)
	resources.GET("", deps.Resources.List)
	resources.POST("", deps.Resources.Create)
	resources.GET("/export", adminOnly, middleware.Audit(deps.AuditLog, models.AuditActionResourceExport, "resources"), deps.Resources.Export)
	resources.GET("/:id", deps.Resources.Get)
	resources.PUT("/:id", deps.Resources.Update)
	resources.DELETE("/:id", deps.Resources.Delete)
	resources.PATCH("/:id/status", reviewers, deps.Resources.UpdateStatus)
	resources.GET("/:id/download", deps.Resources.Download)
	resources.GET("/:id/link", deps.Resources.Link)

	notifications := api.Group("/notifications", authenticated)
	notifications.GET("", deps.Notifications.List)
	notifications.PATCH("/:id/read", deps.Notifications.MarkRead)
	notifications.POST("/read-all", deps.Notifications.MarkAllRead)

	settings := api.Group("/settings", authenticated, adminOnly)
	settings.GET("", deps.Settings.List)
	settings.PUT("", deps.Settings.BulkUpdate)
	settings.GET("/:key", deps.Settings.Get)
	settings.PUT("/:key", deps.Settings.Update)

	api.GET("/dashboard", authenticated, deps.Dashboard.Stats)
	api.GET("/system/metrics", authenticated, adminOnly, deps.System.Summary)

	return r
}

// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"crmflow/internal/core/security"
	"crmflow/internal/domain/access"
	"crmflow/internal/domain/auth"
	"crmflow/internal/domain/company"
	"crmflow/internal/domain/followup"
	"crmflow/internal/domain/securityevent"
	"crmflow/internal/domain/task"
	"crmflow/internal/domain/ticket"
	"crmflow/internal/infrastructure/http/v1/handlers"
	"crmflow/internal/infrastructure/http/v1/middleware"
	"crmflow/internal/infrastructure/metrics"
	"crmflow/internal/infrastructure/storage/postgres"
	"crmflow/pkg/logger"
)

// RouterConfig holds everything the router wires into routes.
type RouterConfig struct {
	Logger  *logger.Logger
	Version string

	// Pool backs the health endpoints. Nil disables /health/ready and /health/info.
	Pool *postgres.Pool

	// Metrics enables request metrics and the scrape endpoint when set.
	Metrics     *metrics.Metrics
	MetricsPath string

	JWTValidator middleware.JWTValidator
	Gate         *access.Gate
	// RateLimiter is optional.
	RateLimiter  *access.RateLimiter
	BulkMaxItems int

	AuthService     *auth.Service
	CompanyService  *company.Service
	FollowUpService *followup.Service
	TaskService     *task.Service
	TicketService   *ticket.Service
	EventService    *securityevent.Service
	Permissions     *access.PermissionSource
	Inbox           handlers.Inbox
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestContext()) // 1. Build the guard request context
	router.Use(middleware.Auth(cfg.JWTValidator)) // 2. Attach the principal, never rejects

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		if cfg.Pool != nil {
			health.GET("/ready", healthHandler.Ready)
			health.GET("/info", healthHandler.Info)
		}
	}

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	if cfg.RateLimiter != nil {
		v1.Use(middleware.RateLimit(cfg.RateLimiter))
	}

	guards := middleware.NewGuards(cfg.Gate)
	base := handlers.NewBaseHandler()

	registerAuthRoutes(v1, guards, base, cfg)

	protected := v1.Group("")
	protected.Use(guards.Authenticated()...)

	registerCompanyRoutes(protected, guards, base, cfg)
	registerFollowUpRoutes(protected, guards, base, cfg)
	registerWorkRoutes(protected, guards, base, cfg)
	registerAdminRoutes(protected, guards, base, cfg)

	return router
}

// registerAuthRoutes registers login and user endpoints.
func registerAuthRoutes(rg *gin.RouterGroup, g *middleware.Guards, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.AuthService == nil {
		return
	}
	h := handlers.NewAuthHandler(base, cfg.AuthService)

	rg.POST("/auth/login", h.Login)
	rg.GET("/auth/me", chain(g.Authenticated(), h.Me)...)

	users := rg.Group("/users")
	users.Use(g.Authenticated()...)
	users.GET("/:id", g.Permission(security.CanManageUsers, access.PermissionOptions{
		AllowSelfAccess: true,
		LogAccess:       true,
		EntityType:      "user",
	}), h.GetUser)
	users.PUT("/:id/role", g.Roles(security.RoleAdmin), h.ChangeRole)
	users.PUT("/:id/active", g.RoleGroup(security.UserManagers), g.Permission(security.CanManageUsers, access.PermissionOptions{}), h.SetActive)
}

// registerCompanyRoutes registers the finalization workflow.
func registerCompanyRoutes(rg *gin.RouterGroup, g *middleware.Guards, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.CompanyService == nil {
		return
	}
	h := handlers.NewCompanyHandler(base, cfg.CompanyService)

	companies := rg.Group("/companies")

	// Static paths first so they never match /:id.
	companies.GET("/approval-queue", g.RoleGroup(security.Finalizers), h.ApprovalQueue)
	companies.POST("/bulk-approve", g.RoleGroup(security.Managers), g.BulkLimits(cfg.BulkMaxItems), h.BulkApprove)
	companies.POST("/bulk-reject", g.RoleGroup(security.Managers), g.BulkLimits(cfg.BulkMaxItems), h.BulkReject)
	companies.DELETE("/bulk", g.BulkLimits(cfg.BulkMaxItems), h.BulkDelete)

	companies.GET("/:id", g.Permission(security.CanRead, access.PermissionOptions{}), h.Get)
	companies.PUT("/:id", g.ReadOnly(), g.NotFinalized("id"), h.Update)
	companies.POST("/:id/finalize", g.RoleGroup(security.Finalizers), g.Permission(security.CanFinalize, access.PermissionOptions{}), h.Finalize)
	companies.POST("/:id/unfinalize", g.RoleGroup(security.Managers), g.Permission(security.CanFinalize, access.PermissionOptions{}), h.Unfinalize)
	companies.POST("/:id/submit", g.ReadOnly(), h.Submit)
}

// registerFollowUpRoutes registers follow-ups and deletion requests.
func registerFollowUpRoutes(rg *gin.RouterGroup, g *middleware.Guards, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.FollowUpService == nil {
		return
	}
	h := handlers.NewFollowUpHandler(base, cfg.FollowUpService)

	rg.GET("/companies/:id/follow-ups", g.Permission(security.CanRead, access.PermissionOptions{}), h.ListByCompany)
	rg.POST("/companies/:id/follow-ups", g.ReadOnly(), h.Create)

	followUps := rg.Group("/follow-ups")
	followUps.PATCH("/:id", g.ReadOnly(), h.Update)
	followUps.DELETE("/:id", g.Roles(security.RoleAdmin), h.Delete)
	followUps.POST("/:id/deletion-requests", g.Permission(security.CanRead, access.PermissionOptions{}), h.ProposeDeletion)

	requests := rg.Group("/deletion-requests")
	requests.GET("", h.ListDeletionRequests)
	requests.GET("/pending", g.RoleGroup(security.DeletionReviewers), h.PendingDeletionRequests)
	requests.POST("/:id/review", g.RoleGroup(security.DeletionReviewers), h.Review)
	requests.DELETE("/:id", h.Cancel)
}

// registerWorkRoutes registers tasks and tickets.
func registerWorkRoutes(rg *gin.RouterGroup, g *middleware.Guards, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.TaskService == nil || cfg.TicketService == nil {
		return
	}
	h := handlers.NewWorkHandler(base, cfg.TaskService, cfg.TicketService)

	rg.GET("/tasks/:id", g.Ownership(access.ResourceTask, access.OwnershipOptions{AllowManagers: true}), h.GetTask)
	rg.PATCH("/tasks/:id/status", g.ReadOnly(), g.TaskUpdate(), h.UpdateTaskStatus)
	rg.GET("/tickets/:id", g.Ownership(access.ResourceTicket, access.OwnershipOptions{AllowManagers: true}), h.GetTicket)
}

// registerAdminRoutes registers the security log, permission overrides and
// the caller's notifications.
func registerAdminRoutes(rg *gin.RouterGroup, g *middleware.Guards, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.Inbox != nil {
		n := handlers.NewNotificationHandler(base, cfg.Inbox)
		rg.GET("/notifications", n.List)
		rg.POST("/notifications/read", n.MarkRead)
	}

	if cfg.EventService == nil || cfg.Permissions == nil {
		return
	}
	h := handlers.NewAdminHandler(base, cfg.EventService, cfg.Permissions)

	sensitive := access.PermissionOptions{LogAccess: true, EntityType: "security_event"}
	rg.GET("/security-events", g.Roles(security.RoleAdmin), g.Permission(security.CanManageUsers, sensitive), h.SecurityEvents)

	admin := rg.Group("/admin")
	admin.Use(g.Roles(security.RoleAdmin))
	admin.GET("/role-permissions", h.PermissionMatrix)
	admin.PUT("/role-permissions", h.SetRolePermission)
}

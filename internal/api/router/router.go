package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbusdash/aegis/internal/api/handlers"
	"github.com/nimbusdash/aegis/internal/middleware"
	"github.com/nimbusdash/aegis/internal/rbac"
)

type Router struct {
	app            *fiber.App
	authHandler    *handlers.AuthHandler
	tenantHandler  *handlers.TenantHandler
	userHandler    *handlers.UserHandler
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
	loginRateLimit middleware.RateLimitConfig
}

func NewRouter(
	app *fiber.App,
	authHandler *handlers.AuthHandler,
	tenantHandler *handlers.TenantHandler,
	userHandler *handlers.UserHandler,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
	loginRateLimit middleware.RateLimitConfig,
) *Router {
	return &Router{
		app:            app,
		authHandler:    authHandler,
		tenantHandler:  tenantHandler,
		userHandler:    userHandler,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		loginRateLimit: loginRateLimit,
	}
}

func (r *Router) SetupRoutes() {
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Public routes
	r.app.Post("/api/v1/auth/login", r.rateLimiter.RateLimit(r.loginRateLimit), r.authHandler.Login)

	// Protected routes
	protected := r.app.Group("/api/v1", r.authMiddleware.Authenticate())

	protected.Get("/auth/verify", r.authHandler.Verify)
	protected.Get("/auth/me", r.authHandler.Me)
	protected.Get("/auth/permission/:name", r.authHandler.CheckPermission)
	protected.Post("/auth/switch-tenant", r.authHandler.SwitchTenant)

	protected.Get("/tenants", r.tenantHandler.ListTenants)
	protected.Get("/tenants/:tenant_id", r.tenantHandler.GetTenant)
	protected.Post("/tenants", r.authMiddleware.RequirePermission(rbac.PermManageTenants), r.tenantHandler.CreateTenant)

	protected.Get("/users", r.authMiddleware.RequirePermission(rbac.PermViewUsers), r.userHandler.ListUsers)
	protected.Post("/users", r.authMiddleware.RequirePermission(rbac.PermManageUsers), r.userHandler.CreateUser)
	protected.Put("/users/:user_id", r.authMiddleware.RequirePermission(rbac.PermManageUsers), r.userHandler.UpdateUser)
}

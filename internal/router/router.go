package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/charaka/user-auth-service/internal/config"
	"github.com/charaka/user-auth-service/internal/handler"
	"github.com/charaka/user-auth-service/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session and account-lifecycle routes.  The open
// group carries the token-bucket rate limiter so that login, registration and
// the OTP flows cannot be hammered; the protected group sits behind JWTAuth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, u *handler.UserHandler, cfg config.Config, rdb *redis.Client) {
	rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	g := e.Group("/auth", rl)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/verify-otp", a.VerifyOTP)
	g.POST("/reset-password", a.ResetPassword)

	auth := e.Group("/auth", middleware.JWTAuth(cfg.JWTSecret))
	auth.GET("/me", a.Me)
	auth.PUT("/change-password", a.ChangePassword)
	auth.PUT("/edit-profile", u.EditProfile)
	auth.PUT("/update-profile", u.UpdateProfile)
	auth.GET("/user-details/:userId", u.UserDetail)
	auth.GET("/user-list", u.UserList)
	auth.PUT("/update-user-status", u.UpdateUserStatus)
	auth.DELETE("/delete-user/:userId", u.DeleteUser)
}

// RegisterUsers registers the user-management routes.  All of them require a
// session; when an admin role is configured they additionally require it.
// Read-only listing endpoints go through the Redis response cache.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, cfg config.Config, rdb *redis.Client) {
	mws := []echo.MiddlewareFunc{middleware.JWTAuth(cfg.JWTSecret)}
	if cfg.AdminRoleID != 0 {
		mws = append(mws, middleware.RequireRole(cfg.AdminRoleID))
	}
	g := e.Group("/users", mws...)

	g.POST("/create-user", u.CreateUser)
	g.POST("/get-users-list", u.UsersList)
	g.PUT("/edit-profile/:userId", u.EditProfileByID)
	g.PUT("/update-status", u.UpdateUsersStatus)
	g.POST("/is-user-exist", u.IsUserExist)

	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	g.GET("/get-roles-count", u.RoleCounts, cache)
	g.GET("/get-roles-list", u.RolesList, cache)
	g.GET("/filters-list", u.FiltersList, cache)
}

package api

import (
	"time"

	"helper-dispatch/internal/auth"
	"helper-dispatch/internal/config"
	"helper-dispatch/internal/monitoring"
	"helper-dispatch/internal/tracing"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewSecureRouter is the production router: security headers, CORS from
// config, tracing, rate limiting and optional JWT enforcement on the
// endpoints a helper or requester mutates.
func NewSecureRouter(
	handler *DispatchHandler,
	metrics *monitoring.Metrics,
	tracingManager *tracing.TracingManager,
	authMiddleware *auth.AuthMiddleware,
	rateLimiter *auth.RateLimiter,
	cfg *config.Config,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())

	if cfg.Security.EnableSecurityHeaders {
		router.Use(secure.New(secure.Config{
			BrowserXssFilter:      true,
			ContentTypeNosniff:    true,
			FrameDeny:             true,
			ContentSecurityPolicy: "default-src 'self'",
			ReferrerPolicy:        "strict-origin-when-cross-origin",
		}))
	}

	if cfg.Security.CORSEnabled {
		corsConfig := cors.Config{
			AllowOrigins:     cfg.Security.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Correlation-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Correlation-ID", "X-Trace-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		router.Use(cors.New(corsConfig))
	}

	if tracingManager != nil {
		router.Use(tracingManager.TracingMiddleware())
	}

	router.Use(MetricsMiddleware(metrics))
	router.Use(GinLogger(logger))

	if rateLimiter != nil && cfg.RateLimit.Enabled {
		rateConfig := auth.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			WindowDuration:    cfg.RateLimit.WindowDuration,
		}
		router.Use(rateLimiter.RateLimitMiddleware(rateConfig))
	}

	api := router.Group("/api/v1")
	if authMiddleware != nil {
		api.Use(authMiddleware.OptionalAuth())
	}

	// Booking endpoints
	{
		api.POST("/bookings", requesterGuard(authMiddleware), handler.CreateBooking)
		api.GET("/bookings/:id", handler.GetBooking)
		api.PUT("/bookings/:id/accept", helperGuard(authMiddleware), handler.AcceptBooking)
		api.PUT("/bookings/:id/reject", helperGuard(authMiddleware), handler.RejectBooking)
		api.DELETE("/bookings/:id", requesterGuard(authMiddleware), handler.CancelBooking)
	}

	// Helper endpoints
	{
		api.POST("/helpers", handler.RegisterHelper)
		api.GET("/helpers", handler.ListHelpers)
		api.GET("/helpers/:id", handler.GetHelper)
		api.PUT("/helpers/:id/location", helperGuard(authMiddleware), handler.UpdateHelperLocation)
		api.PUT("/helpers/:id/availability", helperGuard(authMiddleware), handler.UpdateHelperAvailability)
		api.PUT("/helpers/:id/rating", requesterGuard(authMiddleware), handler.RateHelper)
	}

	api.GET("/stats", handler.GetStats)

	router.GET("/health", handler.HealthCheck)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	return router
}

func helperGuard(am *auth.AuthMiddleware) gin.HandlerFunc {
	if am == nil {
		return passthrough()
	}
	return am.RequireHelper()
}

func requesterGuard(am *auth.AuthMiddleware) gin.HandlerFunc {
	if am == nil {
		return passthrough()
	}
	return am.RequireRequester()
}

func passthrough() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

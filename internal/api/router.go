package api

import (
	"time"

	"helper-dispatch/internal/monitoring"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(handler *DispatchHandler, metrics *monitoring.Metrics, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(GinLogger(logger))
	router.Use(MetricsMiddleware(metrics))

	corsConfig := cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api/v1")
	{
		api.POST("/bookings", handler.CreateBooking)
		api.GET("/bookings/:id", handler.GetBooking)
		api.PUT("/bookings/:id/accept", handler.AcceptBooking)
		api.PUT("/bookings/:id/reject", handler.RejectBooking)
		api.DELETE("/bookings/:id", handler.CancelBooking)

		api.POST("/helpers", handler.RegisterHelper)
		api.GET("/helpers", handler.ListHelpers)
		api.GET("/helpers/:id", handler.GetHelper)
		api.PUT("/helpers/:id/location", handler.UpdateHelperLocation)
		api.PUT("/helpers/:id/availability", handler.UpdateHelperAvailability)
		api.PUT("/helpers/:id/rating", handler.RateHelper)

		api.GET("/stats", handler.GetStats)
	}

	router.GET("/health", handler.HealthCheck)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	return router
}

func GinLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}

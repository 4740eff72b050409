package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"users-api/internal/db"
	"users-api/internal/metrics"
	"users-api/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	userH *UserHandler,
	tokenSvc *service.TokenService,
	pool *pgxpool.Pool,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y métricas.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), metricsMiddleware())

	auth := r.Group("/auth")
	auth.POST("/register", userH.Register)
	auth.POST("/login", userH.Login)
	auth.POST("/validate", userH.ValidateToken)

	users := r.Group("/users")
	users.Use(JWTAuthMiddleware(tokenSvc))
	users.GET("", RequireAdmin(), userH.ListUsers)
	users.POST("", RequireAdmin(), userH.Register)
	users.GET("/:id", userH.GetUser)
	users.PUT("/:id", userH.UpdateUser)
	users.PUT("/:id/password", userH.ChangePassword)
	users.DELETE("/:id", RequireAdmin(), userH.DeleteUser)

	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		if pool != nil {
			if err := db.Ping(c.Request.Context(), pool); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware observa latencia por método, ruta y status.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"planner/internal/auth"
	"planner/internal/httpmiddleware"
)

// RouterConfig holds the cross-cutting middleware settings.
type RouterConfig struct {
	RateLimitPerMin int
	Release         bool
	Metrics         http.Handler
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders(cfg.Release))

	perIP := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	r.Use(perIP.Middleware(httpmiddleware.ClientIP))
	perDevice := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)

	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))
	r.GET("/healthz", h.Healthz)

	r.POST("/v1/devices/register", h.RegisterDevice)
	r.POST("/v1/devices/refresh", h.RefreshDevice)

	v1 := r.Group("/v1", auth.DeviceAuth(h.signer), perDevice.Middleware(deviceKey))
	{
		v1.POST("/terms/ensure", h.EnsureTerm)

		v1.GET("/records", h.ListRecords)
		v1.GET("/records/:date", h.GetRecord)
		v1.POST("/records/:date/ensure", h.EnsureDay)
		v1.POST("/records/:date/classes/:slotId/mark", h.Mark)
		v1.GET("/records/:date/unmarked", h.HasUnmarked)
		v1.GET("/pending", h.Pending)

		v1.GET("/stats", h.Summary)
		v1.GET("/stats/rate", h.Rate)
		v1.GET("/stats/grid", h.Grid)
		v1.GET("/stats/intensity", h.Intensity)
	}
	return r
}

// deviceKey charges a request to the device named in its verified token.
// It must run after auth.DeviceAuth.
func deviceKey(c *gin.Context) string {
	if v, ok := c.Get(auth.ClaimsKey); ok {
		if claims, ok := v.(auth.Claims); ok && claims.Subject != "" {
			return "device:" + claims.Subject
		}
	}
	return httpmiddleware.ClientIP(c)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders(release bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if release {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

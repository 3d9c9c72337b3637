package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/middleware"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Config  *config.Config
	Auth    *service.AuthService
	Logs    *service.AccessLogService
	Replay  *service.ReplayService
	Tail    *service.TailHub
	Limiter *service.LoginLimiter
}

// NewRouter wires global middleware, the viewer API and the optional upstream proxy.
func NewRouter(d Deps) (*gin.Engine, error) {
	cfg := d.Config
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server.trusted_proxies: %w", err)
	}
	if cfg.Server.Mode == gin.TestMode {
		r.Use(gin.RecoveryWithWriter(io.Discard))
	} else {
		r.Use(gin.Logger(), gin.Recovery())
	}

	// Capture sits outside ErrorHandler so rendered errors are recorded.
	r.Use(middleware.Capture(&cfg.Capture, d.Logs))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "logreplay"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	RegisterViewerRoutes(r.Group(cfg.Viewer.RoutePrefix), d)

	if cfg.Proxy.UpstreamURL != "" {
		proxy, err := NewUpstreamProxy(cfg.Proxy.UpstreamURL)
		if err != nil {
			return nil, err
		}
		r.NoRoute(proxy)
	}
	return r, nil
}

func RegisterViewerRoutes(g *gin.RouterGroup, d Deps) {
	authH := NewAuthHandler(d.Auth)
	logsH := NewLogsHandler(d.Logs, d.Replay)
	tailH := NewTailHandler(d.Tail)

	requireAuth := middleware.AuthMiddleware(d.Auth)
	readOnly := middleware.ReadOnlyMiddleware(d.Config.Server.ReadOnly)

	auth := g.Group("/auth")
	{
		auth.POST("/login", middleware.LoginRateLimit(d.Limiter), authH.Login)
		auth.GET("/validate", authH.Validate)
		auth.GET("/me", requireAuth, authH.Me)
		auth.POST("/change-password", requireAuth, readOnly, authH.ChangePassword)
	}

	logs := g.Group("", requireAuth)
	{
		logs.GET("", logsH.List)
		logs.GET("/stats", logsH.Stats)
		logs.GET("/tail", tailH.Stream)
		logs.GET("/tail/status", tailH.Status)
		logs.GET("/:id", logsH.Get)
		logs.POST("/:id/replay", readOnly, logsH.Replay)
		logs.POST("/purge", middleware.RequireRole(model.RoleAdmin), readOnly, logsH.Purge)
	}
}

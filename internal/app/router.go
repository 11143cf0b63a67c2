package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zoomsync/backend/internal/auth"
	"github.com/zoomsync/backend/internal/middleware"
	"github.com/zoomsync/backend/internal/oauth"
	"github.com/zoomsync/backend/internal/recordings"
	"github.com/zoomsync/backend/pkg/response"
)

// Server is the HTTP surface: webhook intake, operator login and the admin API.
type Server struct {
	Router *gin.Engine
}

// NewServer registers every route. Manually triggered runs share the App's run context,
// and App.Shutdown waits for them.
func (a *App) NewServer() *Server {
	cfg := a.Config
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(cfg.Admin.Username, cfg.Admin.PasswordHash, jwtService, a.logger.Named("auth"))
	webhook := recordings.NewWebhookHandler(a.Pipeline, cfg.Zoom.RouteUUID, cfg.Zoom.WebhookSecretToken, a.logger.Named("webhook"))

	var dlq recordings.DeadLetterLister
	if a.DeadLetters != nil {
		dlq = a.DeadLetters
	}
	admin := recordings.NewHandler(a.runCtx, a.Events, a.Records, a.Pipeline, dlq, a.logger.Named("admin"))
	a.waiters = append(a.waiters, admin.Wait)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(a.logger, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Zoom posts here; the route segment must match ROUTE_UUID.
	router.POST("/webhooks/:route", webhook.Receive)
	router.POST("/auth/login", authHandler.Login)

	adminGroup := router.Group("/admin")
	adminGroup.Use(middleware.JWT(jwtService), middleware.RequireRole(auth.RoleAdmin))
	{
		adminGroup.GET("/events", admin.ListEvents)
		adminGroup.GET("/records", admin.ListRecords)
		adminGroup.POST("/records/:id/retry", admin.Retry)
		adminGroup.POST("/pipeline/run", admin.RunPipeline)
		adminGroup.GET("/dead-letters", admin.DeadLetters)
	}

	if a.OAuth != nil {
		oauthHandler := oauth.NewHandler(a.OAuth, a.Credentials, jwtService, a.logger.Named("oauth"))
		adminGroup.GET("/oauth/youtube/url", oauthHandler.URL)
		router.GET("/oauth/youtube/callback", oauthHandler.Callback)
	}

	return &Server{Router: router}
}

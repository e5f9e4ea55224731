package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/api/handlers"
	"github.com/yoockh/vaihub/internal/api/middleware"
	"github.com/yoockh/vaihub/internal/auth"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/privileged"
)

type Deps struct {
	Logger      *logrus.Logger
	CORSOrigins []string

	Verifier auth.Verifier
	Roles    auth.RoleLookup
	Guard    *privileged.Guard
	Actions  *privileged.Actions

	Profile     *handlers.ProfileHandler
	Marketplace *handlers.MarketplaceHandler
	Chat        *handlers.ChatHandler
	Realtime    *handlers.RealtimeHandler
	Course      *handlers.CourseHandler
	Assistant   *handlers.AssistantHandler
	Admin       *handlers.AdminHandler
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "apikey", "X-Request-Id"}
	cfg.ExposeHeaders = []string{"X-Request-Id"}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))

	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Edge-function compatible endpoints; each one checks its own credential.
	fn := r.Group("/functions/v1")
	d.Actions.Register(fn, d.Guard)
	fn.POST("/ai-assistant", middleware.JWTAuth(d.Verifier), d.Assistant.Complete)

	// Protected routes (JWT)
	authed := r.Group("/")
	authed.Use(middleware.JWTAuth(d.Verifier))

	authed.GET("/profiles/me", d.Profile.Me)
	authed.PUT("/profiles/me", d.Profile.Update)
	authed.POST("/profiles/me/avatar", d.Profile.UploadAvatar)
	authed.POST("/subscription/upgrade", d.Profile.Upgrade)

	authed.GET("/services", d.Marketplace.List)
	authed.GET("/services/:id", d.Marketplace.Get)
	authed.POST("/services", d.Marketplace.Create)
	authed.PUT("/services/:id", d.Marketplace.Update)
	authed.DELETE("/services/:id", d.Marketplace.Delete)

	authed.GET("/chat/messages", d.Chat.List)
	authed.POST("/chat/messages", d.Chat.Send)
	authed.DELETE("/chat/messages/:id", d.Chat.Delete)

	authed.GET("/courses", d.Course.List)
	authed.GET("/courses/:id/lessons", d.Course.Lessons)
	authed.POST("/courses/:id/lessons/:lesson_id/progress", d.Course.ToggleProgress)

	authed.GET("/assistant/conversations", d.Assistant.Conversations)
	authed.GET("/assistant/conversations/:id/messages", d.Assistant.Messages)
	authed.POST("/assistant/messages", d.Assistant.Send)
	authed.POST("/assistant/stream", d.Assistant.Stream)
	authed.POST("/assistant/transcribe", d.Assistant.Transcribe)

	// WebSocket
	authed.GET("/realtime/messages", d.Realtime.Messages)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRole(d.Roles, models.RoleAdmin))
	admin.GET("/overview", d.Admin.Overview)
}

package api

import (
	"github.com/gin-gonic/gin"

	"notification-service/internal/auth"
)

// NewRouter builds the gin engine. Everything under basePath except /health
// requires a valid token.
func NewRouter(h *Handler, verifier auth.Verifier, basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	root := r.Group(basePath)
	root.GET("/health", h.Health)

	authed := root.Group("", Auth(verifier))

	ws := authed.Group("/ws")
	{
		ws.GET("/connect", h.Connect)
		ws.GET("/subscribe/:topic", h.SubscribeTopic)
		ws.GET("/status/:userId", h.ConnectionStatus)
		ws.POST("/disconnect/:userId", h.DisconnectUser)

		admin := ws.Group("", AdminOnly())
		admin.GET("/stats", h.HubStats)
		admin.POST("/test/send-to-user", h.TestSendToUser)
		admin.POST("/test/broadcast", h.TestBroadcast)
	}

	users := authed.Group("/users")
	{
		users.GET("/:userId/preferences", h.GetPreferences)
		users.PUT("/:userId/preferences", h.PutPreferences)
		users.POST("/:userId/preferences", h.PutPreferences)
	}

	templates := authed.Group("/templates", AdminOnly())
	{
		templates.GET("", h.ListTemplates)
		templates.POST("", h.CreateTemplate)
		templates.GET("/:name", h.GetTemplate)
		templates.PUT("/:name", h.UpdateTemplate)
		templates.DELETE("/:name", h.DeleteTemplate)
	}

	notifications := authed.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.POST("/bulk", AdminOnly(), h.SendBulk)
	}

	return r
}

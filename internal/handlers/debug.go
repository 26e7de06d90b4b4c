package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quest-chat-service/internal/live"
	"quest-chat-service/internal/telemetry"
)

// RegisterDebugRoutes wires endpoints used only during rollout checks.
// They stay off unless DEBUG_ROUTES is set.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, broker *live.Broker, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		text := c.DefaultQuery("text", "audit self-test")
		emitter.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/chats/:chat_id/subscribers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"chat_id":     c.Param("chat_id"),
			"subscribers": broker.Subscribers(c.Param("chat_id")),
		})
	})
}

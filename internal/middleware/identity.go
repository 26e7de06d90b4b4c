package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quest-chat-service/internal/models"
)

const callerContextKey = "caller"

// Identity builds the explicit caller object every pipeline operation
// receives. Identity arrives from the trusted gateway in front of this
// service; requests without one are rejected as unauthenticated. Token
// verification itself is the gateway's job, not this service's.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerFromHeaders(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in and try again"})
			return
		}
		c.Set(callerContextKey, caller)
		c.Next()
	}
}

// CallerFrom extracts the caller set by Identity.
func CallerFrom(c *gin.Context) (models.Sender, bool) {
	val, ok := c.Get(callerContextKey)
	if !ok {
		return models.Sender{}, false
	}
	caller, ok := val.(models.Sender)
	return caller, ok
}

func callerFromHeaders(c *gin.Context) (models.Sender, bool) {
	id := strings.TrimSpace(c.GetHeader("X-User-Id"))
	if id == "" {
		return models.Sender{}, false
	}
	caller := models.Sender{
		ID:          id,
		DisplayName: strings.TrimSpace(c.GetHeader("X-User-Name")),
	}
	if caller.DisplayName == "" {
		caller.DisplayName = id
	}
	if photo := strings.TrimSpace(c.GetHeader("X-User-Photo")); photo != "" {
		caller.PhotoURL = &photo
	}
	return caller, true
}

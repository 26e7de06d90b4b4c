package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"quest-chat-service/internal/live"
	"quest-chat-service/internal/models"
	"quest-chat-service/internal/observability"
	"quest-chat-service/internal/repositories"
)

// ChatStreamHandler upgrades conversation subscriptions to websockets and
// pipes broker snapshots to the client. Every delivery carries the full
// ordered message set for the chat.
type ChatStreamHandler struct {
	broker   *live.Broker
	chatRepo repositories.ChatRepository
	logger   *logrus.Logger
}

// NewChatStreamHandler constructs a ChatStreamHandler.
func NewChatStreamHandler(broker *live.Broker, chatRepo repositories.ChatRepository, logger *logrus.Logger) *ChatStreamHandler {
	return &ChatStreamHandler{broker: broker, chatRepo: chatRepo, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and attaches a live subscription.
func (h *ChatStreamHandler) Handle(c *gin.Context) {
	chatID := c.Param("chat_id")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	ctx, span := otel.Tracer("quest-chat-service/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	caller, ok := callerFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in and try again"})
		return
	}

	chat, err := h.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if !chat.HasParticipant(caller.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      caller.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive("chat")
	h.publishWSEvent(chatID, info, "ws_connect", "")

	// gorilla allows a single concurrent writer per connection
	var writeMu sync.Mutex
	unsubscribe := h.broker.Subscribe(chatID, func(msgs []models.Message) {
		writeMu.Lock()
		defer writeMu.Unlock()
		event := models.ChatEvent{Type: "snapshot", ChatID: chatID, Messages: msgs}
		if err := conn.WriteJSON(event); err != nil {
			h.logger.WithError(err).WithField("chat_id", chatID).Debug("websocket write failed")
			h.publishWSEvent(chatID, info, "ws_error", err.Error())
			conn.Close()
			return
		}
		observability.IncLiveSnapshot()
	})

	// the read loop only watches for the client going away
	go func() {
		defer func() {
			unsubscribe()
			observability.DecWSActive("chat")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				reason := err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.publishWSEvent(chatID, info, "ws_error", reason)
				}
				h.publishWSEvent(chatID, info, "ws_disconnect", reason)
				return
			}
		}
	}()
}

func (h *ChatStreamHandler) publishWSEvent(chatID string, info ConnInfo, event, reason string) {
	observability.IncWSEvent("chat", event)
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "chat",
			"chat_id":     chatID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(context.Background(), observability.RoutingKeyWS, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

// callerFromRequest resolves identity from gateway headers, falling back to
// query parameters for browser websocket clients that cannot set headers.
func callerFromRequest(c *gin.Context) (models.Sender, bool) {
	id := strings.TrimSpace(c.GetHeader("X-User-Id"))
	name := strings.TrimSpace(c.GetHeader("X-User-Name"))
	photo := strings.TrimSpace(c.GetHeader("X-User-Photo"))
	if id == "" {
		id = strings.TrimSpace(c.Query("user_id"))
		name = strings.TrimSpace(c.Query("user_name"))
		photo = strings.TrimSpace(c.Query("user_photo"))
	}
	if id == "" {
		return models.Sender{}, false
	}
	caller := models.Sender{ID: id, DisplayName: name}
	if caller.DisplayName == "" {
		caller.DisplayName = id
	}
	if photo != "" {
		caller.PhotoURL = &photo
	}
	return caller, true
}

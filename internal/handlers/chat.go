package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"quest-chat-service/internal/chat"
	"quest-chat-service/internal/errs"
	"quest-chat-service/internal/live"
	"quest-chat-service/internal/middleware"
	"quest-chat-service/internal/models"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// ChatHandler exposes the chat pipeline over HTTP.
type ChatHandler struct {
	lifecycle *chat.Lifecycle
	sender    *chat.Sender
	broker    *live.Broker
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(lifecycle *chat.Lifecycle, sender *chat.Sender, broker *live.Broker) *ChatHandler {
	return &ChatHandler{lifecycle: lifecycle, sender: sender, broker: broker}
}

type replyRefRequest struct {
	MessageID   string `json:"message_id" binding:"required"`
	SenderName  string `json:"sender_name"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

func (r *replyRefRequest) toModel() *models.ReplyRef {
	if r == nil {
		return nil
	}
	return &models.ReplyRef{
		MessageID:   r.MessageID,
		SenderName:  r.SenderName,
		Content:     r.Content,
		MessageType: r.MessageType,
	}
}

// GetOrCreateQuestChat returns the chat bound to a quest, creating it and
// joining the caller on first contact.
func (h *ChatHandler) GetOrCreateQuestChat(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	var req struct {
		QuestTitle string `json:"quest_title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	questChat, created, err := h.lifecycle.GetOrCreateForQuest(c.Request.Context(), c.Param("quest_id"), req.QuestTitle, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, questChat)
}

// ListChats returns the caller's chats, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	chats, err := h.lifecycle.ListForUser(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat returns a single chat the caller participates in.
func (h *ChatHandler) GetChat(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	questChat, err := h.lifecycle.Get(c.Request.Context(), c.Param("chat_id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questChat)
}

// JoinChat adds the caller to the chat's participants. Idempotent.
func (h *ChatHandler) JoinChat(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	questChat, err := h.lifecycle.Join(c.Request.Context(), c.Param("chat_id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questChat)
}

// LeaveChat removes the caller from the chat. The creator gets a conflict.
func (h *ChatHandler) LeaveChat(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	if err := h.lifecycle.Leave(c.Request.Context(), c.Param("chat_id"), caller); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetActive flips the chat lifecycle flag.
func (h *ChatHandler) SetActive(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.lifecycle.SetActive(c.Request.Context(), c.Param("chat_id"), caller, *req.IsActive); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMessages returns the full conversation, oldest first.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}
	chatID := c.Param("chat_id")

	if _, err := h.lifecycle.Get(c.Request.Context(), chatID, caller); err != nil {
		respondError(c, err)
		return
	}

	msgs, err := h.broker.History(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetRecentMessages returns the newest messages, newest first, capped.
func (h *ChatHandler) GetRecentMessages(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}
	chatID := c.Param("chat_id")

	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	if _, err := h.lifecycle.Get(c.Request.Context(), chatID, caller); err != nil {
		respondError(c, err)
		return
	}

	msgs, err := h.broker.Recent(c.Request.Context(), chatID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends a text message.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	var req struct {
		Content string           `json:"content" binding:"required"`
		ReplyTo *replyRefRequest `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.sender.SendMessage(c.Request.Context(), c.Param("chat_id"), caller, req.Content, models.MessageTypeText, req.ReplyTo.toModel())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PostImageMessage uploads a picked image and sends its URL as an image
// message.
func (h *ChatHandler) PostImageMessage(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		respondError(c, errs.ErrMissingFile)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, errs.ErrMissingFile)
		return
	}
	defer file.Close()

	var replyTo *models.ReplyRef
	if raw := c.PostForm("reply_to"); raw != "" {
		var req replyRefRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reply_to payload"})
			return
		}
		replyTo = req.toModel()
	}

	upload := chat.ImageUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      file,
	}
	msg, err := h.sender.UploadAndSendImage(c.Request.Context(), c.Param("chat_id"), caller, upload, replyTo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PostLocationMessage sends an acquired location fix, or the fallback text
// when the client could not acquire one.
func (h *ChatHandler) PostLocationMessage(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		respondError(c, errs.ErrUnauthenticated)
		return
	}

	var req struct {
		Latitude  *float64         `json:"latitude"`
		Longitude *float64         `json:"longitude"`
		ReplyTo   *replyRefRequest `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var coords *models.Coordinates
	if req.Latitude != nil && req.Longitude != nil {
		coords = &models.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	msg, err := h.sender.SendLocationMessage(c.Request.Context(), c.Param("chat_id"), caller, coords, req.ReplyTo.toModel())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func respondError(c *gin.Context, err error) {
	c.JSON(errs.HTTPStatus(err), gin.H{"error": errs.UserMessage(err)})
}

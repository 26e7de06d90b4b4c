package chat

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quest-chat-service/internal/blob"
	"quest-chat-service/internal/errs"
	"quest-chat-service/internal/models"
	"quest-chat-service/internal/observability"
	"quest-chat-service/internal/repositories"
)

const (
	// maxImageBytes bounds image uploads before any store write happens.
	maxImageBytes = 5 << 20

	locationFormat      = "📍 Location: %.6f, %.6f"
	locationUnavailable = "📍 Location unavailable"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// snapshotNotifier wakes live conversation subscribers after a commit.
type snapshotNotifier interface {
	Notify(chatID string)
}

// ImageUpload carries the bytes and metadata of a picked image.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Sender validates, builds, and persists messages, and fans the result out
// to live subscribers and the event bus. Failed sends are not retried or
// queued; the caller decides whether to re-invoke.
type Sender struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	store       blob.Store
	notifier    snapshotNotifier
	logger      *logrus.Logger
}

// NewSender builds a Sender.
func NewSender(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, store blob.Store, notifier snapshotNotifier, logger *logrus.Logger) *Sender {
	return &Sender{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		store:       store,
		notifier:    notifier,
		logger:      logger,
	}
}

// SendMessage validates and persists a single message on behalf of a chat
// participant. A client-captured reply snapshot is embedded verbatim and
// never re-resolved against the referenced message; a bare reply
// reference carrying only a message id is resolved into a snapshot here,
// at send time.
func (s *Sender) SendMessage(ctx context.Context, chatID string, sender models.Sender, content, messageType string, replyTo *models.ReplyRef) (models.Message, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	if !chat.HasParticipant(sender.ID) {
		return models.Message{}, errs.ErrNotAParticipant
	}
	if err := validateContent(content, messageType); err != nil {
		return models.Message{}, err
	}
	replyTo, err = s.resolveReply(ctx, replyTo)
	if err != nil {
		return models.Message{}, err
	}
	return s.persist(ctx, chatID, sender, content, messageType, replyTo)
}

// SendSystemMessage persists a membership system message. System messages
// originate from the service itself, so the actor is not required to still
// be a participant when the message lands.
func (s *Sender) SendSystemMessage(ctx context.Context, chatID string, actor models.Sender, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, errs.ErrEmptyContent
	}
	return s.persist(ctx, chatID, actor, text, models.MessageTypeSystem, nil)
}

// SendLocationMessage formats an acquired location fix, or the fixed
// fallback text when acquisition failed, and sends it as a text message.
func (s *Sender) SendLocationMessage(ctx context.Context, chatID string, sender models.Sender, coords *models.Coordinates, replyTo *models.ReplyRef) (models.Message, error) {
	content := locationUnavailable
	if coords != nil {
		content = fmt.Sprintf(locationFormat, coords.Latitude, coords.Longitude)
	}
	return s.SendMessage(ctx, chatID, sender, content, models.MessageTypeText, replyTo)
}

// UploadAndSendImage uploads the image to the object store under a path
// scoped by chat id and a uniqueness token, then sends the resulting URL
// as an image message. All validation happens before any write. When the
// send fails after a successful upload the blob is deleted best-effort.
func (s *Sender) UploadAndSendImage(ctx context.Context, chatID string, sender models.Sender, upload ImageUpload, replyTo *models.ReplyRef) (models.Message, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	if !chat.HasParticipant(sender.ID) {
		return models.Message{}, errs.ErrNotAParticipant
	}
	if err := validateImageUpload(upload); err != nil {
		return models.Message{}, err
	}
	replyTo, err = s.resolveReply(ctx, replyTo)
	if err != nil {
		return models.Message{}, err
	}

	objectPath := imageObjectPath(chatID, upload.Filename)
	imageURL, err := s.store.Upload(ctx, objectPath, upload.Reader, upload.ContentType)
	if err != nil {
		return models.Message{}, errs.Unavailablef("upload image", err)
	}

	msg, err := s.persist(ctx, chatID, sender, imageURL, models.MessageTypeImage, replyTo)
	if err != nil {
		// best-effort cleanup, a failed delete just orphans the blob
		if delErr := s.store.Delete(ctx, objectPath); delErr != nil {
			s.logger.WithError(delErr).WithField("path", objectPath).Debug("orphaned image blob after failed send")
		}
		return models.Message{}, err
	}
	return msg, nil
}

// resolveReply fills a bare reply reference from the referenced message.
// A reference that already carries its snapshot is returned untouched.
func (s *Sender) resolveReply(ctx context.Context, replyTo *models.ReplyRef) (*models.ReplyRef, error) {
	if replyTo == nil || replyTo.Content != "" || replyTo.SenderName != "" {
		return replyTo, nil
	}
	original, err := s.messageRepo.GetMessage(ctx, replyTo.MessageID)
	if err != nil {
		return nil, err
	}
	return &models.ReplyRef{
		MessageID:   original.ID,
		SenderName:  original.SenderName,
		Content:     original.Content,
		MessageType: original.MessageType,
	}, nil
}

func (s *Sender) persist(ctx context.Context, chatID string, sender models.Sender, content, messageType string, replyTo *models.ReplyRef) (models.Message, error) {
	msg, err := s.messageRepo.CreateMessage(ctx, chatID, sender, content, messageType, replyTo)
	if err != nil {
		return models.Message{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id":      chatID,
		"message_id":   msg.ID,
		"user_id":      sender.ID,
		"message_type": messageType,
	}).Info("message sent")
	observability.IncMessageSent(messageType)

	if s.notifier != nil {
		s.notifier.Notify(chatID)
	}
	_ = observability.PublishEvent(ctx, observability.RoutingKeyMessages, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_sent",
		Payload: map[string]any{
			"chat_id":      chatID,
			"message_id":   msg.ID,
			"sender_id":    sender.ID,
			"message_type": messageType,
			"timestamp":    msg.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}, nil)

	return msg, nil
}

func validateContent(content, messageType string) error {
	switch messageType {
	case models.MessageTypeText, models.MessageTypeSystem:
		if strings.TrimSpace(content) == "" {
			return errs.ErrEmptyContent
		}
	case models.MessageTypeImage:
		u, err := url.Parse(content)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return errs.ErrBadImageURL
		}
	default:
		return errs.ErrUnknownMessageType
	}
	return nil
}

func validateImageUpload(upload ImageUpload) error {
	if upload.Reader == nil || strings.TrimSpace(upload.Filename) == "" {
		return errs.ErrMissingFile
	}
	if upload.Size <= 0 {
		return errs.ErrMissingFile
	}
	if upload.Size > maxImageBytes {
		return errs.ErrImageTooLarge
	}
	if !allowedImageTypes[upload.ContentType] {
		return errs.ErrUnsupportedImage
	}
	return nil
}

func imageObjectPath(chatID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return fmt.Sprintf("chats/%s/%d_%s_%s", chatID, time.Now().UnixNano(), uuid.NewString(), name)
}

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"quest-chat-service/internal/errs"
	"quest-chat-service/internal/models"
	"quest-chat-service/internal/observability"
	"quest-chat-service/internal/repositories"
)

// systemMessenger lets the lifecycle emit membership system messages
// through the normal send pipeline.
type systemMessenger interface {
	SendSystemMessage(ctx context.Context, chatID string, actor models.Sender, text string) (models.Message, error)
}

// Lifecycle creates, locates, and maintains membership of the single chat
// bound to a quest.
type Lifecycle struct {
	chatRepo  repositories.ChatRepository
	messenger systemMessenger
	logger    *logrus.Logger
}

// NewLifecycle builds a Lifecycle.
func NewLifecycle(chatRepo repositories.ChatRepository, messenger systemMessenger, logger *logrus.Logger) *Lifecycle {
	return &Lifecycle{chatRepo: chatRepo, messenger: messenger, logger: logger}
}

// GetOrCreateForQuest returns the chat for a quest, creating it on first
// join. A caller who is not yet a participant of an existing chat is
// joined idempotently.
func (l *Lifecycle) GetOrCreateForQuest(ctx context.Context, questID, questTitle string, caller models.Sender) (models.Chat, bool, error) {
	if strings.TrimSpace(questID) == "" {
		return models.Chat{}, false, errs.Validationf("quest id must not be empty")
	}
	if strings.TrimSpace(questTitle) == "" {
		return models.Chat{}, false, errs.Validationf("quest title must not be empty")
	}

	chat, created, err := l.chatRepo.GetOrCreateChatForQuest(ctx, questID, questTitle, caller.ID)
	if err != nil {
		return models.Chat{}, false, err
	}
	if created {
		l.logger.WithFields(logrus.Fields{"chat_id": chat.ID, "quest_id": questID, "user_id": caller.ID}).Info("chat created for quest")
		observability.IncChatCreated()
		_ = observability.PublishEvent(ctx, observability.RoutingKeyMembership, observability.EventEnvelope{
			EventType: "chat_events",
			EventName: "chat_created",
			Payload:   membershipPayload(chat.ID, questID, caller.ID),
		}, nil)
		return chat, true, nil
	}

	if !chat.HasParticipant(caller.ID) {
		chat, err = l.join(ctx, chat.ID, caller)
		if err != nil {
			return models.Chat{}, false, err
		}
	}
	return chat, false, nil
}

// Join adds the caller to a chat's participants. A no-op when already a
// member.
func (l *Lifecycle) Join(ctx context.Context, chatID string, caller models.Sender) (models.Chat, error) {
	return l.join(ctx, chatID, caller)
}

func (l *Lifecycle) join(ctx context.Context, chatID string, caller models.Sender) (models.Chat, error) {
	added, err := l.chatRepo.AddParticipant(ctx, chatID, caller.ID)
	if err != nil {
		return models.Chat{}, err
	}
	if added {
		l.logger.WithFields(logrus.Fields{"chat_id": chatID, "user_id": caller.ID}).Info("participant joined chat")
		_ = observability.PublishEvent(ctx, observability.RoutingKeyMembership, observability.EventEnvelope{
			EventType: "chat_events",
			EventName: "participant_added",
			Payload:   membershipPayload(chatID, "", caller.ID),
		}, nil)
		if _, err := l.messenger.SendSystemMessage(ctx, chatID, caller, fmt.Sprintf("%s joined the quest chat", caller.DisplayName)); err != nil {
			l.logger.WithError(err).WithField("chat_id", chatID).Warn("failed to send join system message")
		}
	}
	return l.chatRepo.GetChat(ctx, chatID)
}

// Leave removes the caller from the chat. The creator can never leave
// their own chat through this path. Leaving a chat the caller was never
// in is a no-op with no side effects: only a real departure logs,
// publishes, and announces itself.
func (l *Lifecycle) Leave(ctx context.Context, chatID string, caller models.Sender) error {
	removed, err := l.chatRepo.RemoveParticipant(ctx, chatID, caller.ID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	l.logger.WithFields(logrus.Fields{"chat_id": chatID, "user_id": caller.ID}).Info("participant left chat")
	_ = observability.PublishEvent(ctx, observability.RoutingKeyMembership, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "participant_removed",
		Payload:   membershipPayload(chatID, "", caller.ID),
	}, nil)
	if _, err := l.messenger.SendSystemMessage(ctx, chatID, caller, fmt.Sprintf("%s left the quest chat", caller.DisplayName)); err != nil {
		l.logger.WithError(err).WithField("chat_id", chatID).Warn("failed to send leave system message")
	}
	return nil
}

// SetActive flips the chat lifecycle flag. Participants only.
func (l *Lifecycle) SetActive(ctx context.Context, chatID string, caller models.Sender, isActive bool) error {
	chat, err := l.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(caller.ID) {
		return errs.ErrNotAParticipant
	}
	return l.chatRepo.SetActive(ctx, chatID, isActive)
}

// Get fetches a chat the caller participates in.
func (l *Lifecycle) Get(ctx context.Context, chatID string, caller models.Sender) (models.Chat, error) {
	chat, err := l.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.HasParticipant(caller.ID) {
		return models.Chat{}, errs.ErrNotAParticipant
	}
	return chat, nil
}

// ListForUser returns the caller's chats, most recently active first.
func (l *Lifecycle) ListForUser(ctx context.Context, caller models.Sender) ([]models.Chat, error) {
	return l.chatRepo.ListChatsForUser(ctx, caller.ID)
}

func membershipPayload(chatID, questID, userID string) map[string]any {
	payload := map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}
	if questID != "" {
		payload["quest_id"] = questID
	}
	return payload
}

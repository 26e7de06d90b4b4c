package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"quest-chat-service/internal/errs"
	"quest-chat-service/internal/models"
)

const chatColumns = `id, quest_id, quest_title, participants, last_message, last_message_at, last_message_by, is_active, created_by, created_at, updated_at`

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	GetOrCreateChatForQuest(ctx context.Context, questID, questTitle, userID string) (models.Chat, bool, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	AddParticipant(ctx context.Context, chatID, userID string) (bool, error)
	RemoveParticipant(ctx context.Context, chatID, userID string) (bool, error)
	SetActive(ctx context.Context, chatID string, isActive bool) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// GetOrCreateChatForQuest returns the single chat bound to a quest,
// creating it when absent. The unique constraint on quest_id makes the
// create-if-absent step safe under concurrent first joiners: the loser of
// the race observes a conflict and falls through to the existing row.
// The second return value reports whether a new chat was created.
func (r *ChatRepo) GetOrCreateChatForQuest(ctx context.Context, questID, questTitle, userID string) (models.Chat, bool, error) {
	var chat models.Chat
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO chats (id, quest_id, quest_title, participants, created_by)
         VALUES ($1, $2, $3, $4, $5)
         ON CONFLICT (quest_id) DO NOTHING
         RETURNING `+chatColumns,
		uuid.NewString(), questID, questTitle, pq.StringArray{userID}, userID).
		StructScan(&chat)
	if err == nil {
		return chat, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	err = r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE quest_id=$1`, questID)
	if errors.Is(err, sql.ErrNoRows) {
		// conflicting row vanished between the insert and the read
		return models.Chat{}, false, errs.ErrChatNotFound
	}
	return chat, false, err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, errs.ErrChatNotFound
	}
	return chat, err
}

// ListChatsForUser returns chats containing the user, most recently active
// first. Chats with no messages yet sort by creation time.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats,
		`SELECT `+chatColumns+` FROM chats
         WHERE $1 = ANY(participants)
         ORDER BY COALESCE(last_message_at, created_at) DESC`, userID)
	return chats, err
}

// AddParticipant unions the user into participants. Idempotent: a second
// call with the same pair is a no-op. Reports whether the user was newly
// added.
func (r *ChatRepo) AddParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET participants = array_append(participants, $2), updated_at = NOW()
         WHERE id=$1 AND NOT ($2 = ANY(participants))`, chatID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	// either already a participant or the chat does not exist
	if _, err := r.GetChat(ctx, chatID); err != nil {
		return false, err
	}
	return false, nil
}

// RemoveParticipant removes the user from participants if present. The
// creator may never be removed through this path. Reports whether the
// user was actually removed, so removing an absent member is a no-op the
// caller can distinguish from a real departure.
func (r *ChatRepo) RemoveParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET participants = array_remove(participants, $2), updated_at = NOW()
         WHERE id=$1 AND created_by <> $2 AND $2 = ANY(participants)`, chatID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if chat.CreatedBy == userID {
		return false, errs.ErrCreatorCannotLeave
	}
	return false, nil
}

// SetActive flips the lifecycle flag.
func (r *ChatRepo) SetActive(ctx context.Context, chatID string, isActive bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET is_active = $2, updated_at = NOW() WHERE id=$1`, chatID, isActive)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return errs.ErrChatNotFound
	}
	return nil
}

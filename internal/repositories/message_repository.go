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

const messageColumns = `id, chat_id, sender_id, sender_name, sender_photo_url, content, message_type, ts, is_edited, edited_at, reactions, reply_to`

// foreign key violation
const pqErrForeignKey = "23503"

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID string, sender models.Sender, content, messageType string, replyTo *models.ReplyRef) (models.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	RecentMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message and projects it onto the parent chat's
// summary fields in one transaction, so the summary can never diverge from
// the true last message past a successful send. The timestamp is assigned
// by the database clock, never by the caller.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID string, sender models.Sender, content, messageType string, replyTo *models.ReplyRef) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, sender_name, sender_photo_url, content, message_type, reply_to)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING `+messageColumns,
		uuid.NewString(), chatID, sender.ID, sender.DisplayName, sender.PhotoURL, content, messageType, replyTo).
		StructScan(&msg)
	if err != nil {
		if isForeignKeyViolation(err) {
			err = errs.ErrChatNotFound
		}
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE chats SET last_message = $2, last_message_at = $3, last_message_by = $4, updated_at = NOW()
         WHERE id=$1`, chatID, msg.Content, msg.Timestamp, msg.SenderID); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns the full conversation ordered by timestamp. Equal
// timestamps keep the order the store returns.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY ts ASC`, chatID)
	return msgs, err
}

// RecentMessages returns the most recent messages, newest first, capped at
// limit. This is a one-shot read, not a live subscription.
func (r *MessageRepo) RecentMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY ts DESC LIMIT $2`, chatID, limit)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, errs.ErrMessageNotFound
	}
	return msg, err
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqErrForeignKey
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Message types. Location messages are sent as plain text.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)

// ReplyRef is the denormalized snapshot of the message being replied to,
// captured at reply time. It is never re-resolved against the original.
type ReplyRef struct {
	MessageID   string `json:"message_id"`
	SenderName  string `json:"sender_name"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

// Value implements driver.Valuer so a ReplyRef persists as JSONB.
func (r ReplyRef) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB columns.
func (r *ReplyRef) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	case nil:
		return nil
	}
	return errors.New("reply ref: unsupported scan source")
}

// Reactions maps user id to reaction symbol. Reserved: no mutation path
// populates it yet.
type Reactions map[string]string

func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *Reactions) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	case nil:
		return nil
	}
	return errors.New("reactions: unsupported scan source")
}

// Message is one entry in a chat's conversation. Timestamp is assigned by
// the store on write and is the sole conversation sort key.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ChatID         string     `db:"chat_id" json:"chat_id"`
	SenderID       string     `db:"sender_id" json:"sender_id"`
	SenderName     string     `db:"sender_name" json:"sender_name"`
	SenderPhotoURL *string    `db:"sender_photo_url" json:"sender_photo_url,omitempty"`
	Content        string     `db:"content" json:"content"`
	MessageType    string     `db:"message_type" json:"message_type"`
	Timestamp      time.Time  `db:"ts" json:"timestamp"`
	IsEdited       bool       `db:"is_edited" json:"is_edited"`
	EditedAt       *time.Time `db:"edited_at" json:"edited_at,omitempty"`
	Reactions      Reactions  `db:"reactions" json:"reactions,omitempty"`
	ReplyTo        *ReplyRef  `db:"reply_to" json:"reply_to,omitempty"`
}

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type     string    `json:"type"`
	ChatID   string    `json:"chat_id"`
	Messages []Message `json:"messages,omitempty"`
}

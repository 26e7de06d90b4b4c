package models

import (
	"time"

	"github.com/lib/pq"
)

// Chat is the single conversation bound to a quest. One chat per quest,
// enforced by a unique constraint on quest_id.
type Chat struct {
	ID            string         `db:"id" json:"id"`
	QuestID       string         `db:"quest_id" json:"quest_id"`
	QuestTitle    string         `db:"quest_title" json:"quest_title"`
	Participants  pq.StringArray `db:"participants" json:"participants"`
	LastMessage   *string        `db:"last_message" json:"last_message,omitempty"`
	LastMessageAt *time.Time     `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessageBy *string        `db:"last_message_by" json:"last_message_by,omitempty"`
	IsActive      bool           `db:"is_active" json:"is_active"`
	CreatedBy     string         `db:"created_by" json:"created_by"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// HasParticipant checks membership by containment.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

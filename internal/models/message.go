package models

import "time"

// Message represents a chat message. IDs are 64-bit, time-ordered, and
// globally unique, so they double as the sort key within a channel.
type Message struct {
	ID        int64      `json:"id"`
	ChannelID string     `json:"channel_id"`
	AuthorID  string     `json:"author_id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	Deleted   bool       `json:"deleted"`
	Author    *User      `json:"author,omitempty"`
}

// Tombstone marks the message deleted in place. The record keeps its slot
// so surrounding messages keep their positions.
func (m *Message) Tombstone() {
	m.Deleted = true
	m.Content = ""
}

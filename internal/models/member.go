package models

import "time"

// PresenceStatus is a member's live presence.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceIdle    PresenceStatus = "idle"
	PresenceDND     PresenceStatus = "dnd"
	PresenceOffline PresenceStatus = "offline"
)

// Member is a user's membership in one server. Identity is the
// (UserID, ServerID) pair.
type Member struct {
	UserID   string         `json:"user_id"`
	ServerID string         `json:"server_id"`
	Nickname *string        `json:"nickname,omitempty"`
	Roles    []string       `json:"roles"`
	JoinedAt time.Time      `json:"joined_at"`
	Presence PresenceStatus `json:"presence"`
	Profile  *User          `json:"profile,omitempty"`
}

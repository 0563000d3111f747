package models

// ChannelKind distinguishes text channels from voice channels.
type ChannelKind string

const (
	ChannelText  ChannelKind = "text"
	ChannelVoice ChannelKind = "voice"
)

// Channel is a text or voice channel within a server.
type Channel struct {
	ID       string      `json:"id"`
	ServerID string      `json:"server_id"`
	Name     string      `json:"name"`
	Kind     ChannelKind `json:"kind"`
	Position int         `json:"position"`
}

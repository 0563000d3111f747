package models

// VoiceParticipant is one user's occupancy of one voice channel. At most
// one entry exists per (ChannelID, UserID) pair.
type VoiceParticipant struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Muted     bool   `json:"muted"`
	Deafened  bool   `json:"deafened"`
	Profile   *User  `json:"profile,omitempty"`
}

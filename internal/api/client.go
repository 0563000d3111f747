// Package api defines the request/response contract to a single host and
// its HTTP implementation. Reconcilers and the connection registry depend
// on the Client interface only, so tests substitute fakes freely.
package api

import (
	"context"

	"github.com/ItsKorayYT/antarcticom/internal/models"
)

// Session is the result of a successful login or registration.
type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// MemberPatch carries the mutable roster fields of a member. Nil fields are
// left unchanged by the host.
type MemberPatch struct {
	Nickname *string  `json:"nickname,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// VoiceStatePatch carries the local user's mute/deafen flags.
type VoiceStatePatch struct {
	Muted    bool `json:"muted"`
	Deafened bool `json:"deafened"`
}

// Client is the request/response half of a host connection. Every call
// returns either a result or an *Error; transport failures surface as
// KindUnreachable, credential failures as KindUnauthorized.
type Client interface {
	// SetToken swaps the bearer credential used for subsequent calls.
	SetToken(token string)

	Login(ctx context.Context, username, password string) (*Session, error)
	Register(ctx context.Context, username, password string) (*Session, error)
	InstanceInfo(ctx context.Context) (*models.InstanceInfo, error)

	Servers(ctx context.Context) ([]models.Server, error)
	CreateServer(ctx context.Context, name string) (*models.Server, error)
	JoinServer(ctx context.Context, serverID string) error

	Channels(ctx context.Context, serverID string) ([]models.Channel, error)
	CreateChannel(ctx context.Context, serverID, name string, kind models.ChannelKind) (*models.Channel, error)

	Roles(ctx context.Context, serverID string) ([]models.Role, error)
	CreateRole(ctx context.Context, serverID, name string) (*models.Role, error)

	// Messages returns up to limit messages, newest first.
	Messages(ctx context.Context, channelID string, limit int) ([]models.Message, error)
	SendMessage(ctx context.Context, channelID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, channelID string, messageID int64) error

	Members(ctx context.Context, serverID string) ([]models.Member, error)
	Member(ctx context.Context, serverID, userID string) (*models.Member, error)
	PatchMember(ctx context.Context, serverID, userID string, patch MemberPatch) (*models.Member, error)

	VoiceParticipants(ctx context.Context, channelID string) ([]models.VoiceParticipant, error)
	JoinVoice(ctx context.Context, channelID string) error
	LeaveVoice(ctx context.Context, channelID string) error
	UpdateVoice(ctx context.Context, channelID string, patch VoiceStatePatch) error

	UploadAvatar(ctx context.Context, data []byte, contentType string) (*models.User, error)
}

package protocol

import (
	"encoding/json"

	"github.com/ItsKorayYT/antarcticom/internal/models"
)

// EventType identifies a push-event frame.
type EventType string

const (
	// Client -> Server
	TypeIdentify EventType = "Identify"

	// Server -> Client
	TypeMessageCreate    EventType = "MessageCreate"
	TypeMessageDelete    EventType = "MessageDelete"
	TypeMemberJoin       EventType = "MemberJoin"
	TypeMemberUpdate     EventType = "MemberUpdate"
	TypeMemberLeave      EventType = "MemberLeave"
	TypePresenceUpdate   EventType = "PresenceUpdate"
	TypeVoiceStateUpdate EventType = "VoiceStateUpdate"
	TypeUserUpdate       EventType = "UserUpdate"

	// TypeUnknown is assigned to any inbound frame whose tag is not one of
	// the types above. Unknown frames are carried, not rejected, so newer
	// hosts can emit events older clients skip over.
	TypeUnknown EventType = "Unknown"
)

// Envelope wraps every frame on the event stream with a type tag.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IdentifyData carries the bearer token sent as the first frame after the
// transport opens.
type IdentifyData struct {
	Token string `json:"token"`
}

// MessageDeleteData locates a message to tombstone.
type MessageDeleteData struct {
	ID        int64  `json:"id"`
	ChannelID string `json:"channel_id"`
}

// MemberLeaveData removes a member from a server roster.
type MemberLeaveData struct {
	UserID   string `json:"user_id"`
	ServerID string `json:"server_id"`
}

// PresenceUpdateData carries a presence transition for one user. It never
// carries roster fields; the member reconciler must touch presence only.
type PresenceUpdateData struct {
	UserID   string                `json:"user_id"`
	Presence models.PresenceStatus `json:"presence"`
}

// VoiceStateData reports one user joining or leaving a voice channel,
// along with their mute/deafen flags while joined.
type VoiceStateData struct {
	UserID    string       `json:"user_id"`
	ChannelID string       `json:"channel_id"`
	Joined    bool         `json:"joined"`
	Muted     bool         `json:"muted"`
	Deafened  bool         `json:"deafened"`
	Profile   *models.User `json:"profile,omitempty"`
}

// Event is the decoded form of an inbound frame: the type tag plus exactly
// one populated payload field. Unknown tags decode to TypeUnknown with the
// raw payload preserved.
type Event struct {
	Type EventType

	Message  *models.Message    // TypeMessageCreate
	Delete   *MessageDeleteData // TypeMessageDelete
	Member   *models.Member     // TypeMemberJoin, TypeMemberUpdate
	Leave    *MemberLeaveData   // TypeMemberLeave
	Presence *PresenceUpdateData
	Voice    *VoiceStateData
	User     *models.User // TypeUserUpdate

	Raw json.RawMessage // TypeUnknown
}

// NewEnvelope creates an envelope with the given type and payload.
func NewEnvelope(eventType EventType, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: eventType, Data: raw}, nil
}

// MarshalFrame encodes the envelope to its wire form.
func (e *Envelope) MarshalFrame() ([]byte, error) {
	return json.Marshal(e)
}

// Identify builds the identify frame carrying the credential.
func Identify(token string) *Envelope {
	raw, _ := json.Marshal(IdentifyData{Token: token})
	return &Envelope{Type: TypeIdentify, Data: raw}
}

// DecodeEvent parses a raw frame into a typed Event. A frame whose type tag
// is not recognized decodes to TypeUnknown; an error is returned only when
// the envelope itself or a known type's payload is malformed.
func DecodeEvent(data []byte) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	ev := &Event{Type: env.Type}
	switch env.Type {
	case TypeMessageCreate:
		ev.Message = &models.Message{}
		if err := json.Unmarshal(env.Data, ev.Message); err != nil {
			return nil, err
		}
	case TypeMessageDelete:
		ev.Delete = &MessageDeleteData{}
		if err := json.Unmarshal(env.Data, ev.Delete); err != nil {
			return nil, err
		}
	case TypeMemberJoin, TypeMemberUpdate:
		ev.Member = &models.Member{}
		if err := json.Unmarshal(env.Data, ev.Member); err != nil {
			return nil, err
		}
	case TypeMemberLeave:
		ev.Leave = &MemberLeaveData{}
		if err := json.Unmarshal(env.Data, ev.Leave); err != nil {
			return nil, err
		}
	case TypePresenceUpdate:
		ev.Presence = &PresenceUpdateData{}
		if err := json.Unmarshal(env.Data, ev.Presence); err != nil {
			return nil, err
		}
	case TypeVoiceStateUpdate:
		ev.Voice = &VoiceStateData{}
		if err := json.Unmarshal(env.Data, ev.Voice); err != nil {
			return nil, err
		}
	case TypeUserUpdate:
		ev.User = &models.User{}
		if err := json.Unmarshal(env.Data, ev.User); err != nil {
			return nil, err
		}
	default:
		ev.Type = TypeUnknown
		ev.Raw = env.Data
	}
	return ev, nil
}

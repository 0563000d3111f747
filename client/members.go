package client

import (
	"context"
	"sync"

	"github.com/ItsKorayYT/antarcticom/internal/api"
	"github.com/ItsKorayYT/antarcticom/internal/models"
	"github.com/ItsKorayYT/antarcticom/internal/protocol"
)

// RosterView reconciles one server's member roster with presence.
type RosterView struct {
	api api.Client

	mu       sync.RWMutex
	serverID string
	members  []models.Member
}

// NewRosterView creates a member reconciler backed by one host's request
// client.
func NewRosterView(client api.Client) *RosterView {
	return &RosterView{api: client}
}

// Fetch replaces the full roster for a server.
func (v *RosterView) Fetch(ctx context.Context, serverID string) error {
	members, err := v.api.Members(ctx, serverID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.serverID = serverID
	v.members = members
	v.mu.Unlock()
	return nil
}

// Clear drops the roster when its owning view ends.
func (v *RosterView) Clear() {
	v.mu.Lock()
	v.serverID = ""
	v.members = nil
	v.mu.Unlock()
}

// Members returns a copy of the roster.
func (v *RosterView) Members() []models.Member {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.Member, len(v.members))
	copy(out, v.members)
	return out
}

// Member returns the roster entry for a user, or nil.
func (v *RosterView) Member(userID string) *models.Member {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for i := range v.members {
		if v.members[i].UserID == userID {
			m := v.members[i]
			return &m
		}
	}
	return nil
}

// UpdateMember patches a member on the host and merges the result locally,
// preserving known presence the same way a pushed MemberUpdate would.
func (v *RosterView) UpdateMember(ctx context.Context, userID string, patch api.MemberPatch) error {
	v.mu.RLock()
	serverID := v.serverID
	v.mu.RUnlock()
	if serverID == "" {
		return api.NewError(api.KindValidation, "no roster open", nil)
	}
	updated, err := v.api.PatchMember(ctx, serverID, userID, patch)
	if err != nil {
		return err
	}
	v.mergeUpdate(updated)
	return nil
}

// Apply folds one push event into the roster.
func (v *RosterView) Apply(ev *protocol.Event) {
	switch ev.Type {
	case protocol.TypeMemberJoin:
		v.insert(ev.Member)
	case protocol.TypeMemberUpdate:
		v.mergeUpdate(ev.Member)
	case protocol.TypeMemberLeave:
		v.remove(ev.Leave.UserID, ev.Leave.ServerID)
	case protocol.TypePresenceUpdate:
		v.setPresence(ev.Presence.UserID, ev.Presence.Presence)
	}
}

// insert adds a member unless an entry for the user already exists.
func (v *RosterView) insert(member *models.Member) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.serverID == "" || member.ServerID != v.serverID {
		return
	}
	for i := range v.members {
		if v.members[i].UserID == member.UserID {
			return
		}
	}
	v.members = append(v.members, *member)
}

// mergeUpdate replaces a member's roster fields. The update payload does
// not carry live presence, so the previously known presence is preserved.
func (v *RosterView) mergeUpdate(member *models.Member) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.serverID == "" || member.ServerID != v.serverID {
		return
	}
	for i := range v.members {
		if v.members[i].UserID == member.UserID {
			presence := v.members[i].Presence
			v.members[i] = *member
			v.members[i].Presence = presence
			return
		}
	}
}

func (v *RosterView) remove(userID, serverID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.serverID == "" || serverID != v.serverID {
		return
	}
	for i := range v.members {
		if v.members[i].UserID == userID {
			v.members = append(v.members[:i], v.members[i+1:]...)
			return
		}
	}
}

// setPresence mutates only the presence field of a matching member.
func (v *RosterView) setPresence(userID string, presence models.PresenceStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.members {
		if v.members[i].UserID == userID {
			v.members[i].Presence = presence
			return
		}
	}
}

// Run consumes events until ctx is canceled or the channel closes.
func (v *RosterView) Run(ctx context.Context, events <-chan *protocol.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			v.Apply(ev)
		}
	}
}

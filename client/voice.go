package client

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/ItsKorayYT/antarcticom/internal/api"
	"github.com/ItsKorayYT/antarcticom/internal/models"
	"github.com/ItsKorayYT/antarcticom/internal/protocol"
)

// VoiceView reconciles voice-channel occupancy for one host and tracks
// the local user's own session. The local session is a process singleton:
// an empty current channel is the terminal not-in-voice state.
type VoiceView struct {
	api api.Client

	mu           sync.RWMutex
	participants map[string][]models.VoiceParticipant // channelID -> occupants
	current      string                               // channel the local user is in, "" when not in voice
	muted        bool
	deafened     bool
}

// NewVoiceView creates a voice reconciler backed by one host's request
// client.
func NewVoiceView(client api.Client) *VoiceView {
	return &VoiceView{
		api:          client,
		participants: make(map[string][]models.VoiceParticipant),
	}
}

// Fetch replaces the participant list for one channel.
func (v *VoiceView) Fetch(ctx context.Context, channelID string) error {
	participants, err := v.api.VoiceParticipants(ctx, channelID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	if len(participants) == 0 {
		delete(v.participants, channelID)
	} else {
		v.participants[channelID] = participants
	}
	v.mu.Unlock()
	return nil
}

// Participants returns a copy of a channel's occupant list.
func (v *VoiceView) Participants(channelID string) []models.VoiceParticipant {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.VoiceParticipant, len(v.participants[channelID]))
	copy(out, v.participants[channelID])
	return out
}

// OccupiedChannels returns the channels that currently have participants.
func (v *VoiceView) OccupiedChannels() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	channels := make([]string, 0, len(v.participants))
	for id := range v.participants {
		channels = append(channels, id)
	}
	return channels
}

// Current returns the channel the local user is in, or "".
func (v *VoiceView) Current() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Muted reports the local mute flag.
func (v *VoiceView) Muted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.muted
}

// Deafened reports the local deafen flag.
func (v *VoiceView) Deafened() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.deafened
}

// Join enters a voice channel. Joining the channel the user is already in
// toggles off: it leaves instead.
func (v *VoiceView) Join(ctx context.Context, channelID string) error {
	v.mu.RLock()
	current := v.current
	v.mu.RUnlock()

	if current == channelID {
		return v.Leave(ctx)
	}

	if err := v.api.JoinVoice(ctx, channelID); err != nil {
		return err
	}
	v.mu.Lock()
	v.current = channelID
	v.mu.Unlock()
	return nil
}

// Leave exits the current voice channel.
func (v *VoiceView) Leave(ctx context.Context) error {
	v.mu.RLock()
	current := v.current
	v.mu.RUnlock()
	if current == "" {
		return nil
	}
	if err := v.api.LeaveVoice(ctx, current); err != nil {
		return err
	}
	v.mu.Lock()
	v.current = ""
	v.mu.Unlock()
	return nil
}

// SetMuted toggles the local mute flag optimistically, rolling back if the
// host rejects the update.
func (v *VoiceView) SetMuted(ctx context.Context, muted bool) error {
	return v.patchSession(ctx, func(s *api.VoiceStatePatch) { s.Muted = muted })
}

// SetDeafened toggles the local deafen flag optimistically, rolling back
// if the host rejects the update.
func (v *VoiceView) SetDeafened(ctx context.Context, deafened bool) error {
	return v.patchSession(ctx, func(s *api.VoiceStatePatch) { s.Deafened = deafened })
}

func (v *VoiceView) patchSession(ctx context.Context, mutate func(*api.VoiceStatePatch)) error {
	v.mu.Lock()
	current := v.current
	prevMuted, prevDeafened := v.muted, v.deafened
	patch := api.VoiceStatePatch{Muted: v.muted, Deafened: v.deafened}
	mutate(&patch)
	v.muted, v.deafened = patch.Muted, patch.Deafened
	v.mu.Unlock()

	if current == "" {
		// Not in voice: the flags are local-only until the next join.
		return nil
	}
	if err := v.api.UpdateVoice(ctx, current, patch); err != nil {
		v.mu.Lock()
		v.muted, v.deafened = prevMuted, prevDeafened
		v.mu.Unlock()
		glog.V(1).Infof("voice state update rejected, rolled back: %v", err)
		return err
	}
	return nil
}

// Apply folds one push event into the occupancy map.
func (v *VoiceView) Apply(ev *protocol.Event) {
	if ev.Type != protocol.TypeVoiceStateUpdate {
		return
	}
	state := ev.Voice

	v.mu.Lock()
	defer v.mu.Unlock()

	// Remove any prior entry for this user in this channel; a join is an
	// upsert (last write wins) and a leave ends there.
	occupants := v.participants[state.ChannelID]
	for i := range occupants {
		if occupants[i].UserID == state.UserID {
			occupants = append(occupants[:i], occupants[i+1:]...)
			break
		}
	}

	if state.Joined {
		occupants = append(occupants, models.VoiceParticipant{
			UserID:    state.UserID,
			ChannelID: state.ChannelID,
			Muted:     state.Muted,
			Deafened:  state.Deafened,
			Profile:   state.Profile,
		})
	}

	// Channels with no occupants drop their key entirely.
	if len(occupants) == 0 {
		delete(v.participants, state.ChannelID)
	} else {
		v.participants[state.ChannelID] = occupants
	}
}

// Run consumes events until ctx is canceled or the channel closes.
func (v *VoiceView) Run(ctx context.Context, events <-chan *protocol.Event) {
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

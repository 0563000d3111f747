package client

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/ItsKorayYT/antarcticom/internal/api"
	"github.com/ItsKorayYT/antarcticom/internal/db"
	"github.com/ItsKorayYT/antarcticom/internal/models"
	"github.com/ItsKorayYT/antarcticom/internal/protocol"
)

// fetchLimit is how much history Open pulls for a channel.
const fetchLimit = 100

// MessageView reconciles one host's channel history: an authoritative
// fetch seeds the snapshot, then push events and request results are
// merged in. The snapshot is ordered oldest-first for display.
type MessageView struct {
	host  string
	api   api.Client
	store *db.Store // optional offline cache

	mu        sync.RWMutex
	channelID string // currently-open channel, "" when closed
	messages  []models.Message
}

// NewMessageView creates a message reconciler for one host. The store is
// optional; when present, fetched and pushed messages are cached so
// history stays readable while the host is unreachable.
func NewMessageView(host string, client api.Client, store *db.Store) *MessageView {
	return &MessageView{host: host, api: client, store: store}
}

// Open fetches a channel's history and replaces the snapshot. The host
// returns newest-first; the snapshot is stored reversed. When the host is
// unreachable and a cache holds prior history, the cached copy is served
// instead of failing.
func (v *MessageView) Open(ctx context.Context, channelID string) error {
	fetched, err := v.api.Messages(ctx, channelID, fetchLimit)
	if err != nil {
		if api.KindOf(err) == api.KindUnreachable && v.store != nil {
			cached, cacheErr := v.store.CachedMessages(v.host, channelID, fetchLimit)
			if cacheErr == nil && len(cached) > 0 {
				glog.Infof("%s unreachable, serving %d cached messages for %s", v.host, len(cached), channelID)
				v.replace(channelID, cached)
				return nil
			}
		}
		return err
	}

	// Newest-first on the wire, oldest-first for display.
	for i, j := 0, len(fetched)-1; i < j; i, j = i+1, j-1 {
		fetched[i], fetched[j] = fetched[j], fetched[i]
	}
	v.replace(channelID, fetched)

	if v.store != nil {
		for i := range fetched {
			if err := v.store.CacheMessage(v.host, &fetched[i]); err != nil {
				glog.V(1).Infof("failed to cache message %d: %v", fetched[i].ID, err)
				break
			}
		}
	}
	return nil
}

func (v *MessageView) replace(channelID string, messages []models.Message) {
	v.mu.Lock()
	v.channelID = channelID
	v.messages = messages
	v.mu.Unlock()
}

// Close clears the snapshot when the channel view ends.
func (v *MessageView) Close() {
	v.mu.Lock()
	v.channelID = ""
	v.messages = nil
	v.mu.Unlock()
}

// ChannelID returns the currently-open channel, or "".
func (v *MessageView) ChannelID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.channelID
}

// Messages returns a copy of the snapshot, oldest-first.
func (v *MessageView) Messages() []models.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Send posts a message to the open channel. The snapshot is appended only
// once the response or the echoed push event arrives, whichever comes
// first; the other copy is reconciled by id.
func (v *MessageView) Send(ctx context.Context, content string) (*models.Message, error) {
	v.mu.RLock()
	channelID := v.channelID
	v.mu.RUnlock()
	if channelID == "" {
		return nil, api.NewError(api.KindValidation, "no channel open", nil)
	}

	sent, err := v.api.SendMessage(ctx, channelID, content)
	if err != nil {
		return nil, err
	}
	v.upsert(sent, false)
	return sent, nil
}

// Delete tombstones a message on the host; the local tombstone is applied
// immediately and again, idempotently, when the push event echoes back.
func (v *MessageView) Delete(ctx context.Context, messageID int64) error {
	v.mu.RLock()
	channelID := v.channelID
	v.mu.RUnlock()
	if channelID == "" {
		return api.NewError(api.KindValidation, "no channel open", nil)
	}
	if err := v.api.DeleteMessage(ctx, channelID, messageID); err != nil {
		return err
	}
	v.tombstone(channelID, messageID)
	return nil
}

// upsert merges one message into the snapshot. A message whose id is
// already present occupies exactly one slot; fromEvent decides whether the
// existing copy is overwritten, since the event-sourced copy is the
// eventually-consistent one.
func (v *MessageView) upsert(msg *models.Message, fromEvent bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.channelID == "" || msg.ChannelID != v.channelID {
		return
	}
	for i := range v.messages {
		if v.messages[i].ID == msg.ID {
			if fromEvent {
				v.messages[i] = *msg
			}
			return
		}
	}
	v.messages = append(v.messages, *msg)
}

func (v *MessageView) tombstone(channelID string, messageID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.channelID != channelID {
		return
	}
	for i := range v.messages {
		if v.messages[i].ID == messageID {
			v.messages[i].Tombstone()
			return
		}
	}
}

// Apply folds one push event into the snapshot. Events for other channels
// and unknown kinds are ignored.
func (v *MessageView) Apply(ev *protocol.Event) {
	switch ev.Type {
	case protocol.TypeMessageCreate:
		v.upsert(ev.Message, true)
		if v.store != nil {
			if err := v.store.CacheMessage(v.host, ev.Message); err != nil {
				glog.V(1).Infof("failed to cache message %d: %v", ev.Message.ID, err)
			}
		}
	case protocol.TypeMessageDelete:
		v.tombstone(ev.Delete.ChannelID, ev.Delete.ID)
	case protocol.TypeUserUpdate:
		v.rewriteAuthor(ev.User)
	}
}

// rewriteAuthor refreshes the denormalized author snapshot on every
// historical message the user wrote.
func (v *MessageView) rewriteAuthor(user *models.User) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.messages {
		if v.messages[i].AuthorID == user.ID {
			profile := *user
			v.messages[i].Author = &profile
		}
	}
}

// Run consumes events until ctx is canceled or the channel closes.
func (v *MessageView) Run(ctx context.Context, events <-chan *protocol.Event) {
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

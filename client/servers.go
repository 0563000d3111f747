package client

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"github.com/ItsKorayYT/antarcticom/internal/api"
	"github.com/ItsKorayYT/antarcticom/internal/models"
)

// Directory reconciles the server and channel listings visible across
// every joined host. Records observed from several hosts are merged by
// server id, and the first host a server was seen on stays its affinity:
// writes for that server are routed to that host's request client.
type Directory struct {
	registry *Registry

	mu       sync.RWMutex
	servers  []models.Server
	channels map[string][]models.Channel // serverID -> channels
}

// NewDirectory creates a directory over the registry's hosts.
func NewDirectory(registry *Registry) *Directory {
	return &Directory{
		registry: registry,
		channels: make(map[string][]models.Channel),
	}
}

// Fetch rebuilds the merged server list. The primary host is consulted
// first; a joined host whose origin matches the primary is skipped so
// standalone deployments do not list their servers twice. A single
// unreachable host is logged and skipped; Fetch fails only when no host
// answered at all.
func (d *Directory) Fetch(ctx context.Context) error {
	primaryOrigin := d.registry.PrimaryOrigin()

	pairs := make([]*Pair, 0, 8)
	if primary := d.registry.Primary(); primary != nil {
		pairs = append(pairs, primary)
	}
	for _, p := range d.registry.Pairs() {
		if p.Host.URL == primaryOrigin {
			continue
		}
		pairs = append(pairs, p)
	}

	merged := make([]models.Server, 0, 16)
	seen := make(map[string]struct{})
	answered := 0
	var lastErr error

	for _, p := range pairs {
		servers, err := p.API.Servers(ctx)
		if err != nil {
			glog.Infof("server list from %s failed: %v", p.Host.URL, err)
			lastErr = err
			continue
		}
		answered++
		for _, s := range servers {
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			s.Host = p.Host.URL
			merged = append(merged, s)
		}
	}

	if answered == 0 && lastErr != nil {
		return lastErr
	}

	d.mu.Lock()
	d.servers = merged
	d.mu.Unlock()
	return nil
}

// Servers returns a copy of the merged server list.
func (d *Directory) Servers() []models.Server {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Server, len(d.servers))
	copy(out, d.servers)
	return out
}

// Server returns the merged record for a server id, or nil.
func (d *Directory) Server(serverID string) *models.Server {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.servers {
		if d.servers[i].ID == serverID {
			s := d.servers[i]
			return &s
		}
	}
	return nil
}

// clientFor routes an operation to the affinity host of a server.
func (d *Directory) clientFor(serverID string) (api.Client, error) {
	s := d.Server(serverID)
	if s == nil {
		return nil, errors.New("unknown server " + serverID)
	}
	pair := d.registry.Pair(s.Host)
	if pair == nil {
		return nil, errors.New("no connection for host " + s.Host)
	}
	return pair.API, nil
}

// FetchChannels pulls a server's channel list from its affinity host.
func (d *Directory) FetchChannels(ctx context.Context, serverID string) error {
	client, err := d.clientFor(serverID)
	if err != nil {
		return err
	}
	channels, err := client.Channels(ctx, serverID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.channels[serverID] = channels
	d.mu.Unlock()
	return nil
}

// Channels returns a copy of a server's channel list.
func (d *Directory) Channels(serverID string) []models.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Channel, len(d.channels[serverID]))
	copy(out, d.channels[serverID])
	return out
}

// CreateServer creates a server on the primary host and records it with
// primary affinity.
func (d *Directory) CreateServer(ctx context.Context, name string) (*models.Server, error) {
	primary := d.registry.Primary()
	if primary == nil {
		return nil, errors.New("no primary host configured")
	}
	created, err := primary.API.CreateServer(ctx, name)
	if err != nil {
		return nil, err
	}
	created.Host = primary.Host.URL

	d.mu.Lock()
	d.servers = append(d.servers, *created)
	d.mu.Unlock()
	return created, nil
}

// CreateChannel creates a channel on the server's affinity host.
func (d *Directory) CreateChannel(ctx context.Context, serverID, name string, kind models.ChannelKind) (*models.Channel, error) {
	client, err := d.clientFor(serverID)
	if err != nil {
		return nil, err
	}
	created, err := client.CreateChannel(ctx, serverID, name, kind)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.channels[serverID] = append(d.channels[serverID], *created)
	d.mu.Unlock()
	return created, nil
}

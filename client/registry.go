package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/ItsKorayYT/antarcticom/internal/api"
	"github.com/ItsKorayYT/antarcticom/internal/db"
	"github.com/ItsKorayYT/antarcticom/internal/models"
)

// DefaultPort is appended to a host URL given without scheme or port.
const DefaultPort = "8443"

// ErrHostKnown is returned when adding a host that is already joined.
var ErrHostKnown = errors.New("host already joined")

// NormalizeHostURL canonicalizes a user-entered host address: a missing
// scheme defaults to http:// with the default port appended when none is
// given, and trailing slashes are stripped. The function is idempotent.
func NormalizeHostURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty host url")
	}

	hadScheme := strings.Contains(raw, "://")
	if !hadScheme {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid host url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("host url has no host")
	}

	if !hadScheme && u.Port() == "" {
		u.Host += ":" + DefaultPort
	}

	path := strings.TrimRight(u.Path, "/")
	return u.Scheme + "://" + u.Host + path, nil
}

// Pair is one host's connection pair: the request client and the event
// stream, always created and torn down together.
type Pair struct {
	Host   models.Host
	API    api.Client
	Stream *Stream
}

// Options configures a Registry.
type Options struct {
	// Store persists the joined-host list and the offline caches. Required.
	Store *db.Store

	// NewAPI builds the request client for a normalized host origin.
	// Defaults to the HTTP implementation.
	NewAPI func(origin string) api.Client

	// PrimaryURL designates the default/auth host. Adding a host whose
	// normalized URL equals the primary's reuses the primary's pair.
	PrimaryURL string

	// OnCredentialInvalid fires once per unauthorized response observed by
	// any host's request client, decoupled from the caller that saw it.
	OnCredentialInvalid func()
}

// Registry owns the authoritative set of joined hosts and keeps each
// host's request/event pair alive and credentialed.
type Registry struct {
	store        *db.Store
	newAPI       func(origin string) api.Client
	onInvalidate func()

	mu      sync.RWMutex
	token   string
	pairs   map[string]*Pair // normalized URL -> pair
	order   []string         // join order, matches the persisted list
	primary string           // normalized primary URL, "" when unset
}

// NewRegistry creates a registry. When a primary URL is configured its
// pair is created eagerly so the auth flow has a client before any host is
// formally joined.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, errors.New("registry requires a store")
	}
	r := &Registry{
		store:        opts.Store,
		newAPI:       opts.NewAPI,
		onInvalidate: opts.OnCredentialInvalid,
		pairs:        make(map[string]*Pair),
	}
	if r.newAPI == nil {
		r.newAPI = func(origin string) api.Client {
			return api.NewREST(origin)
		}
	}
	if opts.PrimaryURL != "" {
		origin, err := NormalizeHostURL(opts.PrimaryURL)
		if err != nil {
			return nil, fmt.Errorf("invalid primary url: %w", err)
		}
		r.primary = origin
		r.pairs[origin] = r.newPair(models.Host{URL: origin, Name: origin})
	}
	return r, nil
}

func (r *Registry) newPair(host models.Host) *Pair {
	client := r.newAPI(host.URL)
	if rest, ok := client.(*api.REST); ok && r.onInvalidate != nil {
		rest.SetUnauthorizedHandler(r.onInvalidate)
	}
	return &Pair{
		Host:   host,
		API:    client,
		Stream: NewStream(host.URL),
	}
}

// Primary returns the primary host's pair, or nil when none is configured.
func (r *Registry) Primary() *Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primary == "" {
		return nil
	}
	return r.pairs[r.primary]
}

// PrimaryOrigin returns the normalized primary URL, or "" when unset.
func (r *Registry) PrimaryOrigin() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

// Pair returns the connection pair for a host URL (raw or normalized), or
// nil if the host is unknown.
func (r *Registry) Pair(rawURL string) *Pair {
	origin, err := NormalizeHostURL(rawURL)
	if err != nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pairs[origin]
}

// Pairs returns the joined hosts' pairs in join order. The primary pair is
// included only if the primary host was formally joined.
func (r *Registry) Pairs() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pairs := make([]*Pair, 0, len(r.order))
	for _, origin := range r.order {
		pairs = append(pairs, r.pairs[origin])
	}
	return pairs
}

// RestoreHosts loads the persisted host list and creates a connection pair
// per host. Duplicates are skipped; a malformed entry is logged and never
// fails the rest of the restore. Pairs are created disconnected; use
// ConnectAll once a credential is available.
func (r *Registry) RestoreHosts() error {
	hosts, err := r.store.Hosts()
	if err != nil {
		return fmt.Errorf("failed to load hosts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hosts {
		origin, err := NormalizeHostURL(h.URL)
		if err != nil {
			glog.Infof("skipping malformed host %q: %v", h.URL, err)
			continue
		}
		if r.contains(origin) {
			continue
		}
		h.URL = origin
		if origin == r.primary {
			// Reuse the primary's existing pair.
			r.pairs[origin].Host = h
		} else {
			r.pairs[origin] = r.newPair(h)
		}
		r.order = append(r.order, origin)
	}
	return nil
}

// contains reports whether origin is in the joined list. Caller holds mu.
func (r *Registry) contains(origin string) bool {
	for _, o := range r.order {
		if o == origin {
			return true
		}
	}
	return false
}

// AddHost normalizes and probes a candidate host, accepts it when its
// advertised mode is community or standalone, persists it, and brings its
// connection pair up. When the host advertises a default server and a
// credential is present, a join is attempted; join failure is logged but
// does not fail the add. A probe failure surfaces to the caller.
func (r *Registry) AddHost(ctx context.Context, rawURL string) (*models.InstanceInfo, error) {
	origin, err := NormalizeHostURL(rawURL)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.contains(origin) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrHostKnown, origin)
	}
	pair, existing := r.pairs[origin]
	if !existing {
		pair = r.newPair(models.Host{URL: origin, Name: origin})
	}
	token := r.token
	r.mu.Unlock()

	info, err := pair.API.InstanceInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", origin, err)
	}
	if info.Mode != models.ModeCommunity && info.Mode != models.ModeStandalone {
		return nil, fmt.Errorf("host %s mode %q is not joinable", origin, info.Mode)
	}

	host := models.Host{URL: origin, Name: info.Name}
	if host.Name == "" {
		host.Name = origin
	}

	r.mu.Lock()
	if r.contains(origin) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrHostKnown, origin)
	}
	pair.Host = host
	r.pairs[origin] = pair
	r.order = append(r.order, origin)
	hosts := r.hostList()
	r.mu.Unlock()

	if err := r.store.SaveHosts(hosts); err != nil {
		glog.Errorf("failed to persist host list: %v", err)
	}

	if token != "" {
		pair.API.SetToken(token)
		pair.Stream.Connect(token)
		if info.DefaultServerID != "" {
			if err := pair.API.JoinServer(ctx, info.DefaultServerID); err != nil {
				glog.Infof("auto-join of %s on %s failed: %v", info.DefaultServerID, origin, err)
			}
		}
	}
	return info, nil
}

// hostList snapshots the joined hosts in order. Caller holds mu.
func (r *Registry) hostList() []models.Host {
	hosts := make([]models.Host, 0, len(r.order))
	for _, origin := range r.order {
		hosts = append(hosts, r.pairs[origin].Host)
	}
	return hosts
}

// RemoveHost disconnects and discards a host's pair and removes it from
// the persisted list. The primary's pair object survives removal so the
// auth flow keeps a client, but its stream is torn down like any other.
// Removal is a local operation and cannot fail; persistence problems are
// logged only.
func (r *Registry) RemoveHost(rawURL string) {
	origin, err := NormalizeHostURL(rawURL)
	if err != nil {
		glog.Infof("remove of malformed host %q ignored: %v", rawURL, err)
		return
	}

	r.mu.Lock()
	pair, ok := r.pairs[origin]
	if !ok {
		r.mu.Unlock()
		return
	}
	for i, o := range r.order {
		if o == origin {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if origin != r.primary {
		delete(r.pairs, origin)
	}
	hosts := r.hostList()
	r.mu.Unlock()

	pair.Stream.Disconnect()
	if err := r.store.SaveHosts(hosts); err != nil {
		glog.Errorf("failed to persist host list: %v", err)
	}
	if err := r.store.ClearHost(origin); err != nil {
		glog.Errorf("failed to clear cache for %s: %v", origin, err)
	}
}

// SetCredential propagates a new bearer token to every host's request
// client, and to the event client of every host whose stream loop is
// active, connected or mid-retry, so no reconnect keeps identifying with
// the stale credential. Hosts whose streams were never brought up stay
// down.
func (r *Registry) SetCredential(token string) {
	r.mu.Lock()
	r.token = token
	pairs := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		pairs = append(pairs, p)
	}
	r.mu.Unlock()

	for _, p := range pairs {
		p.API.SetToken(token)
		if p.Stream.Active() {
			p.Stream.Connect(token)
		}
	}
}

// ConnectAll sets the credential and brings every host's event stream up,
// typically on login.
func (r *Registry) ConnectAll(token string) {
	r.mu.Lock()
	r.token = token
	pairs := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		pairs = append(pairs, p)
	}
	r.mu.Unlock()

	for _, p := range pairs {
		p.API.SetToken(token)
		p.Stream.Connect(token)
	}
}

// DisconnectAll tears down every host's event stream and forgets the
// credential, typically on logout.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	r.token = ""
	pairs := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		pairs = append(pairs, p)
	}
	r.mu.Unlock()

	for _, p := range pairs {
		p.API.SetToken("")
		p.Stream.Disconnect()
	}
}

package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/ItsKorayYT/antarcticom/internal/api"
	"github.com/ItsKorayYT/antarcticom/internal/db"
	"github.com/ItsKorayYT/antarcticom/internal/models"
)

func TestNormalizeHostURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.com", "http://example.com:8443"},
		{"https://host/", "https://host"},
		{"http://host:9000/", "http://host:9000"},
		{"  myhost.example  ", "http://myhost.example:8443"},
		{"https://host/base/", "https://host/base"},
		{"host.example:7000", "http://host.example:7000"},
	}
	for _, tc := range cases {
		got, err := NormalizeHostURL(tc.in)
		assert.Equal(t, err, nil)
		assert.Equal(t, got, tc.want)

		// Idempotent: normalizing the output changes nothing.
		again, err := NormalizeHostURL(got)
		assert.Equal(t, err, nil)
		assert.Equal(t, again, got)
	}
}

func TestNormalizeHostURLRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "ftp://host"} {
		_, err := NormalizeHostURL(in)
		assert.NotEqual(t, err, nil)
	}
}

type registryFixture struct {
	registry *Registry
	store    *db.Store
	fakes    map[string]*fakeAPI
}

func newRegistryFixture(t *testing.T, primaryURL string) *registryFixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fakes := make(map[string]*fakeAPI)
	registry, err := NewRegistry(Options{
		Store:      store,
		PrimaryURL: primaryURL,
		NewAPI: func(origin string) api.Client {
			if f, ok := fakes[origin]; ok {
				return f
			}
			f := &fakeAPI{}
			fakes[origin] = f
			return f
		},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(registry.DisconnectAll)
	return &registryFixture{registry: registry, store: store, fakes: fakes}
}

func (fx *registryFixture) fake(origin string) *fakeAPI {
	if f, ok := fx.fakes[origin]; ok {
		return f
	}
	f := &fakeAPI{}
	fx.fakes[origin] = f
	return f
}

func TestAddHostAutoJoin(t *testing.T) {
	fx := newRegistryFixture(t, "")
	origin := "http://myhost.example:8443"
	fx.fake(origin).instanceInfo = &models.InstanceInfo{
		Name:            "My Host",
		Mode:            models.ModeCommunity,
		DefaultServerID: "S1",
	}
	fx.registry.SetCredential("tok")

	info, err := fx.registry.AddHost(context.Background(), "myhost.example")
	assert.Equal(t, err, nil)
	assert.Equal(t, info.DefaultServerID, "S1")

	// Exactly one join attempt for the advertised server.
	assert.Equal(t, fx.fake(origin).JoinCalls(), []string{"S1"})

	hosts, err := fx.store.Hosts()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(hosts), 1)
	assert.Equal(t, hosts[0].URL, origin)
	assert.Equal(t, hosts[0].Name, "My Host")
}

func TestAddHostNoJoinWithoutCredential(t *testing.T) {
	fx := newRegistryFixture(t, "")
	origin := "http://myhost.example:8443"
	fx.fake(origin).instanceInfo = &models.InstanceInfo{
		Name:            "My Host",
		Mode:            models.ModeCommunity,
		DefaultServerID: "S1",
	}

	_, err := fx.registry.AddHost(context.Background(), "myhost.example")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(fx.fake(origin).JoinCalls()), 0)
}

func TestAddHostRejectsDuplicate(t *testing.T) {
	fx := newRegistryFixture(t, "")
	fx.fake("http://myhost.example:8443")

	_, err := fx.registry.AddHost(context.Background(), "myhost.example")
	assert.Equal(t, err, nil)

	_, err = fx.registry.AddHost(context.Background(), "http://myhost.example:8443/")
	assert.Equal(t, errors.Is(err, ErrHostKnown), true)
}

func TestAddHostRejectsMode(t *testing.T) {
	fx := newRegistryFixture(t, "")
	origin := "http://closed.example:8443"
	fx.fake(origin).instanceInfo = &models.InstanceInfo{Name: "Closed", Mode: models.ModePrivate}

	_, err := fx.registry.AddHost(context.Background(), "closed.example")
	assert.NotEqual(t, err, nil)

	hosts, _ := fx.store.Hosts()
	assert.Equal(t, len(hosts), 0)
}

func TestAddHostProbeFailureSurfaces(t *testing.T) {
	fx := newRegistryFixture(t, "")
	origin := "http://down.example:8443"
	fx.fake(origin).instanceErr = api.NewError(api.KindUnreachable, "connection refused", nil)

	_, err := fx.registry.AddHost(context.Background(), "down.example")
	assert.Equal(t, api.KindOf(err), api.KindUnreachable)

	hosts, _ := fx.store.Hosts()
	assert.Equal(t, len(hosts), 0)
}

func TestAddHostReusesPrimaryPair(t *testing.T) {
	fx := newRegistryFixture(t, "myhost.example")
	origin := "http://myhost.example:8443"
	fx.fake(origin).instanceInfo = &models.InstanceInfo{Name: "My Host", Mode: models.ModeStandalone}

	primary := fx.registry.Primary()
	assert.NotEqual(t, primary, nil)

	_, err := fx.registry.AddHost(context.Background(), "http://myhost.example:8443")
	assert.Equal(t, err, nil)

	// Same pair, no duplicate connection.
	assert.Equal(t, fx.registry.Pair("myhost.example") == primary, true)
	assert.Equal(t, len(fx.registry.Pairs()), 1)
}

func TestRestoreHostsSkipsBadEntries(t *testing.T) {
	fx := newRegistryFixture(t, "")
	saved := []models.Host{
		{URL: "http://alpha.example:8443", Name: "Alpha"},
		{URL: "ftp://bogus"},
		{URL: "http://alpha.example:8443", Name: "Alpha again"},
		{URL: "https://beta.example", Name: "Beta"},
	}
	assert.Equal(t, fx.store.SaveHosts(saved), nil)

	assert.Equal(t, fx.registry.RestoreHosts(), nil)

	pairs := fx.registry.Pairs()
	assert.Equal(t, len(pairs), 2)
	assert.Equal(t, pairs[0].Host.URL, "http://alpha.example:8443")
	assert.Equal(t, pairs[1].Host.URL, "https://beta.example")
}

func TestSetCredentialPropagates(t *testing.T) {
	fx := newRegistryFixture(t, "")
	saved := []models.Host{
		{URL: "http://alpha.example:8443", Name: "Alpha"},
		{URL: "https://beta.example", Name: "Beta"},
	}
	assert.Equal(t, fx.store.SaveHosts(saved), nil)
	assert.Equal(t, fx.registry.RestoreHosts(), nil)

	fx.registry.SetCredential("t2")

	assert.Equal(t, fx.fake("http://alpha.example:8443").Token(), "t2")
	assert.Equal(t, fx.fake("https://beta.example").Token(), "t2")

	// Hosts that were never connected stay down.
	for _, pair := range fx.registry.Pairs() {
		assert.Equal(t, pair.Stream.State(), StreamDisconnected)
	}
}

func TestSetCredentialReachesRetryingStream(t *testing.T) {
	// Reserve a port and keep it closed so the stream ends up retrying.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	store, err := db.Open(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry, err := NewRegistry(Options{
		Store:      store,
		PrimaryURL: "http://" + addr,
		NewAPI:     func(origin string) api.Client { return &fakeAPI{} },
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(registry.DisconnectAll)

	registry.ConnectAll("stale")

	stream := registry.Primary().Stream
	deadline := time.Now().Add(5 * time.Second)
	for stream.State() != StreamReconnecting {
		if time.Now().After(deadline) {
			t.Fatalf("stream never started retrying, state %s", stream.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	registry.SetCredential("fresh")

	// Bring the host up on the reserved port. The retry loop must now
	// identify with the swapped credential, never the stale one.
	es := &eventServer{t: t, identifies: make(chan string, 8)}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &http.Server{Handler: http.HandlerFunc(es.handle)}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })

	assert.Equal(t, waitIdentify(t, es), "fresh")
}

func TestRemoveHost(t *testing.T) {
	fx := newRegistryFixture(t, "")
	origin := "http://myhost.example:8443"
	fx.fake(origin).instanceInfo = &models.InstanceInfo{Name: "My Host", Mode: models.ModeCommunity}

	_, err := fx.registry.AddHost(context.Background(), "myhost.example")
	assert.Equal(t, err, nil)

	fx.registry.RemoveHost("myhost.example")

	assert.Equal(t, fx.registry.Pair(origin), (*Pair)(nil))
	hosts, _ := fx.store.Hosts()
	assert.Equal(t, len(hosts), 0)

	// Removing again, or removing garbage, is a harmless no-op.
	fx.registry.RemoveHost("myhost.example")
	fx.registry.RemoveHost("ftp://nope")
}

func TestRemoveHostPrimaryKeepsPairStopsStream(t *testing.T) {
	fx := newRegistryFixture(t, "myhost.example")
	origin := "http://myhost.example:8443"
	fx.fake(origin).instanceInfo = &models.InstanceInfo{Name: "My Host", Mode: models.ModeCommunity}

	_, err := fx.registry.AddHost(context.Background(), "myhost.example")
	assert.Equal(t, err, nil)
	fx.registry.ConnectAll("tok")

	fx.registry.RemoveHost("myhost.example")

	// The primary pair survives for the auth flow but is no longer a
	// joined host and its stream is down.
	assert.NotEqual(t, fx.registry.Primary(), nil)
	assert.Equal(t, len(fx.registry.Pairs()), 0)
	assert.Equal(t, fx.registry.Primary().Stream.State(), StreamDisconnected)

	hosts, _ := fx.store.Hosts()
	assert.Equal(t, len(hosts), 0)
}

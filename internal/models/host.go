package models

// Host is a backend instance the client has joined. Identity is the
// normalized URL; records are immutable once created and removed wholesale
// when the host is left.
type Host struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// InstanceMode is a host's advertised operating mode.
type InstanceMode string

const (
	ModeCommunity  InstanceMode = "community"
	ModeStandalone InstanceMode = "standalone"
	ModePrivate    InstanceMode = "private"
)

// InstanceInfo is the unauthenticated self-description a host serves,
// probed before the host is accepted into the registry.
type InstanceInfo struct {
	Name            string       `json:"name"`
	Mode            InstanceMode `json:"mode"`
	DefaultServerID string       `json:"default_server_id,omitempty"`
}

package models

// Server is a chat server as reported by a host. The same server id may be
// visible from several hosts in federated deployments; Host records which
// host the record was first seen on.
type Server struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
	Host    string `json:"-"`
}

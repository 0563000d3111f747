package models

// Role is a named permission grouping within a server. Members reference
// roles by id.
type Role struct {
	ID       string `json:"id"`
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

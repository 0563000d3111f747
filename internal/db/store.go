// Package db is the client-side persistence layer: joined hosts,
// preferences, and a message cache that keeps channel history readable
// while a host is unreachable.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ItsKorayYT/antarcticom/internal/models"
)

// hostsKey is the preferences key holding the ordered joined-host list.
const hostsKey = "joined_hosts"

// deviceIDKey holds the install-unique client id, generated on first open.
const deviceIDKey = "device_id"

// Store handles client-side database operations.
type Store struct {
	db *sql.DB
}

// Open opens or creates the client database at path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_fk=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cached_messages (
			host TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			message_id INTEGER NOT NULL,
			author_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (host, channel_id, message_id)
		);

		CREATE INDEX IF NOT EXISTS idx_cached_messages_channel
			ON cached_messages(host, channel_id, message_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Preference retrieves a preference value; missing keys return "".
func (s *Store) Preference(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetPreference sets a preference value.
func (s *Store) SetPreference(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// DeviceID returns the install-unique client id, generating and persisting
// one on first use.
func (s *Store) DeviceID() (string, error) {
	id, err := s.Preference(deviceIDKey)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.New().String()
	if err := s.SetPreference(deviceIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// Hosts loads the persisted joined-host list in its stored order. A
// malformed entry is logged and skipped; it never fails the whole load.
func (s *Store) Hosts() ([]models.Host, error) {
	raw, err := s.Preference(hostsKey)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse host list: %w", err)
	}

	hosts := make([]models.Host, 0, len(entries))
	for _, entry := range entries {
		var h models.Host
		if err := json.Unmarshal(entry, &h); err != nil || h.URL == "" {
			glog.Infof("skipping malformed host entry %s", entry)
			continue
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// SaveHosts replaces the persisted joined-host list, preserving order.
func (s *Store) SaveHosts(hosts []models.Host) error {
	if hosts == nil {
		hosts = []models.Host{}
	}
	raw, err := json.Marshal(hosts)
	if err != nil {
		return err
	}
	return s.SetPreference(hostsKey, string(raw))
}

// CacheMessage upserts a message into the offline cache for a host.
func (s *Store) CacheMessage(host string, msg *models.Message) error {
	deleted := 0
	if msg.Deleted {
		deleted = 1
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO cached_messages
			(host, channel_id, message_id, author_id, content, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, host, msg.ChannelID, msg.ID, msg.AuthorID, msg.Content, msg.CreatedAt, deleted)
	return err
}

// CachedMessages retrieves cached messages for a channel in chronological
// (oldest-first) order.
func (s *Store) CachedMessages(host, channelID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT channel_id, message_id, author_id, content, created_at, deleted
		FROM cached_messages
		WHERE host = ? AND channel_id = ?
		ORDER BY message_id DESC LIMIT ?
	`, host, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var deleted int
		var createdAt time.Time
		if err := rows.Scan(&m.ChannelID, &m.ID, &m.AuthorID, &m.Content, &createdAt, &deleted); err != nil {
			return nil, err
		}
		m.CreatedAt = createdAt
		m.Deleted = deleted != 0
		messages = append(messages, m)
	}
	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, rows.Err()
}

// ClearHost drops all cached state for a host, called when the host is
// removed from the registry.
func (s *Store) ClearHost(host string) error {
	_, err := s.db.Exec(`DELETE FROM cached_messages WHERE host = ?`, host)
	return err
}

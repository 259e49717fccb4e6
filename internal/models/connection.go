// Package models defines the data types shared across gatewatch:
// tracked connections, recorded sessions and metrics snapshots.
package models

import (
	"time"

	"gorm.io/gorm"
)

// ServerID names one of the two logical WebSocket servers.
type ServerID string

const (
	// ServerExternal is the inference gateway exposed to outside clients (9001).
	ServerExternal ServerID = "external"
	// ServerInternal is the agent channel used inside the deployment (3001).
	ServerInternal ServerID = "internal"
)

// Servers lists every known ServerID in display order.
var Servers = []ServerID{ServerExternal, ServerInternal}

// Valid reports whether s is one of the known servers.
func (s ServerID) Valid() bool {
	return s == ServerExternal || s == ServerInternal
}

// Connection is one accepted WebSocket as seen by its server's registry.
// It is a value type: the socket itself stays with the connection loop.
type Connection struct {
	ID         string    `json:"id"`
	Server     ServerID  `json:"server"`
	RemoteAddr string    `json:"remoteAddr"`
	OpenedAt   time.Time `json:"openedAt"`
}

// Session is the persisted record of a closed connection.
// Only lifecycle data is stored, never message payloads.
type Session struct {
	gorm.Model

	ConnID     string   `gorm:"uniqueIndex;not null" json:"conn_id"`
	Server     ServerID `gorm:"index;not null" json:"server"`
	RemoteAddr string   `json:"remote_addr"`

	// Lifecycle
	OpenedAt    time.Time `gorm:"index" json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
	Frames      int64     `json:"frames"`
	CloseReason string    `json:"close_reason"`
}

// Duration is how long the session stayed open.
func (s Session) Duration() time.Duration {
	return s.ClosedAt.Sub(s.OpenedAt)
}

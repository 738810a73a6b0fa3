package db

import "time"

// Session represents a row in the packet_sessions table.
type Session struct {
	ID               string     `json:"id"`
	Peer             string     `json:"peer"`
	ProtocolVersion  *string    `json:"protocol_version,omitempty"`
	ConnectedAt      time.Time  `json:"connected_at"`
	DisconnectedAt   *time.Time `json:"disconnected_at,omitempty"`
	DisconnectReason *string    `json:"disconnect_reason,omitempty"`
	PacketsProcessed int64      `json:"packets_processed"`
}

// Open reports whether the session has not yet been recorded as disconnected.
func (s *Session) Open() bool {
	return s.DisconnectedAt == nil
}

// Package events defines session lifecycle events and their publishers.
package events

// Session event kinds.
const (
	KindConnected    = "connected"
	KindDisconnected = "disconnected"
)

// SessionEvent is emitted when a session opens or closes.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
	Peer      string `json:"peer,omitempty"`
	Kind      string `json:"kind"`
	// Reason is "graceful" or "broken" for disconnects.
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

package router

import "github.com/morezero/packet-router/pkg/packet"

// Connection is a peer session as seen by lifecycle callbacks.
type Connection interface {
	ID() string
	// Peer is the logical peer name given at connect.
	Peer() string
	// Send pushes a packet to the peer.
	Send(p *packet.Packet) error
}

// DisconnectReason tells disconnect callbacks how a session ended.
type DisconnectReason int

const (
	// Graceful is a locally or server initiated close.
	Graceful DisconnectReason = iota
	// Broken is an unexpected termination.
	Broken
)

func (r DisconnectReason) String() string {
	switch r {
	case Graceful:
		return "graceful"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}

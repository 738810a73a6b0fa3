package session

import "github.com/morezero/packet-router/pkg/dispatcher"

// ConnectRequest opens a session. The client subscribes to the push subject
// for ClientID before sending it so that on-connect pushes are not lost.
type ConnectRequest struct {
	Peer     string `json:"peer"`
	ClientID string `json:"clientId"`
}

// ConnectResponse answers a ConnectRequest.
type ConnectResponse struct {
	Session string                  `json:"session,omitempty"`
	Ok      bool                    `json:"ok"`
	Error   *dispatcher.ErrorDetail `json:"error,omitempty"`
}

// Push is a server initiated packet delivered on the client subject.
type Push = dispatcher.Request

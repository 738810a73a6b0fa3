// Package dispatcher turns wire requests into packets, runs them through a
// session's Router and builds the wire response.
package dispatcher

import "github.com/morezero/packet-router/pkg/packet"

// Request is the JSON envelope for an inbound packet.
type Request struct {
	ID      string          `json:"id"`
	Session string          `json:"session"`
	Packet  packet.Envelope `json:"packet"`
}

// Response is the JSON envelope answering a Request.
type Response struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// Result is the payload of a successful Response.
type Result struct {
	Matched    int           `json:"matched"`
	Invoked    int           `json:"invoked"`
	Terminated bool          `json:"terminated,omitempty"`
	Replies    []interface{} `json:"replies,omitempty"`
}

// Error codes produced outside the router.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeSessionBusy     = "SESSION_BUSY"
	CodeTimeout         = "TIMEOUT"
	CodeInternal        = "INTERNAL_ERROR"
)

package commsutil

import (
	"fmt"
	"strings"
)

// DefaultSubjectPrefix is the root of every packet subject.
const DefaultSubjectPrefix = "packet.v1"

// Subjects builds the NATS subjects used between clients and the server.
//
//	<prefix>.connect                     session open (request/reply)
//	<prefix>.session.<id>                packets for a session (request/reply)
//	<prefix>.session.<id>.disconnect     graceful close (request/reply)
//	<prefix>.client.<id>                 server push to the client
//	<prefix>.events.session              session lifecycle events
type Subjects struct {
	Prefix string
}

// NewSubjects returns Subjects for prefix, falling back to DefaultSubjectPrefix.
func NewSubjects(prefix string) Subjects {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return Subjects{Prefix: prefix}
}

// Connect is the subject for opening sessions.
func (s Subjects) Connect() string {
	return s.Prefix + ".connect"
}

// Session is the packet subject for a session.
func (s Subjects) Session(id string) string {
	return fmt.Sprintf("%s.session.%s", s.Prefix, Token(id))
}

// SessionWildcard matches every session packet subject.
func (s Subjects) SessionWildcard() string {
	return s.Prefix + ".session.*"
}

// Disconnect is the graceful close subject for a session.
func (s Subjects) Disconnect(id string) string {
	return s.Session(id) + ".disconnect"
}

// DisconnectWildcard matches every session close subject.
func (s Subjects) DisconnectWildcard() string {
	return s.Prefix + ".session.*.disconnect"
}

// Client is the push subject for a session's client.
func (s Subjects) Client(id string) string {
	return fmt.Sprintf("%s.client.%s", s.Prefix, Token(id))
}

// SessionEvents is the subject lifecycle events are published on.
func (s Subjects) SessionEvents() string {
	return s.Prefix + ".events.session"
}

// SessionID extracts the session id from a session or disconnect subject.
func (s Subjects) SessionID(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, s.Prefix+".session.")
	if !ok || rest == "" {
		return "", false
	}
	rest = strings.TrimSuffix(rest, ".disconnect")
	if rest == "" || strings.Contains(rest, ".") {
		return "", false
	}
	return rest, true
}

// Token makes s usable as a single subject token.
func Token(s string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return r.Replace(s)
}

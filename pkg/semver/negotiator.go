// Package semver negotiates the packet protocol version between client and server.
package semver

import (
	"errors"
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const negotiatorLogPrefix = "semver:negotiator"

var (
	// ErrInvalidVersion is returned when a version string does not parse.
	ErrInvalidVersion = errors.New("invalid protocol version")
	// ErrUnsupportedVersion is returned when a client version falls outside the accepted range.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// Negotiator accepts client protocol versions that satisfy Constraint.
type Negotiator struct {
	Server     *masterminds.Version
	Constraint *masterminds.Constraints
}

// NewNegotiator parses the server version and the accepted client range.
// The server version must itself satisfy the range.
func NewNegotiator(server, constraint string) (*Negotiator, error) {
	sv, err := masterminds.NewVersion(server)
	if err != nil {
		return nil, fmt.Errorf("%s - server version %q: %w", negotiatorLogPrefix, server, ErrInvalidVersion)
	}
	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - constraint %q: %w", negotiatorLogPrefix, constraint, err)
	}
	if !c.Check(sv) {
		return nil, fmt.Errorf("%s - server version %s does not satisfy %q: %w", negotiatorLogPrefix, sv, constraint, ErrUnsupportedVersion)
	}
	return &Negotiator{Server: sv, Constraint: c}, nil
}

// Check parses clientVersion and verifies it against the constraint.
func (n *Negotiator) Check(clientVersion string) (*masterminds.Version, error) {
	if clientVersion == "" {
		return nil, fmt.Errorf("%s - empty client version: %w", negotiatorLogPrefix, ErrInvalidVersion)
	}
	v, err := masterminds.NewVersion(clientVersion)
	if err != nil {
		return nil, fmt.Errorf("%s - client version %q: %w", negotiatorLogPrefix, clientVersion, ErrInvalidVersion)
	}
	if ok, errs := n.Constraint.Validate(v); !ok {
		return nil, fmt.Errorf("%s - client version %s: %w: %v", negotiatorLogPrefix, v, ErrUnsupportedVersion, errors.Join(errs...))
	}
	return v, nil
}

// Agreed returns the version both sides speak: the lower of client and server.
func (n *Negotiator) Agreed(client *masterminds.Version) *masterminds.Version {
	if client.LessThan(n.Server) {
		return client
	}
	return n.Server
}

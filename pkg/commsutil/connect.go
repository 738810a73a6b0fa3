// Package commsutil provides NATS connection helpers, payload codec and packet subjects.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// Connect opens a NATS connection with reconnect handling. Extra options
// are applied after the defaults.
func Connect(url, name string, extra ...comms.Option) (*comms.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to NATS at %s as %s", logPrefix, url, name))

	opts := []comms.Option{
		comms.Name(name),
		comms.Timeout(10 * time.Second),
		comms.ReconnectWait(2 * time.Second),
		comms.MaxReconnects(60),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - NATS disconnected: %v", logPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - NATS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			slog.Info(fmt.Sprintf("%s - NATS connection closed", logPrefix))
		}),
	}
	nc, err := comms.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}

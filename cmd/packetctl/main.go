// Package main is packetctl, a one-shot client for packetd.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/morezero/packet-router/internal/config"
	"github.com/morezero/packet-router/pkg/client"
	"github.com/morezero/packet-router/pkg/commsutil"
	"github.com/morezero/packet-router/pkg/packet"
)

const usage = `Usage: packetctl send <action> [key=value ...] [value ...]

Opens a session, sends one packet, prints the result as JSON and disconnects.
key=value pairs become named fields; bare values become positional arguments.
Values are sent as strings unless they start with { or [, which are parsed as JSON.

Environment: COMMS_URL, PACKET_SUBJECT_PREFIX, PACKET_REQUEST_TIMEOUT, PROTOCOL_VERSION,
PACKET_PEER (default packetctl).
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("packetctl: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(out, usage)
		return nil
	}
	if args[0] != "send" {
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	if len(args) < 2 {
		return fmt.Errorf("send: action is required")
	}
	p, err := buildPacket(args[1], args[2:])
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	peer := os.Getenv("PACKET_PEER")
	if peer == "" {
		peer = "packetctl"
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, peer)
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*cfg.RequestTimeout)
	defer cancel()

	c, err := client.Dial(ctx, nc, cfg.SubjectPrefix, peer, cfg.ProtocolVersion)
	if err != nil {
		return err
	}
	res, sendErr := c.Send(ctx, p)

	// Pushes sent while the packet was handled are printed too.
	drain := time.After(50 * time.Millisecond)
	var pushes []*packet.Envelope
collect:
	for {
		select {
		case push, ok := <-c.Pushes():
			if !ok {
				break collect
			}
			pushes = append(pushes, packet.FromPacket(push))
		case <-drain:
			break collect
		}
	}
	if err := c.Close(ctx); err != nil {
		log.Printf("packetctl: close: %v", err)
	}
	if sendErr != nil {
		return sendErr
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"session": c.Session(),
		"result":  res,
		"pushes":  pushes,
	})
}

// buildPacket turns command line words into a packet.
func buildPacket(action string, words []string) (*packet.Packet, error) {
	var positional []any
	fields := map[string]any{}
	for _, w := range words {
		key, raw, named := strings.Cut(w, "=")
		if named && key == "" {
			return nil, fmt.Errorf("send: empty field name in %q", w)
		}
		if !named {
			raw = w
		}
		v, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("send: %q: %w", w, err)
		}
		if named {
			fields[key] = v
		} else {
			positional = append(positional, v)
		}
	}

	p := packet.New(action, positional...)
	for k, v := range fields {
		p.Set(k, v)
	}
	return p, nil
}

func parseValue(raw string) (any, error) {
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return raw, nil
}
